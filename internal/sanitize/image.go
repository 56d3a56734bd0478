package sanitize

import (
	"errors"

	"github.com/notibridge/notibridge/internal/wire"
)

const (
	// MaxImageBytes caps the raw pixbuf payload.
	MaxImageBytes = 2 << 20

	// MaxImageSide caps width and height. Notification images are
	// thumbnails; anything larger is downscaled by well-behaved senders.
	MaxImageSide = 255
)

var (
	ErrImageBits      = errors.New("image bits per sample must be 8")
	ErrImageTooBig    = errors.New("image data exceeds size limit")
	ErrImageChannels  = errors.New("image channel count does not match alpha flag")
	ErrImageTooSmall  = errors.New("image width, height, or stride too small")
	ErrImageDims      = errors.New("image width or height too large")
	ErrImageDataShort = errors.New("image data does not cover rowstride times height")
	ErrImageStride    = errors.New("image row stride too small for width")
)

// Image validates untrusted pixbuf parameters against their buffer. The
// checks are ordered so that each later check can rely on the earlier
// ones; in particular the buffer arithmetic runs only on fields already
// known to be positive and small enough not to overflow int32.
func Image(img *wire.Image) error {
	if img.BitsPerSample != 8 {
		return ErrImageBits
	}
	if len(img.Data) > MaxImageBytes {
		return ErrImageTooBig
	}
	channels := int32(3)
	if img.HasAlpha {
		channels = 4
	}
	if img.Channels != channels {
		return ErrImageChannels
	}
	if img.Width < 1 || img.Height < 1 || img.Rowstride < channels {
		return ErrImageTooSmall
	}
	if img.Width > MaxImageSide || img.Height > MaxImageSide {
		return ErrImageDims
	}
	if int32(len(img.Data))/img.Height < img.Rowstride {
		return ErrImageDataShort
	}
	if img.Rowstride/channels < img.Width {
		return ErrImageStride
	}
	return nil
}
