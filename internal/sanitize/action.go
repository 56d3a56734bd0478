package sanitize

// MaxActionBytes caps an action name. Generous: real keys are short
// ("default", "mail-reply-sender").
const MaxActionBytes = 255

// MaxCategoryBytes caps a category hint per the freedesktop registry,
// where the longest registered value is well under this.
const MaxCategoryBytes = 64

// ValidAction reports whether an untrusted action name may be forwarded.
// Names are ASCII only: an alphabetic first byte followed by alphanumerics,
// '-', '.', or '_'. Action labels are display text and go through Text
// instead.
func ValidAction(action string) bool {
	if len(action) == 0 || len(action) > MaxActionBytes {
		return false
	}
	c := action[0]
	if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
		return false
	}
	for i := 1; i < len(action); i++ {
		c := action[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '.' || c == '_':
		default:
			return false
		}
	}
	return true
}

// Category validates an untrusted category hint ("im.received",
// "device.error"). Lowercase ASCII letters and dots, starting with a
// letter, no trailing dot, at most MaxCategoryBytes. Returns false for
// anything else; the notification is rejected rather than forwarded with
// the hint dropped.
func Category(category string) bool {
	if len(category) == 0 || len(category) > MaxCategoryBytes {
		return false
	}
	if category[0] < 'a' || category[0] > 'z' {
		return false
	}
	for i := 1; i < len(category); i++ {
		c := category[i]
		if (c < 'a' || c > 'z') && c != '.' {
			return false
		}
	}
	return category[len(category)-1] != '.'
}
