package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/notibridge/notibridge/internal/wire"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestConn_FrameRoundtrip(t *testing.T) {
	a, b := Pipe()
	defer a.Close()
	defer b.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		require.NoError(t, a.WriteFrame([]byte("first")))
		require.NoError(t, a.WriteFrame([]byte{}))
		require.NoError(t, a.WriteFrame([]byte("third")))
	}()

	p1, err := b.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "first", string(p1))

	p2, err := b.ReadFrame()
	require.NoError(t, err)
	assert.Empty(t, p2)

	p3, err := b.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "third", string(p3))
	<-done
}

func TestConn_EOFBetweenFrames(t *testing.T) {
	a, b := Pipe()
	defer b.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		require.NoError(t, a.WriteFrame([]byte("only")))
		a.Close()
	}()

	_, err := b.ReadFrame()
	require.NoError(t, err)

	_, err = b.ReadFrame()
	assert.ErrorIs(t, err, io.EOF)
	<-done
}

func TestConn_EOFInsideFrame(t *testing.T) {
	raw, peer := net.Pipe()
	conn := NewConn(raw)
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Header promises 100 bytes but only 3 arrive.
		var header [4]byte
		binary.LittleEndian.PutUint32(header[:], 100)
		peer.Write(header[:])
		peer.Write([]byte("abc"))
		peer.Close()
	}()

	_, err := conn.ReadFrame()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	<-done
}

func TestConn_RejectsOversizedHeader(t *testing.T) {
	raw, peer := net.Pipe()
	conn := NewConn(raw)
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		var header [4]byte
		binary.LittleEndian.PutUint32(header[:], wire.MaxFrameSize+1)
		peer.Write(header[:])
		peer.Close()
	}()

	_, err := conn.ReadFrame()
	assert.ErrorIs(t, err, ErrFrameTooLarge)
	<-done
}

func TestConn_RejectsOversizedWrite(t *testing.T) {
	a, b := Pipe()
	defer a.Close()
	defer b.Close()

	err := a.WriteFrame(make([]byte, wire.MaxFrameSize+1))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestConn_ConcurrentWritersDoNotInterleave(t *testing.T) {
	a, b := Pipe()
	defer a.Close()
	defer b.Close()

	const writers = 8
	const perWriter = 25

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			payload := []byte(fmt.Sprintf("writer-%d-%s", n, string(make([]byte, 100+n))))
			for j := 0; j < perWriter; j++ {
				if err := a.WriteFrame(payload); err != nil {
					return
				}
			}
		}(i)
	}

	seen := 0
	readDone := make(chan error, 1)
	go func() {
		for seen < writers*perWriter {
			p, err := b.ReadFrame()
			if err != nil {
				readDone <- err
				return
			}
			if len(p) < 9 || string(p[:7]) != "writer-" {
				readDone <- fmt.Errorf("corrupt frame: %q", p[:9])
				return
			}
			seen++
		}
		readDone <- nil
	}()

	wg.Wait()
	require.NoError(t, <-readDone)
	assert.Equal(t, writers*perWriter, seen)
}

func TestConn_WriteEnvelope(t *testing.T) {
	a, b := Pipe()
	defer a.Close()
	defer b.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		err := a.WriteEnvelope(&wire.Envelope{
			Type:    wire.KindCreated,
			Created: &wire.Created{Seq: 7, ID: 3},
		})
		require.NoError(t, err)
	}()

	payload, err := b.ReadFrame()
	require.NoError(t, err)
	env, err := wire.Decode(payload)
	require.NoError(t, err)
	require.NotNil(t, env.Created)
	assert.Equal(t, uint64(7), env.Created.Seq)
	assert.Equal(t, uint32(3), env.Created.ID)
}

func TestConn_CloseIsIdempotent(t *testing.T) {
	a, b := Pipe()
	defer b.Close()

	require.NoError(t, a.Close())
	assert.NoError(t, a.Close())
}
