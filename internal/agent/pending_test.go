package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notibridge/notibridge/internal/wire"
)

func TestPendingRegisterAndSettle(t *testing.T) {
	p := newPending()

	seq, ch := p.register()
	assert.Equal(t, uint64(1), seq)

	require.True(t, p.settle(seq, outcome{id: 42}))
	o := <-ch
	assert.Equal(t, uint32(42), o.id)
	assert.Nil(t, o.failed)

	// Settled means gone.
	assert.False(t, p.settle(seq, outcome{id: 42}))
}

func TestPendingSettleUnknownSeq(t *testing.T) {
	p := newPending()
	assert.False(t, p.settle(99, outcome{id: 1}))
}

func TestPendingDrop(t *testing.T) {
	p := newPending()

	seq, _ := p.register()
	p.drop(seq)
	assert.False(t, p.settle(seq, outcome{id: 1}))
}

func TestPendingSharedSequenceSpace(t *testing.T) {
	p := newPending()

	seq, _ := p.register()
	assert.Equal(t, uint64(1), seq)
	assert.Equal(t, uint64(2), p.nextSeq())
	seq, _ = p.register()
	assert.Equal(t, uint64(3), seq)
}

func TestPendingFailAll(t *testing.T) {
	p := newPending()

	seqA, chA := p.register()
	seqB, chB := p.register()

	p.failAll("bridge gone")

	oA := <-chA
	require.NotNil(t, oA.failed)
	assert.Equal(t, seqA, oA.failed.Seq)
	assert.Equal(t, "bridge gone", oA.failed.Message)

	oB := <-chB
	require.NotNil(t, oB.failed)
	assert.Equal(t, seqB, oB.failed.Seq)

	assert.False(t, p.settle(seqA, outcome{id: 1}))
	assert.False(t, p.settle(seqB, outcome{id: 1}))
}

func TestFailedError(t *testing.T) {
	derr := failedError(&wire.Failed{Seq: 1, Name: "org.freedesktop.DBus.Error.InvalidArgs", Message: "bad hint"})
	assert.Equal(t, "org.freedesktop.DBus.Error.InvalidArgs", derr.Name)
	require.Len(t, derr.Body, 1)
	assert.Equal(t, "bad hint", derr.Body[0])

	derr = failedError(&wire.Failed{Seq: 2})
	assert.Equal(t, errNameFailed, derr.Name)
	require.Len(t, derr.Body, 1)
	assert.Equal(t, "notification rejected", derr.Body[0])
}
