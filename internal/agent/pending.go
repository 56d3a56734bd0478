package agent

import (
	"sync"

	"github.com/notibridge/notibridge/internal/wire"
)

// outcome is the relay's answer to one Notify request. Exactly one field
// is set.
type outcome struct {
	id     uint32
	failed *wire.Failed
}

// pending tracks Notify requests awaiting a Created or Failed reply,
// keyed by sequence number. It also owns the sequence counter itself, so
// fire-and-forget requests draw from the same space.
type pending struct {
	mu      sync.Mutex
	seq     uint64
	waiters map[uint64]chan outcome
}

func newPending() *pending {
	return &pending{waiters: make(map[uint64]chan outcome)}
}

// nextSeq allocates a sequence number without registering a waiter.
func (p *pending) nextSeq() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	return p.seq
}

// register allocates a sequence number and a channel its reply will
// arrive on. The channel is buffered, so a reply never blocks on a caller
// that already gave up.
func (p *pending) register() (uint64, <-chan outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	ch := make(chan outcome, 1)
	p.waiters[p.seq] = ch
	return p.seq, ch
}

// settle delivers a reply. Returns false when nobody is waiting, which
// happens when the caller timed out first.
func (p *pending) settle(seq uint64, o outcome) bool {
	p.mu.Lock()
	ch, ok := p.waiters[seq]
	if ok {
		delete(p.waiters, seq)
	}
	p.mu.Unlock()
	if !ok {
		return false
	}
	ch <- o
	return true
}

// drop abandons a waiter without a reply.
func (p *pending) drop(seq uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.waiters, seq)
}

// failAll answers every outstanding waiter with the same failure. Used
// when the relay connection goes away under live requests.
func (p *pending) failAll(message string) {
	p.mu.Lock()
	waiters := p.waiters
	p.waiters = make(map[uint64]chan outcome)
	p.mu.Unlock()

	for seq, ch := range waiters {
		ch <- outcome{failed: &wire.Failed{Seq: seq, Message: message}}
	}
}
