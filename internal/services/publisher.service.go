package services

import (
	"sync"
	"sync/atomic"

	"usage-applet/internal/models"
)

// Publisher hands whole snapshots from the single sampler writer to any
// number of readers. Publish swaps a pointer; it never copies or locks
// around the read path, so readers always see one publish cycle at a time.
type Publisher struct {
	current atomic.Pointer[models.Snapshot]

	mu          sync.Mutex
	subscribers map[uint64]chan *models.Snapshot
	nextID      uint64
}

// NewPublisher creates an empty publisher
func NewPublisher() *Publisher {
	return &Publisher{
		subscribers: make(map[uint64]chan *models.Snapshot),
	}
}

// Publish replaces the visible snapshot. snap must not be modified afterwards.
func (p *Publisher) Publish(snap *models.Snapshot) {
	if snap == nil {
		return
	}
	p.current.Store(snap)

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subscribers {
		offerLatest(ch, snap)
	}
}

// Current returns the latest published snapshot, or nil before the first publish
func (p *Publisher) Current() *models.Snapshot {
	return p.current.Load()
}

// Subscribe returns a channel that always yields the newest snapshot.
// Slow subscribers skip intermediate snapshots instead of blocking Publish.
// The returned cancel func closes the channel.
func (p *Publisher) Subscribe() (<-chan *models.Snapshot, func()) {
	ch := make(chan *models.Snapshot, 1)

	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subscribers[id] = ch
	if snap := p.Current(); snap != nil {
		offerLatest(ch, snap)
	}
	p.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subscribers, id)
			close(ch)
			p.mu.Unlock()
		})
	}
	return ch, cancel
}

// offerLatest puts snap into ch, discarding a pending older snapshot.
// Callers hold p.mu, so ch has a single sender.
func offerLatest(ch chan *models.Snapshot, snap *models.Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}
