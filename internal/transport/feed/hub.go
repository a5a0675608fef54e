// Package feed fans committed campaign entries out to indexers. Each item's
// cursor is its journal sequence number; a subscriber resumes by passing the
// last cursor it saw.
package feed

import (
	"sync"

	"go.uber.org/zap"

	"mintgate.io/internal/campaign"
	"mintgate.io/internal/protocol"
)

const subscriberBuffer = 256

// Hub keeps the most recent items in a ring buffer and fans new ones out to
// subscribers. Publish never blocks; a subscriber whose buffer is full is
// dropped and must resubscribe from its cursor.
type Hub struct {
	campaignID string
	log        *zap.Logger

	mu    sync.Mutex
	ring  []protocol.FeedItem
	head  int // index of the oldest item
	count int
	last  uint64 // cursor of the newest item, or the base cursor when empty
	subs  map[*Subscription]struct{}
}

var _ campaign.EventSink = (*Hub)(nil)

// NewHub buffers up to size items. base is the cursor already committed before
// this process started; older cursors are reported as truncated.
func NewHub(campaignID string, size int, base uint64, log *zap.Logger) *Hub {
	if size <= 0 {
		size = 4096
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		campaignID: campaignID,
		log:        log,
		ring:       make([]protocol.FeedItem, size),
		last:       base,
		subs:       map[*Subscription]struct{}{},
	}
}

func (h *Hub) CampaignID() string { return h.campaignID }

// Publish implements campaign.EventSink.
func (h *Hub) Publish(e campaign.JournalEntry) {
	it := protocol.FromEntry(e)

	h.mu.Lock()
	defer h.mu.Unlock()
	if it.Cursor <= h.last {
		// Replayed or duplicate entry.
		return
	}
	if h.count < len(h.ring) {
		h.ring[(h.head+h.count)%len(h.ring)] = it
		h.count++
	} else {
		h.ring[h.head] = it
		h.head = (h.head + 1) % len(h.ring)
	}
	h.last = it.Cursor

	for s := range h.subs {
		select {
		case s.ch <- it:
		default:
			h.log.Info("dropping slow feed subscriber", zap.Uint64("cursor", it.Cursor))
			s.dropped = true
			delete(h.subs, s)
			close(s.ch)
		}
	}
}

// LastCursor is the newest committed cursor.
func (h *Hub) LastCursor() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Subscribe returns the buffered items after since and a subscription for
// everything published afterwards, with no gap between the two. truncated is
// set when items after since have already left the buffer.
func (h *Hub) Subscribe(since uint64) (backlog []protocol.FeedItem, truncated bool, sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	first := h.last + 1
	if h.count > 0 {
		first = h.ring[h.head].Cursor
	}
	truncated = since+1 < first
	for i := 0; i < h.count; i++ {
		it := h.ring[(h.head+i)%len(h.ring)]
		if it.Cursor > since {
			backlog = append(backlog, it)
		}
	}

	sub = &Subscription{hub: h, ch: make(chan protocol.FeedItem, subscriberBuffer)}
	h.subs[sub] = struct{}{}
	return backlog, truncated, sub
}

type Subscription struct {
	hub     *Hub
	ch      chan protocol.FeedItem
	dropped bool // guarded by hub.mu
}

// C is closed when the subscription ends, either by Close or because the
// subscriber fell behind.
func (s *Subscription) C() <-chan protocol.FeedItem { return s.ch }

// Dropped reports whether the hub ended the subscription for falling behind.
func (s *Subscription) Dropped() bool {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	return s.dropped
}

func (s *Subscription) Close() {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.ch)
	}
}
