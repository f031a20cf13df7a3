package missions

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/daily-missions/internal/models"
)

const subscriberBuffer = 16

// Broker fans mission events out to per-player subscribers.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	closed bool
}

// Subscription receives events for one player until Close is called.
type Subscription struct {
	PlayerID string
	C        <-chan models.Event

	ch     chan models.Event
	broker *Broker
	once   sync.Once
}

// NewBroker creates an empty broker
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[*Subscription]struct{})}
}

// Subscribe registers a listener for a player's events
func (b *Broker) Subscribe(playerID string) *Subscription {
	ch := make(chan models.Event, subscriberBuffer)
	sub := &Subscription{PlayerID: playerID, C: ch, ch: ch, broker: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return sub
	}
	if b.subs[playerID] == nil {
		b.subs[playerID] = make(map[*Subscription]struct{})
	}
	b.subs[playerID][sub] = struct{}{}
	return sub
}

// Close unregisters the subscription and closes its channel
func (s *Subscription) Close() {
	s.once.Do(func() {
		b := s.broker
		b.mu.Lock()
		defer b.mu.Unlock()
		if set, ok := b.subs[s.PlayerID]; ok {
			if _, ok := set[s]; ok {
				delete(set, s)
				close(s.ch)
			}
			if len(set) == 0 {
				delete(b.subs, s.PlayerID)
			}
		}
	})
}

// Publish delivers an event without blocking; full subscribers miss it.
func (b *Broker) Publish(ev models.Event) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs[ev.PlayerID] {
		select {
		case sub.ch <- ev:
		default:
			slog.Warn("dropping mission event for slow subscriber",
				"player_id", ev.PlayerID,
				"type", ev.Type,
			)
		}
	}
}

// Players returns the IDs of players with at least one subscriber
func (b *Broker) Players() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.subs))
	for id := range b.subs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Shutdown closes every subscription
func (b *Broker) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for id, set := range b.subs {
		for sub := range set {
			close(sub.ch)
		}
		delete(b.subs, id)
	}
}
