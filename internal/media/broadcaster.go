package media

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lanikai/alohacap/internal/logging"
)

var log = logging.DefaultLogger.WithTag("media")

var errNotSubscribed = errors.New("not subscribed")

var droppedBuffers = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "alohacap",
	Subsystem: "media",
	Name:      "dropped_buffers_total",
	Help:      "Buffers discarded because a subscriber fell behind",
})

// Broadcaster fans each written buffer out to every subscriber. A subscriber
// that falls behind loses its oldest buffer rather than blocking the writer.
type Broadcaster struct {
	// Start is called when the first subscriber is added.
	Start func()

	// Stop is called when the last subscriber is removed.
	Stop func()

	subscribers []chan []byte

	sync.Mutex
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

func (b *Broadcaster) Subscribe(capacity int) <-chan []byte {
	b.Lock()
	defer b.Unlock()

	if capacity <= 0 {
		panic("media.Broadcaster: subscriber capacity must be positive")
	}

	s := make(chan []byte, capacity)
	b.subscribers = append(b.subscribers, s)
	if b.Start != nil && len(b.subscribers) == 1 {
		b.Start()
	}
	return s
}

// Unsubscribe removes and closes s.
func (b *Broadcaster) Unsubscribe(s <-chan []byte) error {
	b.Lock()
	defer b.Unlock()

	found := false
	for i, subscriber := range b.subscribers {
		if s == subscriber {
			subs := b.subscribers
			close(subs[i])
			subs[len(subs)-1], subs[i] = subs[i], subs[len(subs)-1]
			b.subscribers = subs[:len(subs)-1]
			found = true
			break
		}
	}
	if !found {
		return errNotSubscribed
	}

	if b.Stop != nil && len(b.subscribers) == 0 {
		// Stop may block on a loop that is itself writing to b.
		go b.Stop()
	}
	return nil
}

func (b *Broadcaster) Write(p []byte) (n int, err error) {
	b.Lock()
	defer b.Unlock()

	for _, subscriber := range b.subscribers {
		select {
		case subscriber <- p:
			continue
		default:
		}

		// Drop oldest buffer, add newest. Only writers send, and we hold the
		// lock, so the second send cannot block.
		select {
		case <-subscriber:
		default:
		}
		subscriber <- p
		droppedBuffers.Inc()
		log.Debug("subscriber missed a buffer")
	}

	return len(p), nil
}

func (b *Broadcaster) Subscribers() int {
	b.Lock()
	defer b.Unlock()
	return len(b.subscribers)
}

// Close closes every subscriber channel.
func (b *Broadcaster) Close() error {
	b.Lock()
	defer b.Unlock()

	for _, subscriber := range b.subscribers {
		close(subscriber)
	}
	if b.Stop != nil && len(b.subscribers) > 0 {
		go b.Stop()
	}
	b.subscribers = nil
	return nil
}
