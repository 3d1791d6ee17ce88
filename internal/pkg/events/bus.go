package events

import (
	"sync"

	"github.com/rs/zerolog"

	"peerchat/internal/pkg/fifo"
	"peerchat/internal/pkg/logx"
)

// Bus dispatches events to per-kind handler lists.
//
// Subscribe registers a synchronous handler: it runs inline on the
// publishing goroutine, so it must be quick and must not re-enter a lock
// the publisher may hold. SubscribeAsync registers an asynchronous handler:
// it runs on the bus's single dispatch worker, which serializes every
// asynchronous handler across all kinds. Registration is additive — role
// handlers never replace shared ones — and for one published event the
// handlers of each flavor run in registration order.
type Bus struct {
	mu    sync.RWMutex
	sync  map[Kind][]Handler
	async map[Kind][]Handler

	queue  *fifo.Queue[Event]
	worker sync.WaitGroup

	logger zerolog.Logger
}

// NewBus constructs a Bus and starts its dispatch worker.
func NewBus() *Bus {
	b := &Bus{
		sync:   make(map[Kind][]Handler),
		async:  make(map[Kind][]Handler),
		queue:  fifo.New[Event](),
		logger: logx.Logger().With().Str("component", "events").Logger(),
	}

	b.worker.Add(1)
	go b.dispatchLoop()

	return b
}

// Subscribe registers h to run inline for every event of kind k.
func (b *Bus) Subscribe(k Kind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sync[k] = append(b.sync[k], h)
}

// SubscribeAsync registers h to run on the dispatch worker for every event
// of kind k.
func (b *Bus) SubscribeAsync(k Kind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.async[k] = append(b.async[k], h)
}

// Publish delivers e: synchronous handlers run before Publish returns;
// if any asynchronous handlers exist for the kind, e is enqueued for the
// dispatch worker. Publish never blocks on handler execution.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	syncHandlers := b.sync[e.EventKind()]
	hasAsync := len(b.async[e.EventKind()]) > 0
	b.mu.RUnlock()

	for _, h := range syncHandlers {
		h(e)
	}

	if hasAsync {
		if err := b.queue.Push(e); err != nil {
			b.logger.Warn().Int("kind", int(e.EventKind())).Msg("Event published after bus close, dropping.")
		}
	}
}

// Close stops the dispatch worker after it drains already-queued events.
func (b *Bus) Close() {
	b.queue.Close()
	b.worker.Wait()
}

func (b *Bus) dispatchLoop() {
	defer b.worker.Done()

	for {
		e, err := b.queue.Pop()
		if err != nil {
			return
		}

		b.mu.RLock()
		handlers := b.async[e.EventKind()]
		b.mu.RUnlock()

		for _, h := range handlers {
			h(e)
		}
	}
}
