package authsession

import (
	"log/slog"
	"sync"
)

// hub fans transitions out to subscribers. Each subscriber has its own
// goroutine and an unbounded queue, so a slow callback delays only itself and
// never the manager.
type hub struct {
	mu     sync.Mutex
	subs   map[uint64]*subscriber
	nextID uint64
	closed bool
	logger *slog.Logger
}

func newHub(logger *slog.Logger) *hub {
	return &hub{
		subs:   make(map[uint64]*subscriber),
		logger: logger,
	}
}

type subscriber struct {
	fn     func(Event)
	logger *slog.Logger

	mu      sync.Mutex
	pending []Event
	stopped bool
	wake    chan struct{}
	done    chan struct{}
}

func newSubscriber(fn func(Event), logger *slog.Logger) *subscriber {
	s := &subscriber{
		fn:     fn,
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *subscriber) enqueue(ev Event) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.wake:
		case <-s.done:
			return
		}

		for {
			s.mu.Lock()
			if s.stopped || len(s.pending) == 0 {
				s.pending = nil
				s.mu.Unlock()
				break
			}
			ev := s.pending[0]
			s.pending[0] = Event{}
			s.pending = s.pending[1:]
			s.mu.Unlock()

			s.deliver(ev)
		}
	}
}

func (s *subscriber) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session subscriber panicked", "reason", string(ev.Reason), "panic", r)
		}
	}()
	s.fn(ev)
}

func (s *subscriber) stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.pending = nil
	s.mu.Unlock()
	close(s.done)
}

// add registers fn and queues first as its initial delivery while holding the
// hub lock, so no transition can slip between the snapshot and registration.
func (h *hub) add(fn func(Event), first func() Event) (func(), bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return func() {}, false
	}

	id := h.nextID
	h.nextID++
	sub := newSubscriber(fn, h.logger)
	sub.enqueue(first())
	h.subs[id] = sub

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			sub.stop()
		})
	}, true
}

// publish runs swap and queues the resulting event to every subscriber
// atomically with respect to add.
func (h *hub) publish(swap func() (Event, bool)) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ev, notify := swap()
	if !notify || h.closed {
		return
	}
	for _, sub := range h.subs {
		e := ev
		e.Session = ev.Session.clone()
		sub.enqueue(e)
	}
}

func (h *hub) close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := h.subs
	h.subs = nil
	h.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
}

func (h *hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
