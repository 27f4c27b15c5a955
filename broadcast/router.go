package broadcast

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"boardsync/domain"
)

// WorkspaceRoom returns the room key scoping events to one workspace.
func WorkspaceRoom(workspaceID string) string {
	return "workspace:" + workspaceID
}

// ResourceRoom returns the room key for a finer-grained scope, e.g. a
// single column or task.
func ResourceRoom(kind, id string) string {
	return kind + ":" + id
}

// Publisher propagates an emitted event to other server processes.
type Publisher interface {
	Publish(ctx context.Context, room string, ev domain.Event) error
}

// Router is a room-based pub/sub hub. A subscriber joins rooms
// explicitly and receives every event emitted into any of them.
// Delivery is at-most-once: a subscriber whose buffer is full misses
// the event and catches up on its next refresh.
//
// The Router is constructed once at process start and passed by
// reference to every component that emits; there is no package-level
// instance.
type Router struct {
	logger *log.Logger

	mu    sync.Mutex
	rooms map[string]map[*Subscriber]struct{}
	pub   Publisher
}

// NewRouter creates an empty Router.
func NewRouter(logger *log.Logger) *Router {
	return &Router{logger: logger, rooms: make(map[string]map[*Subscriber]struct{})}
}

// AttachPublisher adds a cross-process publisher invoked on every Emit.
func (r *Router) AttachPublisher(pub Publisher) {
	r.mu.Lock()
	r.pub = pub
	r.mu.Unlock()
}

// Subscriber is one connection's membership in a set of rooms.
type Subscriber struct {
	router *Router
	ch     chan domain.Event

	mu     sync.Mutex
	rooms  map[string]struct{}
	closed bool
}

// Subscribe registers a new subscriber with the given event buffer.
func (r *Router) Subscribe(buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = 16
	}
	return &Subscriber{
		router: r,
		ch:     make(chan domain.Event, buffer),
		rooms:  make(map[string]struct{}),
	}
}

// Events returns the subscriber's delivery channel.
func (s *Subscriber) Events() <-chan domain.Event {
	return s.ch
}

// Join adds the subscriber to a room. Joining twice is a no-op.
func (s *Subscriber) Join(room string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.rooms[room] = struct{}{}
	s.mu.Unlock()

	r := s.router
	r.mu.Lock()
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[*Subscriber]struct{})
		r.rooms[room] = members
	}
	members[s] = struct{}{}
	r.mu.Unlock()
}

// Leave removes the subscriber from a room.
func (s *Subscriber) Leave(room string) {
	s.mu.Lock()
	delete(s.rooms, room)
	s.mu.Unlock()

	r := s.router
	r.mu.Lock()
	if members, ok := r.rooms[room]; ok {
		delete(members, s)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	r.mu.Unlock()
}

// Close leaves every room and releases the subscriber. The events
// channel is not closed so concurrent emits stay safe; readers must
// stop on their own context.
func (s *Subscriber) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	rooms := make([]string, 0, len(s.rooms))
	for room := range s.rooms {
		rooms = append(rooms, room)
	}
	s.mu.Unlock()

	for _, room := range rooms {
		s.Leave(room)
	}
}

// Emit fans an event out to every current member of the room, the
// acting user's own sessions included, and forwards it to the attached
// publisher so other processes can do the same.
func (r *Router) Emit(ctx context.Context, room string, ev domain.Event) {
	r.emitLocal(room, ev)

	r.mu.Lock()
	pub := r.pub
	r.mu.Unlock()
	if pub != nil {
		if err := pub.Publish(ctx, room, ev); err != nil {
			r.logger.Errorf("publish %s to %s: %v", ev.Name, room, err)
		}
	}
}

func (r *Router) emitLocal(room string, ev domain.Event) {
	r.mu.Lock()
	members := make([]*Subscriber, 0, len(r.rooms[room]))
	for s := range r.rooms[room] {
		members = append(members, s)
	}
	r.mu.Unlock()

	for _, s := range members {
		select {
		case s.ch <- ev:
		default:
			r.logger.Debugf("subscriber buffer full, dropping %s in %s", ev.Name, room)
		}
	}
}
