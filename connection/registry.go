package connection

import (
	"sync"

	"github.com/webbben/code-duel-client/model"
)

// Callback handles one inbound message of the kind it was registered for.
type Callback func(msg model.Message)

type subscriber struct {
	id int
	fn Callback
}

// registry fans inbound messages out to subscribers keyed by message
// type. Subscribers for a kind are invoked in registration order.
type registry struct {
	mx   sync.Mutex
	next int
	subs map[string][]subscriber
}

func newRegistry() *registry {
	return &registry{
		subs: make(map[string][]subscriber),
	}
}

// add registers fn for the given message type and returns its remove
// function. Removing is safe at any time, including after the owning
// connection has closed, and is a no-op when already removed.
func (r *registry) add(kind string, fn Callback) func() {
	r.mx.Lock()
	id := r.next
	r.next++
	r.subs[kind] = append(r.subs[kind], subscriber{id: id, fn: fn})
	r.mx.Unlock()

	return func() {
		r.remove(kind, id)
	}
}

func (r *registry) remove(kind string, id int) {
	r.mx.Lock()
	defer r.mx.Unlock()

	subs := r.subs[kind]
	for i, s := range subs {
		if s.id == id {
			r.subs[kind] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// dispatch invokes all subscribers registered for the message's type.
// The subscriber list is copied first, so a callback may unsubscribe
// itself or others mid-dispatch.
func (r *registry) dispatch(msg model.Message) {
	r.mx.Lock()
	subs := make([]subscriber, len(r.subs[msg.Type]))
	copy(subs, r.subs[msg.Type])
	r.mx.Unlock()

	for _, s := range subs {
		s.fn(msg)
	}
}
