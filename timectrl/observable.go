package timectrl

import "sync"

// Event is a named notification raised by an entity. Handlers receive it for
// observability only; simulation semantics never depend on them.
type Event struct {
	Name   string
	Source string
	Fields map[string]any
}

// Handler receives triggered events.
type Handler func(Event)

// Observable is a named-event registry meant to be embedded in entities.
// The zero value is ready to use.
type Observable struct {
	mu       sync.RWMutex
	source   string
	handlers map[string][]*handlerEntry
	any      []*handlerEntry
}

type handlerEntry struct {
	fn Handler
}

// SetSource sets the Source attached to events triggered by this observable.
func (o *Observable) SetSource(source string) {
	o.mu.Lock()
	o.source = source
	o.mu.Unlock()
}

// On registers fn for events called name. It returns an unsubscribe function.
func (o *Observable) On(name string, fn Handler) (off func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.handlers == nil {
		o.handlers = make(map[string][]*handlerEntry)
	}
	entry := &handlerEntry{fn: fn}
	o.handlers[name] = append(o.handlers[name], entry)
	return func() { o.remove(name, entry) }
}

// OnAny registers fn for every event. It returns an unsubscribe function.
func (o *Observable) OnAny(fn Handler) (off func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	entry := &handlerEntry{fn: fn}
	o.any = append(o.any, entry)
	return func() { o.remove("", entry) }
}

func (o *Observable) remove(name string, entry *handlerEntry) {
	o.mu.Lock()
	defer o.mu.Unlock()
	list := o.any
	if name != "" {
		list = o.handlers[name]
	}
	for i, h := range list {
		if h == entry {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if name == "" {
		o.any = list
	} else {
		o.handlers[name] = list
	}
}

// Trigger notifies handlers registered for name and catch-all handlers.
// Handlers run outside the lock so they may register further handlers.
func (o *Observable) Trigger(name string, fields map[string]any) {
	o.mu.RLock()
	if len(o.handlers[name]) == 0 && len(o.any) == 0 {
		o.mu.RUnlock()
		return
	}
	subs := make([]*handlerEntry, 0, len(o.handlers[name])+len(o.any))
	subs = append(subs, o.handlers[name]...)
	subs = append(subs, o.any...)
	ev := Event{Name: name, Source: o.source, Fields: fields}
	o.mu.RUnlock()

	for _, h := range subs {
		h.fn(ev)
	}
}
