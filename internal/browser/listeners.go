package browser

import "sync"

// responseListeners fans one engine response subscription out to any number of
// callbacks, each removable on its own.
type responseListeners struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(Response)
}

func (l *responseListeners) add(fn func(Response)) (remove func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func(Response))
	}
	id := l.next
	l.next++
	l.fns[id] = fn

	return func() {
		l.mu.Lock()
		delete(l.fns, id)
		l.mu.Unlock()
	}
}

func (l *responseListeners) dispatch(r Response) {
	l.mu.Lock()
	fns := make([]func(Response), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(r)
	}
}
