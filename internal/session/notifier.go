package session

import "sync"

// Notifier is the in-process "entry changed" event source. Subscribers are
// grouped by key (the session ID); Broadcast reaches every subscriber and is
// used when a change was observed without knowing which session it touched.
type Notifier struct {
	mu     sync.Mutex
	next   int
	subs   map[string]map[int]chan struct{}
	closed bool
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[string]map[int]chan struct{})}
}

// Subscribe registers interest in key. The returned channel has a buffer of
// one so a slow reader sees at most one pending signal.
func (n *Notifier) Subscribe(key string) (<-chan struct{}, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan struct{}, 1)
	if n.closed {
		close(ch)
		return ch, func() {}
	}
	id := n.next
	n.next++
	if n.subs[key] == nil {
		n.subs[key] = make(map[int]chan struct{})
	}
	n.subs[key][id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			if subs, ok := n.subs[key]; ok {
				if _, ok := subs[id]; ok {
					delete(subs, id)
					close(ch)
				}
				if len(subs) == 0 {
					delete(n.subs, key)
				}
			}
		})
	}
}

// Publish signals every subscriber of key without blocking.
func (n *Notifier) Publish(key string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs[key] {
		signal(ch)
	}
}

// Broadcast signals every subscriber of every key.
func (n *Notifier) Broadcast() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, subs := range n.subs {
		for _, ch := range subs {
			signal(ch)
		}
	}
}

// Close closes all subscriber channels. Later subscriptions receive an
// already-closed channel.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	for key, subs := range n.subs {
		for _, ch := range subs {
			close(ch)
		}
		delete(n.subs, key)
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
