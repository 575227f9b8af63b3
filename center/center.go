// Package center is a process-local broadcast channel addressed by name.
//
// Components subscribe to a name without knowing who posts to it. Posting
// never blocks: a subscriber whose buffer is full misses the post and the
// drop is counted.
package center

import (
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the subscription buffer used when Subscribe is given a
// non-positive size.
const DefaultBuffer = 16

// Post is a single broadcast.
type Post struct {
	Name     string
	UserInfo map[string]any
}

// Subscription receives posts for one name until cancelled.
type Subscription struct {
	// C carries posts. It is closed by Cancel.
	C <-chan Post

	name    string
	ch      chan Post
	center  *Center
	dropped atomic.Int64
	once    sync.Once
}

// Name returns the subscribed name.
func (s *Subscription) Name() string { return s.name }

// Dropped returns how many posts were missed because the buffer was full.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Cancel unsubscribes and closes C. It is safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.center.remove(s)
	})
}

// Center routes posts to subscribers by name.
type Center struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

// New creates an empty Center.
func New() *Center {
	return &Center{subs: make(map[string]map[*Subscription]struct{})}
}

// Subscribe registers for posts under name.
func (c *Center) Subscribe(name string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan Post, buffer)
	s := &Subscription{C: ch, name: name, ch: ch, center: c}

	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.subs[name]
	if !ok {
		set = make(map[*Subscription]struct{})
		c.subs[name] = set
	}
	set[s] = struct{}{}
	return s
}

// Post delivers userInfo to every current subscriber of name and returns
// the number of subscribers that accepted it. Each subscriber gets its own
// shallow copy of userInfo.
func (c *Center) Post(name string, userInfo map[string]any) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	delivered := 0
	for s := range c.subs[name] {
		p := Post{Name: name, UserInfo: cloneInfo(userInfo)}
		select {
		case s.ch <- p:
			delivered++
		default:
			s.dropped.Add(1)
		}
	}
	return delivered
}

// Subscribers returns the number of live subscriptions for name.
func (c *Center) Subscribers(name string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs[name])
}

func (c *Center) remove(s *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if set, ok := c.subs[s.name]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(c.subs, s.name)
		}
	}
	close(s.ch)
}

func cloneInfo(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
