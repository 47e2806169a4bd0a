// Package dedup tracks which event IDs have already been announced.
package dedup

import (
	"container/list"
	"sync"
	"time"
)

// Guard is a TTL-bound LRU of announced event IDs.
//
// Events age out of the announcer's recency window on their own, so entries
// older than the TTL can be evicted safely; the cap bounds memory if a
// burst outruns the TTL. The guard is authoritative only for the current
// process; persistence (storage.Store) is a best-effort warm start.
type Guard struct {
	mu    sync.Mutex
	cap   int
	ttl   time.Duration
	ll    *list.List               // most-recent at front
	items map[string]*list.Element // key -> element
}

type entry struct {
	key string
	exp time.Time
}

func New(maxKeys int, ttl time.Duration) *Guard {
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Guard{cap: maxKeys, ttl: ttl, ll: list.New(), items: make(map[string]*list.Element, maxKeys)}
}

// Seen reports whether the key was marked within the TTL.
func (g *Guard) Seen(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if el, ok := g.items[key]; ok {
		en := el.Value.(entry)
		if time.Now().Before(en.exp) {
			// touch LRU
			g.ll.MoveToFront(el)
			return true
		}
		// expired
		g.ll.Remove(el)
		delete(g.items, key)
	}
	return false
}

// Mark records the key, refreshing its TTL if already present.
func (g *Guard) Mark(key string) {
	g.markUntil(key, time.Now().Add(g.ttl))
}

// Warm seeds an entry with an explicit expiry, used when reloading the
// announced set from storage at startup. Already-expired entries are
// ignored.
func (g *Guard) Warm(key string, until time.Time) {
	if !time.Now().Before(until) {
		return
	}
	g.markUntil(key, until)
}

func (g *Guard) markUntil(key string, exp time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if el, ok := g.items[key]; ok {
		en := el.Value.(entry)
		en.exp = exp
		el.Value = en
		g.ll.MoveToFront(el)
		return
	}
	el := g.ll.PushFront(entry{key: key, exp: exp})
	g.items[key] = el

	// Evict over cap, then sweep expired entries off the tail.
	for g.ll.Len() > g.cap {
		t := g.ll.Back()
		if t == nil {
			break
		}
		old := t.Value.(entry)
		g.ll.Remove(t)
		delete(g.items, old.key)
	}
	for {
		t := g.ll.Back()
		if t == nil {
			break
		}
		if time.Now().Before(t.Value.(entry).exp) {
			break
		}
		g.ll.Remove(t)
		delete(g.items, t.Value.(entry).key)
	}
}

// Len reports the current number of tracked keys.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ll.Len()
}
