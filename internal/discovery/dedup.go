package discovery

import (
	"container/list"
	"sync"
)

// dedupLRU is a small, fixed-capacity set used to recognize pair ids already
// delivered to risk analysis. No pack repo
// carries a standalone generic LRU package, so this is a justified direct
// use of container/list rather than a third-party dependency.
type dedupLRU struct {
	mu sync.Mutex
	capacity int
	ll *list.List
	index map[string]*list.Element
}

func newDedupLRU(capacity int) *dedupLRU {
	return &dedupLRU{
		capacity: capacity,
		ll: list.New(),
		index: make(map[string]*list.Element, capacity),
	}
}

// SeenOrAdd returns true if key was already recorded; otherwise it records
// key as most-recently-seen and returns false.
func (d *dedupLRU) SeenOrAdd(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.index[key]; ok {
		d.ll.MoveToFront(el)
		return true
	}

	el := d.ll.PushFront(key)
	d.index[key] = el

	if d.ll.Len() > d.capacity {
		oldest := d.ll.Back()
		if oldest != nil {
			d.ll.Remove(oldest)
			delete(d.index, oldest.Value.(string))
		}
	}
	return false
}
