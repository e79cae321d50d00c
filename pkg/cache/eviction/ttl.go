package eviction

import (
	"container/list"
	"time"
)

type ttlNode struct {
	key       string
	expiresAt time.Time
	elem      *list.Element
}

// ttlPolicy prefers evicting entries that are already expired. When nothing
// has expired it falls back to oldest insertion (FIFO) so that eviction
// always makes progress under capacity pressure.
type ttlPolicy struct {
	nodes map[string]*ttlNode
	order *list.List // insertion order, front = oldest
	now   func() time.Time
}

func newTTL() *ttlPolicy {
	return &ttlPolicy{
		nodes: make(map[string]*ttlNode),
		order: list.New(),
		now:   time.Now,
	}
}

func (p *ttlPolicy) OnAccess(key string) {}

func (p *ttlPolicy) OnInsert(key string, size int64) {
	if _, ok := p.nodes[key]; ok {
		return
	}
	n := &ttlNode{key: key}
	n.elem = p.order.PushBack(n)
	p.nodes[key] = n
}

// SetClock implements ClockAware
func (p *ttlPolicy) SetClock(now func() time.Time) {
	if now != nil {
		p.now = now
	}
}

// SetExpiry implements ExpiryAware
func (p *ttlPolicy) SetExpiry(key string, expiresAt time.Time) {
	if n, ok := p.nodes[key]; ok {
		n.expiresAt = expiresAt
	}
}

func (p *ttlPolicy) Candidate() (string, bool) {
	if p.order.Len() == 0 {
		return "", false
	}

	now := p.now()
	for elem := p.order.Front(); elem != nil; elem = elem.Next() {
		n := elem.Value.(*ttlNode)
		if !n.expiresAt.IsZero() && now.After(n.expiresAt) {
			return n.key, true
		}
	}

	// Nothing expired; oldest insertion keeps eviction moving
	return p.order.Front().Value.(*ttlNode).key, true
}

func (p *ttlPolicy) Remove(key string) {
	n, ok := p.nodes[key]
	if !ok {
		return
	}
	p.order.Remove(n.elem)
	delete(p.nodes, key)
}

func (p *ttlPolicy) Len() int {
	return len(p.nodes)
}
