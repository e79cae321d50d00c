package eviction

import (
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// lruIndexSlack leaves headroom above the tier's item bound so the index
// never evicts on its own; the tier drives all eviction through Candidate.
const lruIndexSlack = 16

// defaultLRUIndexSize bounds the index when the tier is limited only by
// bytes and no item count is known.
const defaultLRUIndexSize = 1 << 20

type lruPolicy struct {
	index *simplelru.LRU[string, int64]
}

func newLRU(capacityHint int) (*lruPolicy, error) {
	size := defaultLRUIndexSize
	if capacityHint > 0 {
		size = capacityHint + lruIndexSlack
	}

	index, err := simplelru.NewLRU[string, int64](size, nil)
	if err != nil {
		return nil, err
	}
	return &lruPolicy{index: index}, nil
}

func (p *lruPolicy) OnAccess(key string) {
	p.index.Get(key)
}

func (p *lruPolicy) OnInsert(key string, size int64) {
	p.index.Add(key, size)
}

func (p *lruPolicy) Candidate() (string, bool) {
	key, _, ok := p.index.GetOldest()
	return key, ok
}

func (p *lruPolicy) Remove(key string) {
	p.index.Remove(key)
}

func (p *lruPolicy) Len() int {
	return p.index.Len()
}
