package eviction

type lfuNode struct {
	key  string
	freq int
	seq  uint64 // insertion order, breaks frequency ties
}

type lfuPolicy struct {
	nodes   map[string]*lfuNode
	buckets map[int]map[string]*lfuNode
	minFreq int
	nextSeq uint64
}

func newLFU() *lfuPolicy {
	return &lfuPolicy{
		nodes:   make(map[string]*lfuNode),
		buckets: make(map[int]map[string]*lfuNode),
	}
}

func (p *lfuPolicy) OnAccess(key string) {
	n, ok := p.nodes[key]
	if !ok {
		return
	}

	old := n.freq
	n.freq++

	delete(p.buckets[old], key)
	if len(p.buckets[old]) == 0 {
		delete(p.buckets, old)
		if p.minFreq == old {
			p.minFreq++
		}
	}

	p.addToBucket(n)
}

func (p *lfuPolicy) OnInsert(key string, size int64) {
	if _, ok := p.nodes[key]; ok {
		// Already tracked. Tiers call Remove before re-inserting an
		// overwritten key, so its frequency restarts at 1.
		return
	}

	p.nextSeq++
	n := &lfuNode{key: key, freq: 1, seq: p.nextSeq}
	p.nodes[key] = n
	p.addToBucket(n)
	p.minFreq = 1
}

func (p *lfuPolicy) Candidate() (string, bool) {
	if len(p.nodes) == 0 {
		return "", false
	}

	bucket := p.buckets[p.minFreq]
	if len(bucket) == 0 {
		// minFreq drifted after removals; rescan
		p.resetMinFreq()
		bucket = p.buckets[p.minFreq]
		if len(bucket) == 0 {
			return "", false
		}
	}

	var oldest *lfuNode
	for _, n := range bucket {
		if oldest == nil || n.seq < oldest.seq {
			oldest = n
		}
	}
	return oldest.key, true
}

func (p *lfuPolicy) Remove(key string) {
	n, ok := p.nodes[key]
	if !ok {
		return
	}
	delete(p.nodes, key)
	delete(p.buckets[n.freq], key)
	if len(p.buckets[n.freq]) == 0 {
		delete(p.buckets, n.freq)
	}
}

func (p *lfuPolicy) Len() int {
	return len(p.nodes)
}

func (p *lfuPolicy) addToBucket(n *lfuNode) {
	if p.buckets[n.freq] == nil {
		p.buckets[n.freq] = make(map[string]*lfuNode)
	}
	p.buckets[n.freq][n.key] = n
}

func (p *lfuPolicy) resetMinFreq() {
	p.minFreq = 0
	for freq, bucket := range p.buckets {
		if len(bucket) == 0 {
			continue
		}
		if p.minFreq == 0 || freq < p.minFreq {
			p.minFreq = freq
		}
	}
}
