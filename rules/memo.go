package rules

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultMemoSize = 4096

type memoKey struct {
	set     string
	profile string
}

// Memo caches Evaluate results per (set, profile) pair. A nil *Memo
// evaluates directly.
type Memo struct {
	cache *lru.Cache[memoKey, bool]
}

func NewMemo(size int) (*Memo, error) {
	if size <= 0 {
		size = DefaultMemoSize
	}
	c, err := lru.New[memoKey, bool](size)
	if err != nil {
		return nil, err
	}
	return &Memo{cache: c}, nil
}

func (m *Memo) Evaluate(s Set, p Profile) bool {
	if m == nil {
		return Evaluate(s, p)
	}
	if len(s) == 0 {
		return true
	}
	k := memoKey{set: s.Key(), profile: p.Key()}
	if v, ok := m.cache.Get(k); ok {
		return v
	}
	v := Evaluate(s, p)
	m.cache.Add(k, v)
	return v
}

func (m *Memo) Len() int {
	if m == nil {
		return 0
	}
	return m.cache.Len()
}
