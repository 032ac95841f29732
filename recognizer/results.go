package recognizer

import "sync"

// Results holds one slot per region index, last-write-wins. No history is
// retained; readers take snapshot copies.
type Results struct {
	mu    sync.Mutex
	slots map[int]Result
}

func NewResults() *Results {
	return &Results{slots: make(map[int]Result)}
}

func (r *Results) Put(res Result) {
	r.mu.Lock()
	r.slots[res.RegionIndex] = res
	r.mu.Unlock()
}

func (r *Results) Get(index int) (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.slots[index]
	return res, ok
}

// Snapshot returns a copy of the slot map, safe to iterate while new
// results keep arriving.
func (r *Results) Snapshot() map[int]Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int]Result, len(r.slots))
	for k, v := range r.slots {
		out[k] = v
	}
	return out
}

func (r *Results) Clear() {
	r.mu.Lock()
	r.slots = make(map[int]Result)
	r.mu.Unlock()
}
