// Package region holds the authoritative set of user-defined rectangles
// tracked for text extraction. The model is the single owner of the
// committed set; readers always get snapshot copies.
package region

import (
	"image"
	"sync"
)

// MinSize is the exclusive lower bound for a committed region's width and
// height. Anything at or below it is treated as an accidental click-drag
// and silently discarded.
const MinSize = 20

// Region is a rectangle in frame-source pixel coordinates. Index is dense
// and contiguous 0..N-1 across the committed set at all times.
type Region struct {
	Index  int
	X      int
	Y      int
	Width  int
	Height int
}

// Rect returns the region's bounding box as an image.Rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Draft is an in-progress rectangle while the pointer is down. It is not
// part of the committed set until released and passing MinSize.
type Draft struct {
	X      int
	Y      int
	Width  int
	Height int
}

// DraftFromDrag normalizes two pointer positions into a draft rectangle
// with non-negative width and height.
func DraftFromDrag(x0, y0, x1, y1 int) Draft {
	return Draft{
		X:      min(x0, x1),
		Y:      min(y0, y1),
		Width:  abs(x1 - x0),
		Height: abs(y1 - y0),
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Model is the authoritative region set. All mutation goes through it;
// readers receive copies and never see live storage.
type Model struct {
	mu      sync.Mutex
	regions []Region
	locked  bool
}

func NewModel() *Model {
	return &Model{}
}

// Add commits a rectangle. Degenerate rectangles (width or height at or
// below MinSize) are dropped, and mutation while locked is a no-op; both
// return false. The assigned index is always the current set size.
func (m *Model) Add(r Region) bool {
	if r.Width <= MinSize || r.Height <= MinSize {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked {
		return false
	}
	r.Index = len(m.regions)
	m.regions = append(m.regions, r)
	return true
}

// CommitDraft promotes a draft to a committed region, subject to the same
// rules as Add.
func (m *Model) CommitDraft(d Draft) bool {
	return m.Add(Region{X: d.X, Y: d.Y, Width: d.Width, Height: d.Height})
}

// Remove deletes the region at index and renumbers every subsequent region
// down by one, keeping indices dense. Callers must not assume index
// stability across a removal.
func (m *Model) Remove(index int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked || index < 0 || index >= len(m.regions) {
		return false
	}
	m.regions = append(m.regions[:index], m.regions[index+1:]...)
	for i := index; i < len(m.regions); i++ {
		m.regions[i].Index = i
	}
	return true
}

// List returns a snapshot copy of the committed set in index order.
func (m *Model) List() []Region {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Region, len(m.regions))
	copy(out, m.regions)
	return out
}

func (m *Model) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.regions)
}

// SetLocked freezes the set while a recording is armed. The UI is expected
// to disable the affecting controls, but the model enforces the invariant
// itself.
func (m *Model) SetLocked(locked bool) {
	m.mu.Lock()
	m.locked = locked
	m.mu.Unlock()
}

func (m *Model) Locked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked
}
