package recognizer

import "testing"

func TestResultsLastWriteWins(t *testing.T) {
	r := NewResults()
	r.Put(Result{RegionIndex: 0, Text: "first", Timestamp: 1})
	r.Put(Result{RegionIndex: 0, Text: "second", Timestamp: 0.5}) // older timestamp still wins
	r.Put(Result{RegionIndex: 1, Text: "other", Timestamp: 2})

	got, ok := r.Get(0)
	if !ok || got.Text != "second" {
		t.Errorf("Get(0) = %+v ok=%v, want text %q", got, ok, "second")
	}
	if got, _ := r.Get(1); got.Text != "other" {
		t.Errorf("Get(1).Text = %q", got.Text)
	}
}

func TestResultsSnapshotIsCopy(t *testing.T) {
	r := NewResults()
	r.Put(Result{RegionIndex: 0, Text: "abc"})

	snap := r.Snapshot()
	r.Put(Result{RegionIndex: 0, Text: "def"})

	if snap[0].Text != "abc" {
		t.Errorf("snapshot mutated: %q", snap[0].Text)
	}
	if got, _ := r.Get(0); got.Text != "def" {
		t.Errorf("store not updated: %q", got.Text)
	}
}

func TestResultsClear(t *testing.T) {
	r := NewResults()
	r.Put(Result{RegionIndex: 3, Text: "x"})
	r.Clear()
	if _, ok := r.Get(3); ok {
		t.Error("slot survived Clear")
	}
}
