package result

import (
	"reflect"
	"testing"
)

func TestNew(t *testing.T) {
	h := New(7, 0.5)
	if h.ChunkID() != 7 {
		t.Errorf("ChunkID() = %d", h.ChunkID())
	}
	if h.Score() != 0.5 {
		t.Errorf("Score() = %f", h.Score())
	}
}

func TestHits_Sort(t *testing.T) {
	hs := Hits{New(3, 0.2), New(2, 0.9), New(0, 0.2), New(1, 0.5)}
	hs.Sort()

	want := []int{2, 1, 0, 3}
	if got := hs.IDs(); !reflect.DeepEqual(got, want) {
		t.Errorf("IDs() = %v, want %v", got, want)
	}
	for i := 1; i < len(hs); i++ {
		if hs[i-1].Score() < hs[i].Score() {
			t.Errorf("scores not descending at %d: %f < %f", i, hs[i-1].Score(), hs[i].Score())
		}
	}
}

func TestHits_Top(t *testing.T) {
	if _, ok := (Hits{}).Top(); ok {
		t.Error("Top() on empty hits should report !ok")
	}
	top, ok := Hits{New(4, 0.8), New(1, 0.3)}.Top()
	if !ok || top.ChunkID() != 4 {
		t.Errorf("Top() = %v, %v", top, ok)
	}
}

func TestHits_Find(t *testing.T) {
	hs := Hits{New(0, 0.9), New(2, 0.4)}

	h, ok := hs.Find(2)
	if !ok || h.Score() != 0.4 {
		t.Errorf("Find(2) = %v, %v", h, ok)
	}
	if _, ok := hs.Find(5); ok {
		t.Error("Find(5) should report !ok")
	}
}
