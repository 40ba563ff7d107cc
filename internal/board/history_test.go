package board

import (
	"image"
	"testing"
)

func snap(id uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Pix[0], img.Pix[3] = id, 0xff
	return img
}

func commit(t *testing.T, h *History, img *image.RGBA) {
	t.Helper()
	if err := h.Commit(img); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
}

func TestHistoryBoundariesAreNoOps(t *testing.T) {
	h := NewHistory(0)
	if _, ok := h.Undo(); ok {
		t.Error("Undo on empty history should be a no-op")
	}
	commit(t, h, snap(0))
	if _, ok := h.Undo(); ok {
		t.Error("Undo at the oldest entry should be a no-op")
	}
	if _, ok := h.Redo(); ok {
		t.Error("Redo at the newest entry should be a no-op")
	}
}

func TestHistoryCommitTruncatesRedo(t *testing.T) {
	h := NewHistory(0)
	for i := uint8(0); i < 4; i++ {
		commit(t, h, snap(i))
	}
	h.Undo()
	h.Undo()
	if !h.CanRedo() {
		t.Fatal("Expected redo entries after undo")
	}

	commit(t, h, snap(9))
	if h.CanRedo() {
		t.Error("Commit after undo must discard redo entries")
	}
	if h.Len() != 3 || h.Step() != 2 {
		t.Errorf("Expected len 3 step 2, got len %d step %d", h.Len(), h.Step())
	}
	cur, _ := h.Current()
	if cur.Pix[0] != 9 {
		t.Errorf("Expected current snapshot 9, got %d", cur.Pix[0])
	}
}

func TestHistoryLimitDropsOldest(t *testing.T) {
	h := NewHistory(3)
	for i := uint8(0); i < 5; i++ {
		commit(t, h, snap(i))
	}
	if h.Len() != 3 || h.Step() != 2 {
		t.Fatalf("Expected len 3 step 2, got len %d step %d", h.Len(), h.Step())
	}
	h.Undo()
	img, _ := h.Undo()
	if img.Pix[0] != 2 {
		t.Errorf("Oldest retained snapshot should be 2, got %d", img.Pix[0])
	}
}

func TestHistoryRoundTripsPixels(t *testing.T) {
	e := newTestEngine(t)
	strokeAt(t, e, 20)
	want := e.Snapshot()

	h := NewHistory(0)
	commit(t, h, want)
	got, ok := h.Current()
	if !ok || !Equal(got, want) {
		t.Error("Snapshot should decode to the committed raster")
	}
}

func TestDefaultHistoryMemoryIsBounded(t *testing.T) {
	opts := DefaultOptions()
	e, err := NewEngine("C1", "me", opts)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	for i := 0; i < opts.HistoryLimit*2; i++ {
		y := float64(10 + (i*13)%(opts.Height-20))
		if _, err := e.PointerDown(10, y); err != nil {
			t.Fatal(err)
		}
		e.PointerMove(float64(opts.Width/2), y+5)
		if _, err := e.PointerUp(float64(opts.Width-10), y); err != nil {
			t.Fatal(err)
		}
	}

	if e.history.Len() != opts.HistoryLimit {
		t.Fatalf("Expected %d retained snapshots, got %d", opts.HistoryLimit, e.history.Len())
	}
	raw := opts.Width * opts.Height * 4 * opts.HistoryLimit
	if got := e.history.Bytes(); got > raw/20 {
		t.Errorf("History holds %d bytes, want under %d (raw %d)", got, raw/20, raw)
	}
}
