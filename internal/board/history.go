package board

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	xdraw "golang.org/x/image/draw"
)

// snapshotEncoder trades ratio for speed; a snapshot is taken on every stroke end.
var snapshotEncoder = png.Encoder{CompressionLevel: png.BestSpeed}

// History is a linear undo stack of full-canvas snapshots with a cursor.
// Snapshots are held PNG-encoded; a mostly white board compresses to a few KiB.
// Invariant: 0 <= step < len(snapshots) whenever snapshots is non-empty.
type History struct {
	snapshots [][]byte
	step      int
	limit     int
}

// NewHistory keeps at most limit snapshots; 0 means unbounded.
func NewHistory(limit int) *History {
	return &History{step: -1, limit: limit}
}

// Commit truncates everything after the cursor and appends an encoded copy of img.
func (h *History) Commit(img *image.RGBA) error {
	var buf bytes.Buffer
	if err := snapshotEncoder.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	h.snapshots = append(h.snapshots[:h.step+1], buf.Bytes())
	if h.limit > 0 && len(h.snapshots) > h.limit {
		drop := len(h.snapshots) - h.limit
		for i := 0; i < drop; i++ {
			h.snapshots[i] = nil
		}
		h.snapshots = h.snapshots[drop:]
	}
	h.step = len(h.snapshots) - 1
	return nil
}

// Undo moves the cursor back and returns the snapshot there.
// It is a no-op at the oldest entry.
func (h *History) Undo() (*image.RGBA, bool) {
	if h.step <= 0 {
		return nil, false
	}
	img, err := decodeSnapshot(h.snapshots[h.step-1])
	if err != nil {
		return nil, false
	}
	h.step--
	return img, true
}

// Redo moves the cursor forward; a no-op at the newest entry.
func (h *History) Redo() (*image.RGBA, bool) {
	if h.step < 0 || h.step >= len(h.snapshots)-1 {
		return nil, false
	}
	img, err := decodeSnapshot(h.snapshots[h.step+1])
	if err != nil {
		return nil, false
	}
	h.step++
	return img, true
}

// Current returns the snapshot under the cursor.
func (h *History) Current() (*image.RGBA, bool) {
	if h.step < 0 {
		return nil, false
	}
	img, err := decodeSnapshot(h.snapshots[h.step])
	if err != nil {
		return nil, false
	}
	return img, true
}

func (h *History) CanUndo() bool { return h.step > 0 }
func (h *History) CanRedo() bool { return h.step >= 0 && h.step < len(h.snapshots)-1 }
func (h *History) Len() int      { return len(h.snapshots) }
func (h *History) Step() int     { return h.step }

// Bytes returns the encoded size of every retained snapshot.
func (h *History) Bytes() int {
	n := 0
	for _, s := range h.snapshots {
		n += len(s)
	}
	return n
}

func decodeSnapshot(b []byte) (*image.RGBA, error) {
	img, err := png.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba, nil
	}
	rgba := image.NewRGBA(img.Bounds())
	xdraw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, xdraw.Src)
	return rgba, nil
}
