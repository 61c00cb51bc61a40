package highlight

// history is the linear undo/redo stack: full snapshots of the highlight
// array plus a cursor. Mutations while suspended (mid-drag) do not push
// entries, so a partial drag state never lands in the stack.
type history struct {
	snapshots [][]Highlight
	idx       int
	suspended bool
}

func newHistory() *history {
	return &history{snapshots: [][]Highlight{nil}, idx: 0}
}

// push records a new snapshot, truncating any redo tail.
func (h *history) push(state []Highlight) {
	if h.suspended {
		return
	}
	h.snapshots = append(h.snapshots[:h.idx+1], cloneAll(state))
	h.idx = len(h.snapshots) - 1
}

func (h *history) undo() ([]Highlight, bool) {
	if h.idx == 0 {
		return nil, false
	}
	h.idx--
	return cloneAll(h.snapshots[h.idx]), true
}

func (h *history) redo() ([]Highlight, bool) {
	if h.idx >= len(h.snapshots)-1 {
		return nil, false
	}
	h.idx++
	return cloneAll(h.snapshots[h.idx]), true
}
