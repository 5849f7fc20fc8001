package model

// WorkingSet is a set of device references unique by id.
// Iteration follows first insertion order.
type WorkingSet struct {
	index map[string]int
	refs  []DeviceReference
}

func NewWorkingSet() *WorkingSet {
	return &WorkingSet{index: map[string]int{}}
}

// Add inserts ref unless a reference with the same id is present,
// and reports whether it was inserted.
func (w *WorkingSet) Add(ref DeviceReference) bool {
	if ref.ID == "" {
		return false
	}

	if w.index == nil {
		w.index = map[string]int{}
	}

	if _, ok := w.index[ref.ID]; ok {
		return false
	}

	w.index[ref.ID] = len(w.refs)
	w.refs = append(w.refs, ref)

	return true
}

// Contains, Len, References and IDs treat a nil set as empty.
func (w *WorkingSet) Contains(id string) bool {
	if w == nil {
		return false
	}

	_, ok := w.index[id]
	return ok
}

func (w *WorkingSet) Len() int {
	if w == nil {
		return 0
	}

	return len(w.refs)
}

// References returns a copy of the references in insertion order.
func (w *WorkingSet) References() []DeviceReference {
	if w == nil {
		return []DeviceReference{}
	}

	out := make([]DeviceReference, len(w.refs))
	copy(out, w.refs)

	return out
}

// IDs returns the reference ids in insertion order.
func (w *WorkingSet) IDs() []string {
	if w == nil {
		return []string{}
	}

	ids := make([]string, 0, len(w.refs))
	for _, r := range w.refs {
		ids = append(ids, r.ID)
	}

	return ids
}
