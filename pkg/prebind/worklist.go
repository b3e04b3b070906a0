package prebind

// A reference is an undefined symbol some linked module needs.
type reference struct {
	name string
	from *Library
	isym uint32
}

// worklist is a FIFO of references that admits each key once.
type worklist struct {
	items []reference
	seen  map[string]struct{}
}

func (w *worklist) init() {
	w.items = nil
	w.seen = make(map[string]struct{})
}

// Push queues r under key and reports whether it was new.
func (w *worklist) Push(key string, r reference) bool {
	if _, ok := w.seen[key]; ok {
		return false
	}
	w.seen[key] = struct{}{}
	w.items = append(w.items, r)
	return true
}

func (w *worklist) Pop() (reference, bool) {
	if len(w.items) == 0 {
		return reference{}, false
	}
	r := w.items[0]
	w.items = w.items[1:]
	return r, true
}

func (w *worklist) Len() int { return len(w.items) }
