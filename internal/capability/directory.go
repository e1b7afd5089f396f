package capability

import (
	"fmt"
	"sort"
)

// Directory maps capability ids to their entries and bound workers.
// It is read-only after construction and safe for concurrent use.
type Directory struct {
	entries map[string]Entry
	workers map[string]Worker
	ordered []string
}

// New builds a directory from entries. When binder is non-nil every entry is
// bound to its worker variant once, here; lookups never dispatch on mode again.
func New(entries []Entry, binder *Binder) (*Directory, error) {
	d := &Directory{
		entries: make(map[string]Entry, len(entries)),
		workers: make(map[string]Worker, len(entries)),
	}

	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		if _, dup := d.entries[e.ID]; dup {
			return nil, fmt.Errorf("duplicate capability id %q", e.ID)
		}
		d.entries[e.ID] = e.clone()
		d.ordered = append(d.ordered, e.ID)

		if binder != nil {
			w, err := binder.Bind(e)
			if err != nil {
				return nil, fmt.Errorf("bind capability %s: %w", e.ID, err)
			}
			d.workers[e.ID] = w
		}
	}
	sort.Strings(d.ordered)

	return d, nil
}

// Len returns the number of entries.
func (d *Directory) Len() int {
	return len(d.entries)
}

// Has reports whether id is registered.
func (d *Directory) Has(id string) bool {
	_, ok := d.entries[id]
	return ok
}

// Get returns the entry for id.
func (d *Directory) Get(id string) (Entry, bool) {
	e, ok := d.entries[id]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// Worker returns the bound worker for id.
func (d *Directory) Worker(id string) (Worker, bool) {
	w, ok := d.workers[id]
	return w, ok
}

// Entries returns all entries sorted by id.
func (d *Directory) Entries() []Entry {
	out := make([]Entry, 0, len(d.ordered))
	for _, id := range d.ordered {
		out = append(out, d.entries[id].clone())
	}
	return out
}

// ForCategory returns the ids of entries serving category, sorted by
// priority ascending, then autonomy descending, then id.
func (d *Directory) ForCategory(category string) []string {
	var matched []Entry
	for _, id := range d.ordered {
		if e := d.entries[id]; e.Serves(category) {
			matched = append(matched, e)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.Autonomy != b.Autonomy {
			return a.Autonomy > b.Autonomy
		}
		return a.ID < b.ID
	})

	ids := make([]string, len(matched))
	for i, e := range matched {
		ids[i] = e.ID
	}
	return ids
}
