package alerts

import (
	"cmp"
	"slices"
	"sync"

	"geyim/backend/internal/domain"
)

type Key struct {
	ProductID int64 `json:"product_id"`
	SizeID    int64 `json:"size_id"`
}

// Tracker remembers which stock entries are currently at or below their minimum.
type Tracker struct {
	mu  sync.Mutex
	low map[Key]domain.StockEntry
}

func NewTracker() *Tracker {
	return &Tracker{low: make(map[Key]domain.StockEntry)}
}

// Update replaces the alert set with the given low entries and reports the
// entries that became low and the previously low entries that recovered.
func (t *Tracker) Update(current []domain.StockEntry) (entered []domain.StockEntry, recovered []domain.StockEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := make(map[Key]domain.StockEntry, len(current))
	for _, e := range current {
		key := Key{e.ProductID, e.SizeID}
		next[key] = e
		if _, was := t.low[key]; !was {
			entered = append(entered, e)
		}
	}
	for key, e := range t.low {
		if _, still := next[key]; !still {
			recovered = append(recovered, e)
		}
	}
	t.low = next
	sortEntries(recovered)
	return entered, recovered
}

// Snapshot returns the current alert set ordered by product and size.
func (t *Tracker) Snapshot() []domain.StockEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]domain.StockEntry, 0, len(t.low))
	for _, e := range t.low {
		out = append(out, e)
	}
	sortEntries(out)
	return out
}

func sortEntries(entries []domain.StockEntry) {
	slices.SortFunc(entries, func(a, b domain.StockEntry) int {
		if c := cmp.Compare(a.ProductID, b.ProductID); c != 0 {
			return c
		}
		return cmp.Compare(a.SizeID, b.SizeID)
	})
}
