package anomaly

import (
	"sync/atomic"

	"SOCPulse/internal/domain/models"
)

// Registry holds the active model per category. Readers never lock; a
// training run publishes a fully built model with one pointer swap.
type Registry struct {
	slots map[models.AnomalyCategory]*atomic.Pointer[Model]
}

// NewRegistry creates empty slots for the given categories. The slot map
// is never mutated afterwards.
func NewRegistry(categories []models.AnomalyCategory) *Registry {
	r := &Registry{slots: make(map[models.AnomalyCategory]*atomic.Pointer[Model], len(categories))}
	for _, c := range categories {
		r.slots[c] = new(atomic.Pointer[Model])
	}
	return r
}

// Get returns the active model or nil.
func (r *Registry) Get(c models.AnomalyCategory) *Model {
	slot, ok := r.slots[c]
	if !ok {
		return nil
	}
	return slot.Load()
}

// Swap activates m and returns the previous model.
func (r *Registry) Swap(m *Model) *Model {
	slot, ok := r.slots[m.Category]
	if !ok {
		return nil
	}
	return slot.Swap(m)
}

// Loaded lists categories with an active model.
func (r *Registry) Loaded() []models.AnomalyCategory {
	var out []models.AnomalyCategory
	for _, c := range models.AllCategories {
		if r.Get(c) != nil {
			out = append(out, c)
		}
	}
	return out
}
