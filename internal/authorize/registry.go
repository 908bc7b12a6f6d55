package authorize

import (
	"sync/atomic"
	"time"

	"parkgate/internal/domain/gate"
	"parkgate/internal/utils"
)

// Snapshot is an immutable view of the vehicle registry, keyed by normalized
// plate. Built once, then only ever read.
type Snapshot struct {
	Vehicles map[string]gate.Vehicle
	LoadedAt time.Time
}

// NewSnapshot copies vehicles into a fresh snapshot. Plates are normalized
// on the way in so lookup keys match recognized plates regardless of how the
// registry rows were formatted.
func NewSnapshot(vehicles []gate.Vehicle, loadedAt time.Time) *Snapshot {
	m := make(map[string]gate.Vehicle, len(vehicles))
	for _, v := range vehicles {
		m[utils.NormalizePlate(v.Plate)] = v
	}
	return &Snapshot{Vehicles: m, LoadedAt: loadedAt}
}

// Registry holds the current snapshot behind an atomic pointer. Readers never
// block a swap and never observe a partial update.
type Registry struct {
	snap atomic.Pointer[Snapshot]
}

func NewRegistry(initial *Snapshot) *Registry {
	r := &Registry{}
	if initial == nil {
		initial = &Snapshot{Vehicles: map[string]gate.Vehicle{}}
	}
	r.snap.Store(initial)
	return r
}

// Current returns the live snapshot.
func (r *Registry) Current() *Snapshot {
	return r.snap.Load()
}

// Swap publishes a new snapshot, replacing the old one atomically.
func (r *Registry) Swap(s *Snapshot) {
	r.snap.Store(s)
}
