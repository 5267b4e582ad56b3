// Package poolwire adapts the single process-wide *ippool.Pool onto
// the two independently-declared PoolAllocator interfaces tethering
// and privnet each expect from their collaborator. ippool.Pool.Reserve
// returns a concrete *ippool.Slot; Go requires exact return-type
// match for interface satisfaction, so each adapter just upcasts that
// concrete value to the caller's own PoolSlot interface.
package poolwire

import (
	"github.com/plexsphere/tetherd/internal/ippool"
	"github.com/plexsphere/tetherd/internal/privnet"
	"github.com/plexsphere/tetherd/internal/tethering"
)

// TetheringAllocator adapts *ippool.Pool to tethering.PoolAllocator.
type TetheringAllocator struct {
	pool *ippool.Pool
}

// NewTetheringAllocator wraps pool for the tethering Engine.
func NewTetheringAllocator(pool *ippool.Pool) *TetheringAllocator {
	return &TetheringAllocator{pool: pool}
}

// Reserve satisfies tethering.PoolAllocator.
func (a *TetheringAllocator) Reserve(anchorIndex, offset, count int, onExternalUse func()) (tethering.PoolSlot, error) {
	return a.pool.Reserve(anchorIndex, offset, count, onExternalUse)
}

// PrivNetAllocator adapts *ippool.Pool to privnet.PoolAllocator.
type PrivNetAllocator struct {
	pool *ippool.Pool
}

// NewPrivNetAllocator wraps pool for the private network manager.
func NewPrivNetAllocator(pool *ippool.Pool) *PrivNetAllocator {
	return &PrivNetAllocator{pool: pool}
}

// Reserve satisfies privnet.PoolAllocator.
func (a *PrivNetAllocator) Reserve(anchorIndex, offset, count int, onExternalUse func()) (privnet.PoolSlot, error) {
	return a.pool.Reserve(anchorIndex, offset, count, onExternalUse)
}
