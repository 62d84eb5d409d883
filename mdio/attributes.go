package mdio

import (
	"sync"

	"github.com/pithecene-io/mdio/stats"
)

// AttributeHolder is the replaceable cell holding a variable's user
// attributes. Every Variable derived from the same open or create shares one
// holder.
//
// The attributes object is only ever replaced, never edited, so a reader
// holding the previous object keeps a consistent snapshot. Each replacement
// bumps a version; the holder is dirty while the current version has not
// been published.
type AttributeHolder struct {
	mu        sync.RWMutex
	current   *stats.UserAttributes
	version   uint64
	committed uint64
}

// NewAttributeHolder returns a clean holder for attrs.
func NewAttributeHolder(attrs *stats.UserAttributes) *AttributeHolder {
	if attrs == nil {
		attrs = stats.Empty()
	}
	return &AttributeHolder{current: attrs}
}

// Load returns the current attributes.
func (h *AttributeHolder) Load() *stats.UserAttributes {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Snapshot returns the current attributes with their version.
func (h *AttributeHolder) Snapshot() (*stats.UserAttributes, uint64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current, h.version
}

// Replace installs attrs and returns the new version.
func (h *AttributeHolder) Replace(attrs *stats.UserAttributes) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = attrs
	h.version++
	return h.version
}

// Version returns the number of replacements so far.
func (h *AttributeHolder) Version() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.version
}

// MarkCommitted records that version v is durable. Older versions never
// move the committed mark backwards.
func (h *AttributeHolder) MarkCommitted(v uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if v > h.committed {
		h.committed = v
	}
}

// WasUpdated reports whether the attributes were replaced since they were
// last committed.
func (h *AttributeHolder) WasUpdated() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.version != h.committed
}
