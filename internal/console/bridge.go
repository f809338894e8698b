package console

import "sync"

// Bridge is the single-slot channel that carries the artifact chosen for
// inference from the registry to the inference session. Writes overwrite;
// there is no history. Each write bumps a generation so the reader can tell
// a new selection from one it has already applied.
type Bridge struct {
	mu    sync.Mutex
	value string
	gen   uint64
}

// NewBridge returns an empty bridge.
func NewBridge() *Bridge { return &Bridge{} }

// Publish replaces the slot's value.
func (b *Bridge) Publish(path string) {
	b.mu.Lock()
	b.value = path
	b.gen++
	b.mu.Unlock()
}

// Value returns the current path and its generation. A zero generation
// means nothing was ever published.
func (b *Bridge) Value() (string, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value, b.gen
}
