package config

import "sync"

// Holder provides thread-safe access to a mutable *Config and an
// immutable config file path. The watcher updates config in exactly one
// place and every consumer reads through the same Holder.
type Holder struct {
	mu   sync.RWMutex
	cfg  *Config
	path string // immutable after construction
}

// NewHolder creates a Holder with the initial config and config file path.
func NewHolder(cfg *Config, path string) *Holder {
	return &Holder{
		cfg:  cfg,
		path: path,
	}
}

// Config returns the current config snapshot. Thread-safe (read lock).
func (h *Holder) Config() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.cfg
}

// Path returns the config file path. Immutable after construction, so
// no locking is needed.
func (h *Holder) Path() string {
	return h.path
}

// Update replaces the config. Thread-safe (write lock).
func (h *Holder) Update(cfg *Config) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.cfg = cfg
}
