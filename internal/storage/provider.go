// Package storage defines the durable key/value store that holds the local
// snapshot and device identity.
package storage

// Provider is the interface for local persistence. Values are opaque bytes
// (JSON in practice); keys are flat names without path separators.
type Provider interface {
	// Get returns the value stored under key, or an error wrapping
	// apperr.ErrNotFound when the key is absent.
	Get(key string) ([]byte, error)
	// Put durably stores value under key, replacing any previous value.
	Put(key string, value []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error
	// Keys lists every stored key.
	Keys() ([]string, error)
}
