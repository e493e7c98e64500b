// Package storage provides the key-value persistence surface used by
// diagsave backup buffers.
//
// The Store interface is deliberately small (put, get, delete, list by
// prefix) so that it can be served by an embedded engine (Badger) or by
// the capacity-bounded in-memory store in the memory subpackage. Stores
// are shared process-wide; callers own a key prefix, never the store.
package storage
