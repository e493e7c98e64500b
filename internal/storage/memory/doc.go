// Package memory provides a capacity-bounded in-memory key-value store.
//
// It models browser local storage: every key and value counts against a
// fixed byte quota, and a write that would overflow it fails with
// storage.ErrQuotaExceeded without touching existing entries.
package memory
