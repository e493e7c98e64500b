// Package service provides the backup services of diagsave.
//
//   - Buffer: debounced, bounded persistence of one diagram's snapshots
//   - Registry: one Buffer per diagram namespace over a shared store
//
// A Buffer accepts candidate snapshots through RequestSave, coalesces
// bursts so only the last snapshot of a quiet period is written, and
// trims the namespace to the newest RetentionCount snapshots after every
// successful write. ForceSave writes immediately. Latest returns the
// newest snapshot that decodes cleanly. Newest means latest capture time,
// not latest write.
//
// Write failures never panic and never touch earlier snapshots. They are
// logged, counted, kept as LastError and passed to the error handler.
package service
