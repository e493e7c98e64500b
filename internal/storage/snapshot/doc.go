// Package snapshot stores diagram snapshots as a bounded, namespaced log
// on top of a storage.Store.
//
// Each snapshot is one key:
//
//	<key_prefix>/<namespace>/<ULID>
//
// ULIDs are fixed-width and begin with a 48-bit millisecond timestamp,
// so byte order of the keys is chronological order of capture. Monotonic
// entropy keeps two captures in the same millisecond ordered too.
//
// Record format:
//
//	[magic:8 "DSAVSNAP"]
//	[HeaderLen:4][HeaderJSON:HeaderLen]
//	[DataLen:4][Data:DataLen]   (JSON {content, metadata}, or sealed bytes)
//	[checksum:8 murmur3-64 of all bytes above]
//
// Records that fail any of these checks are reported as ErrCorrupt.
// Latest walks newest to oldest and skips them.
package snapshot
