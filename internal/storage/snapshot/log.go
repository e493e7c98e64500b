package snapshot

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/diagsave-go/internal/core/domain"
	"github.com/yndnr/diagsave-go/internal/storage"
	"github.com/yndnr/diagsave-go/pkg/crypto/adaptive"
)

const (
	// DefaultRetentionCount is the number of snapshots kept per namespace.
	DefaultRetentionCount = 5

	// DefaultKeyPrefix is the key prefix shared by all namespaces.
	DefaultKeyPrefix = "diagsave/backup"
)

var (
	ErrNotFound    = errors.New("snapshot: not found")
	ErrNoSnapshots = errors.New("snapshot: no snapshots available")
)

// Config configures a snapshot Log.
type Config struct {
	// KeyPrefix is prepended to every key. Defaults to DefaultKeyPrefix.
	KeyPrefix string

	// Namespace isolates one diagram's snapshots.
	Namespace string

	// RetentionCount is the number of snapshots Prune keeps.
	RetentionCount int

	// Cipher seals record data when non-nil.
	Cipher adaptive.Cipher

	// Now stamps the write time of records. Defaults to time.Now.
	Now func() time.Time

	// OnCorrupt is called for every corrupt record Latest skips.
	OnCorrupt func(key string, err error)
}

// Info describes one persisted snapshot.
type Info struct {
	ID            string    `json:"id" yaml:"id"`
	Key           string    `json:"key" yaml:"key"`
	WrittenAt     time.Time `json:"written_at" yaml:"written_at"`
	CapturedAt    time.Time `json:"captured_at" yaml:"captured_at"`
	Size          int       `json:"size" yaml:"size"`
	ContentLength int       `json:"content_length" yaml:"content_length"`
	Encrypted     bool      `json:"encrypted" yaml:"encrypted"`
	Corrupt       bool      `json:"corrupt,omitempty" yaml:"corrupt,omitempty"`
}

// Log is the bounded snapshot history of one namespace.
//
// Record keys carry the capture time of the snapshot, so key order is
// capture order: Latest returns the newest capture and Prune evicts the
// oldest captures, whatever order the writes arrived in. Snapshots
// captured within the same millisecond keep their append order.
//
// Log is safe for concurrent use.
type Log struct {
	store  storage.Store
	cfg    Config
	prefix []byte

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewLog creates a Log over store.
func NewLog(store storage.Store, cfg Config) (*Log, error) {
	if store == nil {
		return nil, fmt.Errorf("snapshot: store is required")
	}
	if err := domain.ValidateNamespace(cfg.Namespace); err != nil {
		return nil, err
	}
	cfg.KeyPrefix = strings.TrimRight(cfg.KeyPrefix, "/")
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.RetentionCount <= 0 {
		cfg.RetentionCount = DefaultRetentionCount
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Log{
		store:   store,
		cfg:     cfg,
		prefix:  []byte(cfg.KeyPrefix + "/" + cfg.Namespace + "/"),
		entropy: ulid.Monotonic(rand.Reader, 0),
	}, nil
}

// Namespace returns the namespace this log owns.
func (l *Log) Namespace() string {
	return l.cfg.Namespace
}

// RetentionCount returns the number of snapshots Prune keeps.
func (l *Log) RetentionCount() int {
	return l.cfg.RetentionCount
}

// Prefix returns the key prefix of this namespace, including the
// trailing separator.
func (l *Log) Prefix() string {
	return string(l.prefix)
}

// Append encodes and stores snap under a new key.
func (l *Log) Append(ctx context.Context, snap domain.Snapshot) (*Info, error) {
	if snap.CapturedAt().IsZero() {
		return nil, domain.ErrSnapshotValidation.WithDetails("snapshot has no capture time")
	}

	id, err := l.nextID(snap.CapturedAt())
	if err != nil {
		return nil, err
	}
	key := l.key(id)
	writtenAt := l.cfg.Now()

	raw, err := encodeRecord(snap, writtenAt, key, l.cfg.Cipher)
	if err != nil {
		return nil, err
	}
	if err := l.store.Put(ctx, key, raw); err != nil {
		return nil, fmt.Errorf("snapshot: put %s: %w", key, err)
	}

	return &Info{
		ID:            id.String(),
		Key:           string(key),
		WrittenAt:     writtenAt,
		CapturedAt:    snap.CapturedAt(),
		Size:          len(raw),
		ContentLength: len(snap.Content()),
		Encrypted:     l.cfg.Cipher != nil,
	}, nil
}

// Load reads the snapshot with the given ID.
func (l *Log) Load(ctx context.Context, id string) (domain.Snapshot, *Info, error) {
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return domain.Snapshot{}, nil, fmt.Errorf("%w: invalid id %q", ErrNotFound, id)
	}
	return l.load(ctx, l.key(parsed))
}

// Latest returns the newest snapshot that decodes cleanly. Corrupt
// records are reported through OnCorrupt and skipped.
func (l *Log) Latest(ctx context.Context) (domain.Snapshot, *Info, error) {
	keys, err := l.store.ListKeys(ctx, l.prefix)
	if err != nil {
		return domain.Snapshot{}, nil, fmt.Errorf("snapshot: list: %w", err)
	}

	for i := len(keys) - 1; i >= 0; i-- {
		snap, info, err := l.load(ctx, keys[i])
		if err == nil {
			return snap, info, nil
		}
		if errors.Is(err, ErrNotFound) {
			// Evicted between listing and reading.
			continue
		}
		if errors.Is(err, ErrCorrupt) {
			if l.cfg.OnCorrupt != nil {
				l.cfg.OnCorrupt(string(keys[i]), err)
			}
			continue
		}
		return domain.Snapshot{}, nil, err
	}

	return domain.Snapshot{}, nil, ErrNoSnapshots
}

// List returns every record in the namespace, newest first. Corrupt
// records are included with Corrupt set.
func (l *Log) List(ctx context.Context) ([]*Info, error) {
	keys, err := l.store.ListKeys(ctx, l.prefix)
	if err != nil {
		return nil, fmt.Errorf("snapshot: list: %w", err)
	}

	infos := make([]*Info, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		_, info, err := l.load(ctx, keys[i])
		switch {
		case err == nil:
			infos = append(infos, info)
		case errors.Is(err, ErrNotFound):
		case errors.Is(err, ErrCorrupt):
			infos = append(infos, info)
		default:
			return nil, err
		}
	}
	return infos, nil
}

// Prune deletes every record past the newest RetentionCount. It returns
// the number of records evicted.
func (l *Log) Prune(ctx context.Context) (int, error) {
	keys, err := l.store.ListKeys(ctx, l.prefix)
	if err != nil {
		return 0, fmt.Errorf("snapshot: list: %w", err)
	}

	excess := len(keys) - l.cfg.RetentionCount
	evicted := 0
	for i := 0; i < excess; i++ {
		if err := l.store.Delete(ctx, keys[i]); err != nil {
			return evicted, fmt.Errorf("snapshot: evict %s: %w", keys[i], err)
		}
		evicted++
	}
	return evicted, nil
}

// Clear deletes every record in the namespace and returns the count.
func (l *Log) Clear(ctx context.Context) (int, error) {
	keys, err := l.store.ListKeys(ctx, l.prefix)
	if err != nil {
		return 0, fmt.Errorf("snapshot: list: %w", err)
	}

	for i, k := range keys {
		if err := l.store.Delete(ctx, k); err != nil {
			return i, fmt.Errorf("snapshot: delete %s: %w", k, err)
		}
	}
	return len(keys), nil
}

func (l *Log) load(ctx context.Context, key []byte) (domain.Snapshot, *Info, error) {
	raw, err := l.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return domain.Snapshot{}, nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return domain.Snapshot{}, nil, fmt.Errorf("snapshot: get %s: %w", key, err)
	}

	info := &Info{
		Key:  string(key),
		Size: len(raw),
	}
	if id, err := ulid.ParseStrict(string(bytes.TrimPrefix(key, l.prefix))); err == nil {
		info.ID = id.String()
	}

	snap, hdr, err := decodeRecord(raw, key, l.cfg.Cipher)
	if err != nil {
		info.Corrupt = true
		return domain.Snapshot{}, info, err
	}
	if info.ID == "" {
		info.Corrupt = true
		return domain.Snapshot{}, info, fmt.Errorf("%w: malformed key %s", ErrCorrupt, key)
	}

	info.CapturedAt = snap.CapturedAt()
	if hdr.WrittenAt != 0 {
		info.WrittenAt = time.Unix(0, hdr.WrittenAt)
	}
	info.ContentLength = hdr.ContentLength
	info.Encrypted = hdr.Encrypted
	return snap, info, nil
}

// nextID returns a ULID whose time part is the capture time. The
// monotonic entropy orders IDs that share a millisecond.
func (l *Log) nextID(capturedAt time.Time) (ulid.ULID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if capturedAt.Before(time.UnixMilli(0)) {
		return ulid.ULID{}, domain.ErrSnapshotValidation.WithDetails("capture time before 1970")
	}
	id, err := ulid.New(ulid.Timestamp(capturedAt), l.entropy)
	if errors.Is(err, ulid.ErrBigTime) {
		return ulid.ULID{}, domain.ErrSnapshotValidation.WithDetails("capture time out of range")
	}
	if err != nil {
		return ulid.ULID{}, fmt.Errorf("snapshot: generate id: %w", err)
	}
	return id, nil
}

func (l *Log) key(id ulid.ULID) []byte {
	k := make([]byte, 0, len(l.prefix)+ulid.EncodedSize)
	k = append(k, l.prefix...)
	return append(k, id.String()...)
}
