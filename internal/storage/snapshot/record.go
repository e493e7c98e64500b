package snapshot

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spaolacci/murmur3"

	"github.com/yndnr/diagsave-go/internal/core/domain"
	"github.com/yndnr/diagsave-go/pkg/crypto/adaptive"
)

// Magic bytes identify snapshot records.
var magicBytes = []byte("DSAVSNAP")

const (
	headerVersion = 1
	lengthSize    = 4
	checksumSize  = 8
	minRecordSize = 8 + lengthSize + lengthSize + checksumSize
)

// ErrCorrupt marks a record that cannot be decoded. Errors returned by
// decodeRecord wrap it together with the specific cause.
var ErrCorrupt = errors.New("snapshot: corrupt record")

var (
	ErrInvalidMagic     = fmt.Errorf("%w: invalid magic bytes", ErrCorrupt)
	ErrChecksumMismatch = fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	ErrTruncated        = fmt.Errorf("%w: truncated", ErrCorrupt)
)

type recordHeader struct {
	Version       int    `json:"version"`
	CapturedAt    int64  `json:"captured_at"`
	WrittenAt     int64  `json:"written_at,omitempty"`
	ContentLength int    `json:"content_length"`
	Encrypted     bool   `json:"encrypted"`
	Cipher        string `json:"cipher,omitempty"`
}

type recordData struct {
	Content  string          `json:"content"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// encodeRecord serializes snap. When c is non-nil the data section is
// sealed with key as additional data.
func encodeRecord(snap domain.Snapshot, writtenAt time.Time, key []byte, c adaptive.Cipher) ([]byte, error) {
	hdr := recordHeader{
		Version:       headerVersion,
		CapturedAt:    snap.CapturedAt().UnixNano(),
		WrittenAt:     writtenAt.UnixNano(),
		ContentLength: len(snap.Content()),
		Encrypted:     c != nil,
	}
	if c != nil {
		hdr.Cipher = string(c.Type())
	}

	hdrJSON, err := json.Marshal(hdr)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal header: %w", err)
	}

	data, err := json.Marshal(recordData{
		Content:  snap.Content(),
		Metadata: snap.Metadata(),
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal data: %w", err)
	}
	if c != nil {
		data, err = c.Encrypt(data, key)
		if err != nil {
			return nil, fmt.Errorf("snapshot: encrypt: %w", err)
		}
	}

	buf := bytes.NewBuffer(make([]byte, 0, minRecordSize+len(hdrJSON)+len(data)))
	buf.Write(magicBytes)

	var n [lengthSize]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(hdrJSON)))
	buf.Write(n[:])
	buf.Write(hdrJSON)

	binary.BigEndian.PutUint32(n[:], uint32(len(data)))
	buf.Write(n[:])
	buf.Write(data)

	var sum [checksumSize]byte
	binary.BigEndian.PutUint64(sum[:], murmur3.Sum64(buf.Bytes()))
	buf.Write(sum[:])

	return buf.Bytes(), nil
}

// decodeRecord parses a record written by encodeRecord. Every structural
// failure wraps ErrCorrupt.
func decodeRecord(raw, key []byte, c adaptive.Cipher) (domain.Snapshot, recordHeader, error) {
	var hdr recordHeader

	if len(raw) < minRecordSize {
		return domain.Snapshot{}, hdr, ErrTruncated
	}

	body := raw[:len(raw)-checksumSize]
	want := binary.BigEndian.Uint64(raw[len(raw)-checksumSize:])
	if murmur3.Sum64(body) != want {
		return domain.Snapshot{}, hdr, ErrChecksumMismatch
	}

	if !bytes.Equal(body[:len(magicBytes)], magicBytes) {
		return domain.Snapshot{}, hdr, ErrInvalidMagic
	}
	rest := body[len(magicBytes):]

	hdrJSON, rest, err := readSection(rest)
	if err != nil {
		return domain.Snapshot{}, hdr, err
	}
	if err := json.Unmarshal(hdrJSON, &hdr); err != nil {
		return domain.Snapshot{}, hdr, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	if hdr.Version != headerVersion {
		return domain.Snapshot{}, hdr, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, hdr.Version)
	}

	data, rest, err := readSection(rest)
	if err != nil {
		return domain.Snapshot{}, hdr, err
	}
	if len(rest) != 0 {
		return domain.Snapshot{}, hdr, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(rest))
	}

	if hdr.Encrypted {
		if c == nil {
			return domain.Snapshot{}, hdr, fmt.Errorf("%w: record is encrypted but no key is configured", ErrCorrupt)
		}
		data, err = c.Decrypt(data, key)
		if err != nil {
			return domain.Snapshot{}, hdr, fmt.Errorf("%w: decrypt: %v", ErrCorrupt, err)
		}
	}

	var rd recordData
	if err := json.Unmarshal(data, &rd); err != nil {
		return domain.Snapshot{}, hdr, fmt.Errorf("%w: data: %v", ErrCorrupt, err)
	}
	if len(rd.Content) != hdr.ContentLength {
		return domain.Snapshot{}, hdr, fmt.Errorf("%w: content length %d, header says %d", ErrCorrupt, len(rd.Content), hdr.ContentLength)
	}

	snap, err := domain.NewSnapshotAt(rd.Content, rd.Metadata, time.Unix(0, hdr.CapturedAt))
	if err != nil {
		return domain.Snapshot{}, hdr, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return snap, hdr, nil
}

func readSection(b []byte) (section, rest []byte, err error) {
	if len(b) < lengthSize {
		return nil, nil, ErrTruncated
	}
	n := binary.BigEndian.Uint32(b[:lengthSize])
	b = b[lengthSize:]
	if uint64(n) > uint64(len(b)) {
		return nil, nil, ErrTruncated
	}
	return b[:n], b[n:], nil
}
