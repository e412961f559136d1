package rangepull

import (
	"bytes"
	"encoding/gob"
	"errors"
	"os"
	"sync"
)

// ledgerFormatVersion is bumped whenever ledgerState's shape changes in a
// way that isn't backward compatible. A side-car written by a newer or
// older version than this one fails fast rather than being silently
// reinterpreted.
const ledgerFormatVersion = 1

// ledgerEnvelope is the on-disk wrapper around the gob-encoded
// ledgerState. The version lives outside the gob payload so a format
// change is detectable before a Decode of the payload is even attempted.
type ledgerEnvelope struct {
	Version uint32
	Payload []byte
}

// ledgerState is exactly the persisted subset of Ledger: total_size,
// chunk_size, and completed. It never carries the file handle, the
// mutex, the work queue, or the URL.
type ledgerState struct {
	TotalSize int64
	ChunkSize int64
	Completed []Range
}

// Ledger is the runtime progress record for one download. The persisted
// fields live in state; everything else (the mutex, the transient URL)
// is runtime-only and rebuilt each run.
type Ledger struct {
	mu    sync.Mutex
	state ledgerState
	url   string
}

// NewLedger creates an empty ledger for a download of totalSize bytes
// planned at chunkSize.
func NewLedger(totalSize, chunkSize int64) *Ledger {
	return &Ledger{
		state: ledgerState{
			TotalSize: totalSize,
			ChunkSize: chunkSize,
		},
	}
}

// LoadLedger reads and deserializes the side-car file at path. It returns
// an *Error of Kind LedgerAbsent if the file does not exist (the caller
// should treat that as "start fresh"), or LedgerCorrupt on any decoding
// failure, including an unrecognized format version.
func LoadLedger(path string) (*Ledger, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, newError(LedgerAbsent, path, err)
		}
		return nil, newError(LedgerCorrupt, "reading side-car", err)
	}

	var envelope ledgerEnvelope
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&envelope); err != nil {
		return nil, newError(LedgerCorrupt, "decoding envelope", err)
	}
	if envelope.Version != ledgerFormatVersion {
		return nil, newError(LedgerCorrupt, "unrecognized ledger format version", nil)
	}

	var state ledgerState
	if err := gob.NewDecoder(bytes.NewReader(envelope.Payload)).Decode(&state); err != nil {
		return nil, newError(LedgerCorrupt, "decoding payload", err)
	}

	return &Ledger{state: state}, nil
}

// Save serializes the ledger to path. It holds l.mu for the whole write,
// so it is serialized with concurrent Record calls; callers must not
// already hold l.mu. In this package the coordinator calls Save during
// shutdown, after all workers have joined.
func (l *Ledger) Save(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.saveLocked(path)
}

func (l *Ledger) saveLocked(path string) error {
	l.state.Completed = Merge(l.state.Completed)

	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(l.state); err != nil {
		return err
	}

	var out bytes.Buffer
	envelope := ledgerEnvelope{Version: ledgerFormatVersion, Payload: payload.Bytes()}
	if err := gob.NewEncoder(&out).Encode(&envelope); err != nil {
		return err
	}

	return os.WriteFile(path, out.Bytes(), 0o644)
}

// Record appends a completed range. It does not re-sort or merge;
// compaction happens at load/save boundaries via Merge.
func (l *Ledger) Record(r Range) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.Completed = append(l.state.Completed, r)
}

// Rechunkize compacts the completed set and stores newChunkSize. Called
// when a resumed run's chunk size differs from the one recorded in the
// side-car.
func (l *Ledger) Rechunkize(newChunkSize int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.Completed = Merge(l.state.Completed)
	l.state.ChunkSize = newChunkSize
}

// Status returns the total bytes recorded as downloaded and the total
// file size.
func (l *Ledger) Status() (downloaded, total int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var sum int64
	for _, r := range l.state.Completed {
		sum += r.Size()
	}
	return sum, l.state.TotalSize
}

// TotalSize returns the fixed total byte length recorded at creation.
func (l *Ledger) TotalSize() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.TotalSize
}

// ChunkSize returns the chunk size in effect the last time the plan was
// generated.
func (l *Ledger) ChunkSize() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.ChunkSize
}

// SetURL rebinds the transient source URL. Not persisted.
func (l *Ledger) SetURL(url string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.url = url
}

// URL returns the currently bound source URL.
func (l *Ledger) URL() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.url
}

// Outstanding returns the plan entries, at the ledger's current chunk
// size, not yet present verbatim in the completed set.
func (l *Ledger) Outstanding() []Range {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Outstanding(l.state.TotalSize, l.state.ChunkSize, l.state.Completed)
}

// Complete reports whether the completed set, once merged, covers the
// whole file.
func (l *Ledger) Complete() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	merged := Merge(l.state.Completed)
	return len(merged) == 1 && merged[0].Lo == 0 && merged[0].Hi == l.state.TotalSize-1
}
