package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/shopspring/decimal"
)

// FileStore keeps the price record in a single human-readable JSON object.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a FileStore writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the state file location.
func (f *FileStore) Path() string {
	return f.path
}

// Load reads the state file. A missing file yields an empty record.
func (f *FileStore) Load(ctx context.Context) (PriceRecord, error) {
	if err := ctx.Err(); err != nil {
		return NewPriceRecord(), err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewPriceRecord(), nil
	}
	if err != nil {
		return NewPriceRecord(), fmt.Errorf("read state file: %w", err)
	}

	record, err := decodeRecord(data)
	if err != nil {
		return NewPriceRecord(), fmt.Errorf("%w: %s: %v", ErrCorruptState, f.path, err)
	}
	if dropped := record.sanitize(); dropped > 0 {
		return record, fmt.Errorf("%w: %s: dropped %d non-positive prices", ErrCorruptState, f.path, dropped)
	}
	return record, nil
}

// Save writes record to a temporary file next to the target and renames it into place,
// so an interrupted write leaves the previous state intact.
func (f *FileStore) Save(ctx context.Context, record PriceRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encodeRecord(record)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		cleanup()
		return fmt.Errorf("replace state file: %w", err)
	}
	if err := syncDir(dir); err != nil {
		return fmt.Errorf("sync state dir: %w", err)
	}
	return nil
}

// syncDir flushes directory metadata so a completed rename survives a crash.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// Close implements StateStore.
func (f *FileStore) Close() error {
	return nil
}

// encodeRecord renders prices as bare JSON numbers rather than decimal's default quoted strings.
func encodeRecord(record PriceRecord) ([]byte, error) {
	out := make(map[string]json.Number, len(record))
	for k, v := range record {
		out[k] = json.Number(v.String())
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func decodeRecord(data []byte) (PriceRecord, error) {
	record := NewPriceRecord()
	if len(bytes.TrimSpace(data)) == 0 {
		return record, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]json.Number
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	for k, v := range raw {
		price, err := decimal.NewFromString(v.String())
		if err != nil {
			return nil, fmt.Errorf("asset %s: %w", k, err)
		}
		record[k] = price
	}
	return record, nil
}

var _ StateStore = (*FileStore)(nil)
