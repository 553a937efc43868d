package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"expiring-cache/internal/models"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
)

// zstdMagic is the frame header of a zstd stream.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// JSONFile stores a snapshot as a JSON array in a single file, optionally
// zstd-compressed.
type JSONFile struct {
	fs               afero.Fs
	path             string
	compressionLevel int
}

// JSONOption configures a JSONFile codec.
type JSONOption func(*JSONFile)

// WithFs replaces the OS filesystem, mostly for tests.
func WithFs(fsys afero.Fs) JSONOption {
	return func(j *JSONFile) {
		j.fs = fsys
	}
}

// WithCompression enables zstd compression at the given level (1-22).
// A level <= 0 writes plain JSON.
func WithCompression(level int) JSONOption {
	return func(j *JSONFile) {
		j.compressionLevel = level
	}
}

// NewJSONFile returns a codec bound to path.
func NewJSONFile(path string, opts ...JSONOption) *JSONFile {
	j := &JSONFile{
		fs:   afero.NewOsFs(),
		path: path,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Path returns the snapshot location.
func (j *JSONFile) Path() string {
	return j.path
}

// Read implements Codec.Read. A missing file is created empty.
func (j *JSONFile) Read(ctx context.Context) ([]models.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(j.fs, j.path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := j.create(); err != nil {
			return nil, err
		}
		return []models.Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	if bytes.HasPrefix(data, zstdMagic) {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		defer dec.Close()

		data, err = dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return []models.Entry{}, nil
	}

	var entries []models.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if entries == nil {
		entries = []models.Entry{}
	}
	return entries, nil
}

// Write implements Codec.Write. The snapshot is written to a temporary file in
// the same directory and renamed over the old one.
func (j *JSONFile) Write(ctx context.Context, entries []models.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(sortEntries(entries), "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnrepresentable, err)
	}

	if j.compressionLevel > 0 {
		enc, err := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(j.compressionLevel)))
		if err != nil {
			return fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		data = enc.EncodeAll(data, nil)
		_ = enc.Close()
	}

	return j.writeAtomic(data)
}

func (j *JSONFile) create() error {
	if err := j.fs.MkdirAll(filepath.Dir(j.path), 0o700); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	f, err := j.fs.Create(j.path)
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	return f.Close()
}

func (j *JSONFile) writeAtomic(data []byte) error {
	dir := filepath.Dir(j.path)
	if err := j.fs.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := afero.TempFile(j.fs, dir, filepath.Base(j.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = j.fs.Remove(tmpName)
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = j.fs.Remove(tmpName)
		return fmt.Errorf("failed to sync cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = j.fs.Remove(tmpName)
		return fmt.Errorf("failed to close cache file: %w", err)
	}

	if err := j.fs.Rename(tmpName, j.path); err != nil {
		_ = j.fs.Remove(tmpName)
		return fmt.Errorf("failed to replace cache file: %w", err)
	}
	return nil
}

var _ Codec = (*JSONFile)(nil)
