package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Archiver keeps a copy of a usage log before it is cleared.
type Archiver interface {
	Archive(ctx context.Context, user string, records []UsageRecord) (string, error)
}

// ZstdArchiver writes zstd-compressed JSON snapshots into a directory.
type ZstdArchiver struct {
	dir string
	now func() time.Time
}

// NewZstdArchiver creates an archiver writing to dir.
func NewZstdArchiver(dir string) *ZstdArchiver {
	return &ZstdArchiver{dir: dir, now: time.Now}
}

// Archive writes records to fms_usage_<user>_<time>.json.zst and returns the path.
// An empty log is not archived.
func (a *ZstdArchiver) Archive(_ context.Context, user string, records []UsageRecord) (string, error) {
	if len(records) == 0 {
		return "", nil
	}
	data, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("marshal usage archive failed: %w", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return "", fmt.Errorf("create zstd encoder failed: %w", err)
	}
	defer enc.Close()
	compressed := enc.EncodeAll(data, nil)

	name := fmt.Sprintf("fms_usage_%s_%s.json.zst", user, a.now().UTC().Format("20060102T150405.000000000"))
	path := filepath.Join(a.dir, name)
	if err := writeFileAtomic(path, compressed, 0o600); err != nil {
		return "", fmt.Errorf("write usage archive failed: %w", err)
	}
	return path, nil
}

// ReadArchive decodes an archive written by ZstdArchiver.
func ReadArchive(path string) ([]UsageRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read usage archive failed: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder failed: %w", err)
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decode usage archive failed: %w", err)
	}
	var records []UsageRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("parse usage archive failed: %w", err)
	}
	return records, nil
}
