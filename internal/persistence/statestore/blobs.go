package statestore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// Blob files live at blobs/<hh>/<hash>, zstd-compressed, keyed by the sha256
// of the uncompressed content. Files are immutable once written; re-writing
// an existing hash is a no-op.

func (s *Store) blobPath(hash string) string {
	return filepath.Join(s.dir, "blobs", hash[:2], hash)
}

func (s *Store) writeBlob(hash, content string) error {
	path := s.blobPath(hash)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = f.Close()
		return err
	}
	if _, err := io.WriteString(enc, content); err != nil {
		_ = enc.Close()
		_ = f.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *Store) readBlob(hash string) (string, error) {
	f, err := os.Open(s.blobPath(hash))
	if err != nil {
		return "", fmt.Errorf("blob %s: %w", hash[:12], err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return "", err
	}
	defer dec.Close()

	raw, err := io.ReadAll(dec)
	if err != nil {
		return "", fmt.Errorf("blob %s: %w", hash[:12], err)
	}
	return string(raw), nil
}

// sweepBlobs removes blob files whose hash is in no retained change row.
func (s *Store) sweepBlobs(referenced map[string]bool) (removed int, err error) {
	root := filepath.Join(s.dir, "blobs")
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	for _, sub := range entries {
		if !sub.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(root, sub.Name()))
		if err != nil {
			return removed, err
		}
		for _, f := range files {
			if referenced[f.Name()] {
				continue
			}
			if err := os.Remove(filepath.Join(root, sub.Name(), f.Name())); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}
