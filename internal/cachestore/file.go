package cachestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zeebo/xxh3"
)

// FileBackend is a durable backend keeping one physical record per key.
// Records live under root/<namespace...>/; filenames are derived from a hash
// of the key so arbitrarily long keys (absolute paths, canonical IDs) map to
// bounded names.
type FileBackend struct {
	root string
}

// NewFileBackend creates a durable backend rooted at dir. The directory tree
// is created lazily on first write.
func NewFileBackend(dir string) *FileBackend {
	return &FileBackend{root: dir}
}

func (b *FileBackend) dir(namespace []string) string {
	parts := append([]string{b.root}, namespace...)
	return filepath.Join(parts...)
}

func (b *FileBackend) recordPath(namespace []string, key string) string {
	sum := xxh3.HashString128(key)
	name := fmt.Sprintf("%016x%016x.rec", sum.Hi, sum.Lo)
	return filepath.Join(b.dir(namespace), name)
}

func (b *FileBackend) Load(namespace []string, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(b.recordPath(namespace, key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (b *FileBackend) Store(namespace []string, key string, data []byte) error {
	dir := b.dir(namespace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := b.recordPath(namespace, key)

	// Write-then-rename so concurrent writers never expose a torn record;
	// the rename decides which writer wins.
	tmp, err := os.CreateTemp(dir, ".rec-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (b *FileBackend) Delete(namespace []string, key string) error {
	err := os.Remove(b.recordPath(namespace, key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (b *FileBackend) Clear(namespace []string) error {
	err := os.RemoveAll(b.dir(namespace))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Keys recovers original keys by decoding the key field of each record.
// Records that do not decode are skipped; Load never finds them either, so
// they are invisible until overwritten.
func (b *FileBackend) Keys(namespace []string) ([]string, error) {
	dirEntries, err := os.ReadDir(b.dir(namespace))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, entry := range dirEntries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".rec" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(b.dir(namespace), entry.Name()))
		if err != nil {
			continue
		}
		var hdr struct {
			Key string `json:"key"`
		}
		if json.Unmarshal(data, &hdr) != nil || hdr.Key == "" {
			continue
		}
		keys = append(keys, hdr.Key)
	}
	return keys, nil
}

func (b *FileBackend) Close() error { return nil }
