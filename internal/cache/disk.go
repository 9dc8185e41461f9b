package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const (
	compressedExt = ".zst"
	plainExt      = ".pcm"

	// Payloads below this size are stored uncompressed.
	minCompressSize = 1024
)

// DiskCache is the second cache level. Each entry is one file named after its
// key; the index is rebuilt from the directory listing on startup.
type DiskCache struct {
	dir      string
	capacity int64
	size     int64

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	index map[string]*diskEntry

	mu    sync.Mutex
	stats Stats
}

type diskEntry struct {
	path       string
	size       int64
	storedAt   time.Time
	lastAccess time.Time
	compressed bool
}

// NewDiskCache opens (creating if needed) a disk cache rooted at dir.
// A compressionLevel of 0 stores payloads as-is.
func NewDiskCache(dir string, capacity int64, compressionLevel int) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	dc := &DiskCache{
		dir:      dir,
		capacity: capacity,
		index:    make(map[string]*diskEntry),
		stats:    Stats{Capacity: capacity},
	}

	if compressionLevel > 0 {
		var err error
		dc.encoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
	}

	// Entries written with compression stay readable after it is turned off.
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	dc.decoder = decoder

	if err := dc.scan(); err != nil {
		return nil, fmt.Errorf("failed to scan cache directory: %w", err)
	}
	return dc, nil
}

// Get reads and decompresses the entry for key. Unreadable entries are dropped.
func (dc *DiskCache) Get(key string) ([]byte, bool) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	entry, ok := dc.index[key]
	if !ok {
		dc.stats.Misses++
		return nil, false
	}

	data, err := dc.read(entry)
	if err != nil {
		dc.remove(key, entry)
		dc.stats.Misses++
		return nil, false
	}

	entry.lastAccess = time.Now()
	dc.stats.Hits++
	return data, true
}

// Put writes value for key, evicting least recently used entries when full.
func (dc *DiskCache) Put(key string, value []byte) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	data, compressed := value, false
	if dc.encoder != nil && len(value) >= minCompressSize {
		if packed := dc.encoder.EncodeAll(value, nil); len(packed) < len(value) {
			data, compressed = packed, true
		}
	}

	n := int64(len(data))
	if n > dc.capacity {
		return ErrItemTooLarge
	}

	if existing, ok := dc.index[key]; ok {
		dc.remove(key, existing)
	}
	for dc.size+n > dc.capacity && len(dc.index) > 0 {
		dc.evictOldest()
	}

	ext := plainExt
	if compressed {
		ext = compressedExt
	}
	path := filepath.Join(dc.dir, key+ext)
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	now := time.Now()
	dc.index[key] = &diskEntry{path: path, size: n, storedAt: now, lastAccess: now, compressed: compressed}
	dc.size += n
	return nil
}

// RemoveOlderThan deletes entries stored before cutoff.
func (dc *DiskCache) RemoveOlderThan(cutoff time.Time) int {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	removed := 0
	for key, entry := range dc.index {
		if entry.storedAt.Before(cutoff) {
			dc.remove(key, entry)
			removed++
		}
	}
	return removed
}

// Clear deletes every cache file.
func (dc *DiskCache) Clear() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	for key, entry := range dc.index {
		dc.remove(key, entry)
	}
	return nil
}

// Stats returns a snapshot of the counters.
func (dc *DiskCache) Stats() Stats {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	s := dc.stats
	s.Size = dc.size
	s.Items = len(dc.index)
	return s
}

// Close releases the codec resources.
func (dc *DiskCache) Close() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if dc.encoder != nil {
		if err := dc.encoder.Close(); err != nil {
			return err
		}
	}
	dc.decoder.Close()
	return nil
}

func (dc *DiskCache) read(entry *diskEntry) ([]byte, error) {
	data, err := os.ReadFile(entry.path)
	if err != nil {
		return nil, err
	}
	if !entry.compressed {
		return data, nil
	}
	out, err := dc.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheCorrupted, err)
	}
	return out, nil
}

// remove must be called with the lock held.
func (dc *DiskCache) remove(key string, entry *diskEntry) {
	_ = os.Remove(entry.path)
	dc.size -= entry.size
	delete(dc.index, key)
}

func (dc *DiskCache) evictOldest() {
	var oldestKey string
	var oldest *diskEntry
	for key, entry := range dc.index {
		if oldest == nil || entry.lastAccess.Before(oldest.lastAccess) {
			oldestKey, oldest = key, entry
		}
	}
	if oldest != nil {
		dc.remove(oldestKey, oldest)
		dc.stats.Evictions++
	}
}

func (dc *DiskCache) scan() error {
	entries, err := os.ReadDir(dc.dir)
	if err != nil {
		return err
	}
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		ext := filepath.Ext(name)
		if ext != compressedExt && ext != plainExt {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		key := strings.TrimSuffix(name, ext)
		dc.index[key] = &diskEntry{
			path:       filepath.Join(dc.dir, name),
			size:       info.Size(),
			storedAt:   info.ModTime(),
			lastAccess: info.ModTime(),
			compressed: ext == compressedExt,
		}
		dc.size += info.Size()
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
