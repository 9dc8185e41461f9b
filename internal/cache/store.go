package cache

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"github.com/dgnsrekt/caption-voice/internal/ttypes"
)

// Store chains the memory and disk levels. Disk hits are promoted to memory.
type Store struct {
	memory *MemoryCache
	disk   *DiskCache
	config Config
	logger *log.Logger

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

var _ ttypes.AudioCache = (*Store)(nil)

// NewStore opens the cache described by config and starts the cleanup routine.
func NewStore(config Config) (*Store, error) {
	if config.DiskPath == "" {
		return nil, errors.New("cache disk path is required")
	}

	disk, err := NewDiskCache(config.DiskPath, config.DiskCapacity, config.CompressionLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create disk cache: %w", err)
	}

	s := &Store{
		memory: NewMemoryCache(config.MemoryCapacity),
		disk:   disk,
		config: config,
		logger: log.WithPrefix("cache"),
		stop:   make(chan struct{}),
	}

	ds := disk.Stats()
	s.logger.Debug("Audio cache opened",
		"dir", config.DiskPath,
		"entries", ds.Items,
		"size", humanize.IBytes(uint64(ds.Size)),
		"capacity", humanize.IBytes(uint64(config.DiskCapacity)))

	if config.CleanupInterval > 0 && config.TTL > 0 {
		s.wg.Add(1)
		go s.cleanupLoop()
	}
	return s, nil
}

// Get looks in memory first, then on disk.
func (s *Store) Get(key string) ([]byte, bool) {
	if data, ok := s.memory.Get(key); ok {
		return data, true
	}
	data, ok := s.disk.Get(key)
	if !ok {
		return nil, false
	}
	_ = s.memory.Put(key, data)
	return data, true
}

// Put writes through both levels. Oversized items are silently skipped.
func (s *Store) Put(key string, audio []byte) error {
	if err := s.memory.Put(key, audio); err != nil && !errors.Is(err, ErrItemTooLarge) {
		return err
	}
	if err := s.disk.Put(key, audio); err != nil && !errors.Is(err, ErrItemTooLarge) {
		return err
	}
	return nil
}

// Stats returns the counters of both levels.
func (s *Store) Stats() (memory, disk Stats) {
	return s.memory.Stats(), s.disk.Stats()
}

// Cleanup prunes entries older than the configured TTL.
func (s *Store) Cleanup() int {
	if s.config.TTL <= 0 {
		return 0
	}
	removed := s.disk.RemoveOlderThan(time.Now().Add(-s.config.TTL))
	removed += s.memory.Prune(s.config.TTL)
	return removed
}

// Clear empties both levels.
func (s *Store) Clear() error {
	s.memory.Clear()
	return s.disk.Clear()
}

// Close stops the cleanup routine and releases the disk level.
func (s *Store) Close() error {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()

	mem, disk := s.Stats()
	s.logger.Debug("Audio cache closed",
		"memory_hit_rate", fmt.Sprintf("%.2f", mem.HitRate()),
		"disk_hit_rate", fmt.Sprintf("%.2f", disk.HitRate()),
		"disk_size", humanize.IBytes(uint64(disk.Size)))
	return s.disk.Close()
}

func (s *Store) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.Cleanup(); n > 0 {
				s.logger.Debug("Pruned expired audio", "entries", n)
			}
		case <-s.stop:
			return
		}
	}
}
