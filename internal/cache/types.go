package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrItemTooLarge is returned when an item exceeds the cache capacity
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrCacheCorrupted is returned when a stored entry cannot be decoded
	ErrCacheCorrupted = errors.New("cache data corrupted")
)

// Level identifies where a hit was served from.
type Level int

const (
	LevelMemory Level = iota
	LevelDisk
)

// String returns the string representation of the level
func (l Level) String() string {
	switch l {
	case LevelMemory:
		return "memory"
	case LevelDisk:
		return "disk"
	default:
		return "unknown"
	}
}

// Stats holds counters for one cache level.
type Stats struct {
	Capacity  int64
	Size      int64
	Items     int
	Hits      int64
	Misses    int64
	Evictions int64
}

// HitRate returns hits / (hits + misses), or 0 before the first lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Config holds configuration for the audio cache.
type Config struct {
	// MemoryCapacity is the in-memory budget in bytes.
	MemoryCapacity int64 `mapstructure:"memory_capacity" yaml:"memory_capacity"`

	// DiskCapacity is the on-disk budget in bytes (compressed size).
	DiskCapacity int64 `mapstructure:"disk_capacity" yaml:"disk_capacity"`

	// DiskPath is the directory holding cache files.
	DiskPath string `mapstructure:"disk_path" yaml:"disk_path"`

	// CompressionLevel is the zstd level (1-22, 0 disables compression).
	CompressionLevel int `mapstructure:"compression_level" yaml:"compression_level"`

	// TTL is how long disk entries live; 0 keeps them forever.
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`

	// CleanupInterval is how often expired entries are pruned; 0 disables it.
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
}

// DefaultConfig returns the default cache configuration.
// DiskPath is left empty; callers place it under the user cache dir.
func DefaultConfig() Config {
	return Config{
		MemoryCapacity:   32 * 1024 * 1024,
		DiskCapacity:     256 * 1024 * 1024,
		CompressionLevel: 3,
		TTL:              7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// Key derives the cache key for one synthesis request.
func Key(text, voiceID string, ratePercent int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", text, voiceID, ratePercent)))
	return hex.EncodeToString(sum[:16])
}
