// Package cache keeps synthesized speech so that repeated captions (intros,
// recurring phrases, rewinds) do not hit the synthesis service twice.
// It has two levels: an in-memory LRU and zstd-compressed files on disk.
package cache
