// Package memory provides an in-process checkpoint.Saver.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/flowgraph/agentgraph/internal/core/checkpoint"
	"github.com/flowgraph/agentgraph/pkg/serialization"
)

// InMemorySaver implements checkpoint.Saver with thread-safe in-memory storage.
// Checkpoints are kept serialized, so callers never share state maps with
// the store.
// PRINCIPLES:
// - KISS: One map guarded by one mutex
// - SRP: Single responsibility for in-memory checkpoint storage
// - DIP: Implements checkpoint.Saver interface
type InMemorySaver struct {
	mu          sync.RWMutex
	entries     map[string]*checkpointEntry
	currentSize int64

	defaultTTL  time.Duration
	maxBytes    int64
	maxMemoryMB int64
	serializer  *serialization.Serializer

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	cleanupOnce   sync.Once
}

// InMemoryConfig holds configuration for InMemorySaver
type InMemoryConfig struct {
	DefaultTTL      time.Duration             // Default TTL for checkpoints
	MaxMemoryMB     int64                     // Maximum memory usage in MB
	CleanupInterval time.Duration             // Cleanup interval for expired items
	Serializer      *serialization.Serializer // Custom serializer (optional)
}

// checkpointEntry holds the serialized checkpoint and the fields List filters on
type checkpointEntry struct {
	id         string
	graphID    string
	threadID   string
	runID      string
	step       int
	timestamp  time.Time
	data       []byte
	size       int64
	expiresAt  time.Time
	accessedAt time.Time
}

// NewInMemorySaver creates a new in-memory checkpoint saver
// PRINCIPLES:
// - KISS: Simple constructor with sensible defaults
// - YAGNI: Only required configuration
func NewInMemorySaver(config InMemoryConfig) *InMemorySaver {
	if config.DefaultTTL == 0 {
		config.DefaultTTL = 24 * time.Hour
	}
	if config.MaxMemoryMB == 0 {
		config.MaxMemoryMB = 1024 // 1GB default
	}
	if config.CleanupInterval == 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	if config.Serializer == nil {
		config.Serializer = serialization.DefaultSerializer()
	}

	saver := &InMemorySaver{
		entries:     make(map[string]*checkpointEntry),
		defaultTTL:  config.DefaultTTL,
		maxMemoryMB: config.MaxMemoryMB,
		maxBytes:    config.MaxMemoryMB * 1024 * 1024,
		serializer:  config.Serializer,
		stopCleanup: make(chan struct{}),
	}
	saver.startCleanup(config.CleanupInterval)
	return saver
}

// DefaultInMemorySaver creates an InMemorySaver with default configuration
func DefaultInMemorySaver() *InMemorySaver {
	return NewInMemorySaver(InMemoryConfig{})
}

// Save stores a checkpoint, replacing any checkpoint with the same ID.
// Least recently used entries are evicted when the memory limit is reached.
func (s *InMemorySaver) Save(_ context.Context, cp *checkpoint.Checkpoint) error {
	if err := cp.Validate(); err != nil {
		return fmt.Errorf("checkpoint validation failed: %w", err)
	}

	data, err := s.serializer.Serialize(cp)
	if err != nil {
		return fmt.Errorf("checkpoint serialization failed: %w", err)
	}
	size := int64(len(data))

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[cp.ID]; ok {
		s.removeLocked(old.id)
	}
	if s.currentSize+size > s.maxBytes {
		s.evictLRULocked(s.currentSize + size - s.maxBytes)
		if s.currentSize+size > s.maxBytes {
			return fmt.Errorf("memory limit exceeded: current=%dMB, max=%dMB",
				s.currentSize/(1024*1024), s.maxMemoryMB)
		}
	}

	now := time.Now()
	s.entries[cp.ID] = &checkpointEntry{
		id:         cp.ID,
		graphID:    cp.GraphID,
		threadID:   cp.ThreadID,
		runID:      cp.Metadata.RunID,
		step:       cp.Metadata.Step,
		timestamp:  cp.Timestamp,
		data:       data,
		size:       size,
		expiresAt:  now.Add(s.defaultTTL),
		accessedAt: now,
	}
	s.currentSize += size
	return nil
}

// Load retrieves a checkpoint from memory
func (s *InMemorySaver) Load(_ context.Context, id string) (*checkpoint.Checkpoint, error) {
	s.mu.Lock()
	entry, exists := s.entries[id]
	if exists && time.Now().After(entry.expiresAt) {
		s.removeLocked(id)
		exists = false
	}
	if !exists {
		s.mu.Unlock()
		return nil, checkpoint.ErrCheckpointNotFound
	}
	entry.accessedAt = time.Now()
	data := entry.data
	s.mu.Unlock()

	return s.decode(data)
}

// List returns checkpoints matching the filter, newest first
func (s *InMemorySaver) List(_ context.Context, filter checkpoint.Filter) ([]*checkpoint.Checkpoint, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("filter validation failed: %w", err)
	}

	now := time.Now()
	s.mu.Lock()
	var matches []*checkpointEntry
	for id, entry := range s.entries {
		if now.After(entry.expiresAt) {
			s.removeLocked(id)
			continue
		}
		if matchesFilter(entry, filter) {
			matches = append(matches, entry)
		}
	}
	s.mu.Unlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].step != matches[j].step {
			return matches[i].step > matches[j].step
		}
		return matches[i].timestamp.After(matches[j].timestamp)
	})

	if filter.Offset >= len(matches) {
		return []*checkpoint.Checkpoint{}, nil
	}
	matches = matches[filter.Offset:]
	if filter.Limit > 0 && len(matches) > filter.Limit {
		matches = matches[:filter.Limit]
	}

	results := make([]*checkpoint.Checkpoint, 0, len(matches))
	for _, entry := range matches {
		cp, err := s.decode(entry.data)
		if err != nil {
			return nil, err
		}
		results = append(results, cp)
	}
	return results, nil
}

// Delete removes a checkpoint from memory
func (s *InMemorySaver) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[id]; !exists {
		return checkpoint.ErrCheckpointNotFound
	}
	s.removeLocked(id)
	return nil
}

// MemoryStats reports memory usage
type MemoryStats struct {
	Count              int64   `json:"count"`
	SizeBytes          int64   `json:"size_bytes"`
	MaxSizeMB          int64   `json:"max_size_mb"`
	UtilizationPercent float64 `json:"utilization_percent"`
}

// GetStats returns memory usage statistics
func (s *InMemorySaver) GetStats() MemoryStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var utilization float64
	if s.maxBytes > 0 {
		utilization = float64(s.currentSize) / float64(s.maxBytes) * 100
	}
	return MemoryStats{
		Count:              int64(len(s.entries)),
		SizeBytes:          s.currentSize,
		MaxSizeMB:          s.maxMemoryMB,
		UtilizationPercent: utilization,
	}
}

// Close stops the cleanup goroutine and releases resources
func (s *InMemorySaver) Close() error {
	s.cleanupOnce.Do(func() {
		close(s.stopCleanup)
		if s.cleanupTicker != nil {
			s.cleanupTicker.Stop()
		}
	})
	return nil
}

func matchesFilter(entry *checkpointEntry, filter checkpoint.Filter) bool {
	return filter.Matches(entry.graphID, entry.threadID, entry.runID, entry.timestamp)
}

func (s *InMemorySaver) decode(data []byte) (*checkpoint.Checkpoint, error) {
	var cp checkpoint.Checkpoint
	if err := s.serializer.Deserialize(data, &cp); err != nil {
		return nil, fmt.Errorf("checkpoint deserialization failed: %w", err)
	}
	return &cp, nil
}

// startCleanup starts the cleanup goroutine for expired items
func (s *InMemorySaver) startCleanup(interval time.Duration) {
	s.cleanupTicker = time.NewTicker(interval)

	go func() {
		for {
			select {
			case <-s.cleanupTicker.C:
				s.cleanupExpired()
			case <-s.stopCleanup:
				return
			}
		}
	}()
}

// cleanupExpired removes expired checkpoints
func (s *InMemorySaver) cleanupExpired() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.entries {
		if now.After(entry.expiresAt) {
			s.removeLocked(id)
		}
	}
}

// removeLocked deletes an entry; s.mu must be held.
func (s *InMemorySaver) removeLocked(id string) {
	if entry, ok := s.entries[id]; ok {
		s.currentSize -= entry.size
		delete(s.entries, id)
	}
}

// evictLRULocked evicts least recently used entries until target bytes are
// freed or the store is empty; s.mu must be held.
func (s *InMemorySaver) evictLRULocked(target int64) int64 {
	items := make([]*checkpointEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		items = append(items, entry)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].accessedAt.Before(items[j].accessedAt)
	})

	var freed int64
	for _, item := range items {
		if freed >= target {
			break
		}
		freed += item.size
		s.removeLocked(item.id)
	}
	return freed
}
