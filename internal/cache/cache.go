package cache

import (
	"sync"
	"time"

	"github.com/tastythames/switch-backup/internal/model"
)

// State is the lifecycle state of a queued capture job.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateDone      State = "done"
	StateCancelled State = "cancelled"
)

// JobStatus is what a caller polls for after submitting a capture job.
type JobStatus struct {
	ID string `json:"id"`
	// DeviceID is empty for a capture of every device.
	DeviceID   string               `json:"device_id,omitempty"`
	Source     string               `json:"source"`
	State      State                `json:"state"`
	QueuedAt   time.Time            `json:"queued_at"`
	StartedAt  time.Time            `json:"started_at,omitempty"`
	FinishedAt time.Time            `json:"finished_at,omitempty"`
	Result     *model.CaptureResult `json:"result,omitempty"`
	Batch      *model.BatchResult   `json:"batch,omitempty"`
}

// Finished reports whether the job reached a terminal state.
func (s JobStatus) Finished() bool {
	return s.State == StateDone || s.State == StateCancelled
}

// Cache is the interface used by the capture queue.
type Cache interface {
	Set(id string, s JobStatus)
	Get(id string) (JobStatus, bool)
	Snapshot() map[string]JobStatus
	Prune(olderThan time.Time) int
}

// MemCache is an in-memory implementation of Cache.
type MemCache struct {
	mu   sync.RWMutex
	data map[string]JobStatus
}

func NewMemCache() *MemCache {
	return &MemCache{
		data: make(map[string]JobStatus),
	}
}

func (c *MemCache) Set(id string, s JobStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[id] = s
}

func (c *MemCache) Get(id string) (JobStatus, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.data[id]

	return s, ok
}

func (c *MemCache) Snapshot() map[string]JobStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]JobStatus, len(c.data))
	for k, v := range c.data {
		out[k] = v
	}
	return out
}

// Prune drops finished jobs that completed before olderThan and returns how
// many were removed.
func (c *MemCache) Prune(olderThan time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0

	for id, s := range c.data {
		if s.Finished() && s.FinishedAt.Before(olderThan) {
			delete(c.data, id)
			n++
		}
	}

	return n
}
