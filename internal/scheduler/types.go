package scheduler

import (
	"context"

	"github.com/tastythames/switch-backup/internal/model"
)

const (
	SourceManual   = "manual"
	SourceSchedule = "schedule"
)

// Job is one unit of capture work for the queue.
type Job struct {
	ID string
	// DeviceID targets one device, empty captures the whole registry.
	DeviceID string
	Source   string
	// ScheduleID is set for jobs submitted by a schedule trigger.
	ScheduleID string
}

// All reports whether the job captures every device.
func (j Job) All() bool {
	return j.DeviceID == ""
}

// Runner executes captures, the capture engine implements it.
type Runner interface {
	CaptureDevice(ctx context.Context, id string) model.CaptureResult
	CaptureAll(ctx context.Context) model.BatchResult
}
