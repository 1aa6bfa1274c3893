package metrics

const (
	namespace = "switch_backup"

	// capture outcomes
	MetricCaptures        = "captures_total"
	MetricCaptureDuration = "capture_duration_seconds"
	MetricBatches         = "batches_total"

	// per device health
	MetricDeviceUp          = "device_last_capture_success"
	MetricLastCaptureTs     = "device_last_capture_timestamp_seconds"
	MetricArtifactSizeBytes = "device_last_artifact_bytes"

	// queue + scheduler
	MetricQueueDepth     = "queue_depth"
	MetricQueueDropped   = "queue_dropped_total"
	MetricScheduledFires = "scheduled_fires_total"
	MetricSchedules      = "schedules_registered"
)
