// Package jobs coordinates merge jobs through a single process-wide slot.
//
// StartMerge claims the slot with a compare-and-swap and never queues; a
// second start while a job is running or cancelling fails with
// services.ErrAlreadyRunning. Each job streams progress on its own channel,
// which closes after exactly one terminal event or the cancel
// acknowledgement. CancelMerge frees the slot before handing the output to
// the deletion engine, so a long deletion never blocks the next job.
package jobs
