package daemon

import (
	"sync"

	"splicer/internal/jobs"
)

const (
	defaultRetainedJobs = 16
	defaultJobEvents    = 512
)

// jobLog holds the buffered events of one job.
type jobLog struct {
	events []jobs.Event
	done   bool
}

// EventLog buffers job stream events so request/response clients can poll
// them by sequence number. Only the most recent jobs are retained.
type EventLog struct {
	mu        sync.RWMutex
	maxJobs   int
	maxEvents int
	order     []string
	logs      map[string]*jobLog
}

// NewEventLog creates a bounded buffer. Non-positive limits use defaults.
func NewEventLog(maxJobs, maxEvents int) *EventLog {
	if maxJobs <= 0 {
		maxJobs = defaultRetainedJobs
	}
	if maxEvents <= 0 {
		maxEvents = defaultJobEvents
	}
	return &EventLog{
		maxJobs:   maxJobs,
		maxEvents: maxEvents,
		logs:      make(map[string]*jobLog, maxJobs),
	}
}

// Open registers a job so polls succeed before its first event arrives.
func (l *EventLog) Open(jobID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.logs[jobID]; ok {
		return
	}
	l.logs[jobID] = &jobLog{}
	l.order = append(l.order, jobID)
	for len(l.order) > l.maxJobs {
		evicted := l.order[0]
		l.order = l.order[1:]
		delete(l.logs, evicted)
	}
}

// Publish appends ev to its job. A terminal event marks the job done.
func (l *EventLog) Publish(ev jobs.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	log, ok := l.logs[ev.JobID]
	if !ok {
		return
	}
	log.events = append(log.events, ev)
	if len(log.events) > l.maxEvents {
		// Progress is superseded by later progress, so the oldest entries go.
		trim := len(log.events) - l.maxEvents
		log.events = append([]jobs.Event(nil), log.events[trim:]...)
	}
	if ev.Kind.Terminal() {
		log.done = true
	}
}

// Since returns events of jobID with sequence strictly greater than seq and
// whether the job has ended. known is false for unregistered or evicted jobs.
func (l *EventLog) Since(jobID string, seq int64) (events []jobs.Event, done bool, known bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	log, ok := l.logs[jobID]
	if !ok {
		return nil, false, false
	}
	out := make([]jobs.Event, 0, len(log.events))
	for _, ev := range log.events {
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out, log.done, true
}
