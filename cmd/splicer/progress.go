package main

import (
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"

	"splicer/internal/jobs"
)

// progressReporter renders job events for the user.
type progressReporter interface {
	Update(ev jobs.Event)
	Finish()
}

// newProgressReporter draws a bar on terminals and plain lines elsewhere.
func newProgressReporter(w io.Writer, label string) progressReporter {
	if !isTerminal(w) {
		return &lineReporter{out: w, last: -1}
	}
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(label),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
	)
	return &barReporter{bar: bar, label: label}
}

type barReporter struct {
	bar   *progressbar.ProgressBar
	label string
}

func (r *barReporter) Update(ev jobs.Event) {
	if ev.Kind != jobs.EventProgress && ev.Kind != jobs.EventCompleted {
		return
	}
	r.bar.Describe(fmt.Sprintf("%s %s", r.label, ev.Progress.Timemark))
	_ = r.bar.Set(ev.Progress.Percent)
}

func (r *barReporter) Finish() {
	_ = r.bar.Exit()
}

// lineReporter prints one line per percent change.
type lineReporter struct {
	out  io.Writer
	last int
}

func (r *lineReporter) Update(ev jobs.Event) {
	if ev.Kind != jobs.EventProgress {
		return
	}
	if ev.Progress.Percent == r.last {
		return
	}
	r.last = ev.Progress.Percent
	fmt.Fprintf(r.out, "progress %3d%%  %s  %.1f fps\n", ev.Progress.Percent, ev.Progress.Timemark, ev.Progress.FPS)
}

func (r *lineReporter) Finish() {}
