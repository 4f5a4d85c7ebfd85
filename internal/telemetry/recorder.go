package telemetry

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/banshee-data/lanepilot/internal/agent"
	"github.com/banshee-data/lanepilot/internal/monitoring"
	"github.com/banshee-data/lanepilot/internal/timeutil"
)

// RecorderOptions tune the background writer.
type RecorderOptions struct {
	Buffer     int           // queued ticks before OnTick starts dropping
	BatchSize  int           // ticks per transaction
	FlushEvery time.Duration // upper bound on how long a tick waits in memory
	Clock      timeutil.Clock
}

// DefaultRecorderOptions buffer about 30 s of ticks at 30 Hz.
func DefaultRecorderOptions() RecorderOptions {
	return RecorderOptions{
		Buffer:     1024,
		BatchSize:  128,
		FlushEvery: time.Second,
	}
}

// RecorderStats counts recorder activity.
type RecorderStats struct {
	Written int64 `json:"written"`
	Dropped int64 `json:"dropped"`
	Errors  int64 `json:"errors"`
}

// Recorder is an agent.Observer that persists ticks on a background
// goroutine. OnTick never blocks the control loop: when the queue is full
// the tick is dropped and counted.
type Recorder struct {
	store *Store
	runID string
	opts  RecorderOptions
	ch    chan agent.TickRecord
	logf  func(string, ...interface{})

	written atomic.Int64
	dropped atomic.Int64
	errors  atomic.Int64
}

// NewRecorder returns a recorder writing to runID. Call Run to start it.
func NewRecorder(store *Store, runID string, opts RecorderOptions) *Recorder {
	def := DefaultRecorderOptions()
	if opts.Buffer <= 0 {
		opts.Buffer = def.Buffer
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.FlushEvery <= 0 {
		opts.FlushEvery = def.FlushEvery
	}
	if opts.Clock == nil {
		opts.Clock = &timeutil.RealClock{}
	}
	return &Recorder{
		store: store,
		runID: runID,
		opts:  opts,
		ch:    make(chan agent.TickRecord, opts.Buffer),
		logf:  monitoring.Prefixed("telemetry"),
	}
}

// RunID is the run this recorder writes to.
func (r *Recorder) RunID() string { return r.runID }

// OnTick queues rec for writing.
func (r *Recorder) OnTick(rec agent.TickRecord) {
	select {
	case r.ch <- rec:
	default:
		r.dropped.Add(1)
	}
}

// Stats returns the recorder counters.
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Written: r.written.Load(),
		Dropped: r.dropped.Load(),
		Errors:  r.errors.Load(),
	}
}

// Run writes queued ticks until ctx is done, then drains whatever is still
// queued and returns.
func (r *Recorder) Run(ctx context.Context) error {
	ticker := r.opts.Clock.NewTicker(r.opts.FlushEvery)
	defer ticker.Stop()

	buf := make([]agent.TickRecord, 0, r.opts.BatchSize)
	flush := func() {
		if len(buf) == 0 {
			return
		}
		// A cancelled run context must not lose the final batch.
		if err := r.store.InsertTicks(context.Background(), r.runID, buf); err != nil {
			r.errors.Add(1)
			r.logf("failed to write %d ticks: %v", len(buf), err)
		} else {
			r.written.Add(int64(len(buf)))
		}
		buf = buf[:0]
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case rec := <-r.ch:
					buf = append(buf, rec)
					if len(buf) >= r.opts.BatchSize {
						flush()
					}
				default:
					flush()
					return nil
				}
			}
		case rec := <-r.ch:
			buf = append(buf, rec)
			if len(buf) >= r.opts.BatchSize {
				flush()
			}
		case <-ticker.C():
			flush()
		}
	}
}

// Finish stamps the run as ended with the recorder's drop count.
func (r *Recorder) Finish(ctx context.Context, ended time.Time) error {
	return r.store.FinishRun(ctx, r.runID, ended, r.dropped.Load())
}
