package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Shidfar/sirius/internal/config"
	"github.com/Shidfar/sirius/internal/engine"
)

// ErrBusy is returned by Submit when the admission queue is at capacity.
// Backpressure is explicit: the caller sees the rejection immediately instead
// of queuing without bound.
var ErrBusy = errors.New("scheduler queue is full")

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("scheduler is closed")

// Status classifies a job's terminal outcome.
type Status int

const (
	StatusDone Status = iota
	StatusFailed
	StatusCancelled
	StatusTimeout
)

func (s Status) String() string {
	switch s {
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	case StatusTimeout:
		return "timeout"
	}
	return "unknown"
}

// Outcome is the single terminal event delivered for a job.
type Outcome struct {
	Status Status
	Audio  *engine.RawAudio // set when Status == StatusDone
	Err    error            // set when Status == StatusFailed
}

const (
	jobQueued = iota
	jobRunning
	jobTerminal
)

// Job tracks one accepted synthesis request until its terminal outcome.
// Exactly one Outcome is ever delivered on Done.
type Job struct {
	ID     string
	Params engine.Params

	ctx      context.Context
	enqueued time.Time
	outcome  chan Outcome
	timer    *time.Timer

	mu    sync.Mutex
	state int
}

// Done yields the job's terminal outcome.
func (j *Job) Done() <-chan Outcome { return j.outcome }

// begin moves queued -> running. It reports false when the queue-wait timer
// or a cancellation already terminated the job.
func (j *Job) begin() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != jobQueued {
		return false
	}
	j.state = jobRunning
	if j.timer != nil {
		j.timer.Stop()
	}
	return true
}

// finish delivers the terminal outcome; only the first caller wins.
func (j *Job) finish(out Outcome) bool {
	j.mu.Lock()
	if j.state == jobTerminal {
		j.mu.Unlock()
		return false
	}
	j.state = jobTerminal
	if j.timer != nil {
		j.timer.Stop()
	}
	j.mu.Unlock()
	j.outcome <- out
	return true
}

// Scheduler runs synthesis jobs on a fixed worker pool fed by a bounded FIFO
// queue shared across all sessions.
type Scheduler struct {
	synth        engine.Synthesizer
	queue        chan *Job
	queueTimeout time.Duration
	log          *slog.Logger
	wg           sync.WaitGroup

	mu     sync.Mutex
	closed bool

	jobsCounter   metric.Int64Counter
	synthDuration metric.Float64Histogram
}

func New(cfg config.SchedulerConfig, synth engine.Synthesizer, log *slog.Logger) *Scheduler {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1
	}
	s := &Scheduler{
		synth:        synth,
		queue:        make(chan *Job, queueSize),
		queueTimeout: time.Duration(cfg.QueueTimeoutMS) * time.Millisecond,
		log:          log.With(slog.String("component", "scheduler")),
	}
	if err := s.initMetrics(); err != nil {
		s.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	s.log.Info("scheduler started", slog.Int("workers", workers), slog.Int("queue_size", queueSize))
	return s
}

// Submit admits one job or fails fast. The returned job resolves through
// Done; ErrBusy means the queue is at capacity right now.
func (s *Scheduler) Submit(ctx context.Context, params engine.Params) (*Job, error) {
	job := &Job{
		ID:       uuid.NewString(),
		Params:   params,
		ctx:      ctx,
		enqueued: time.Now(),
		outcome:  make(chan Outcome, 1),
	}
	if s.queueTimeout > 0 {
		job.timer = time.AfterFunc(s.queueTimeout, func() {
			if job.expire() {
				s.count(Outcome{Status: StatusTimeout})
				s.log.Warn("job timed out in queue", slog.String("job_id", job.ID))
			}
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		if job.timer != nil {
			job.timer.Stop()
		}
		return nil, ErrClosed
	}
	select {
	case s.queue <- job:
		return job, nil
	default:
		if job.timer != nil {
			job.timer.Stop()
		}
		return nil, ErrBusy
	}
}

// expire terminates a job that is still queued when its wait deadline fires.
func (j *Job) expire() bool {
	j.mu.Lock()
	if j.state != jobQueued {
		j.mu.Unlock()
		return false
	}
	j.state = jobTerminal
	j.mu.Unlock()
	j.outcome <- Outcome{Status: StatusTimeout}
	return true
}

// Close stops admission and waits for workers to drain the queue.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for job := range s.queue {
		s.run(job)
	}
}

func (s *Scheduler) run(job *Job) {
	if job.ctx.Err() != nil {
		// never started; skip the work entirely
		if job.finish(Outcome{Status: StatusCancelled}) {
			s.count(Outcome{Status: StatusCancelled})
		}
		return
	}
	if !job.begin() {
		return
	}

	start := time.Now()
	audio, err := s.synth.Synthesize(job.ctx, job.Params)
	elapsed := time.Since(start)

	var out Outcome
	switch {
	case err == nil:
		out = Outcome{Status: StatusDone, Audio: audio}
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || job.ctx.Err() != nil:
		out = Outcome{Status: StatusCancelled}
	default:
		out = Outcome{Status: StatusFailed, Err: err}
		s.log.Warn("synthesis failed",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()))
	}
	job.finish(out)
	s.count(out)
	s.observe(elapsed, out)
}

func (s *Scheduler) initMetrics() error {
	meter := otel.Meter("github.com/Shidfar/sirius/scheduler")
	queueDepth, err := meter.Int64ObservableGauge("sirius.scheduler.queue_depth",
		metric.WithDescription("Jobs waiting for a worker"))
	if err != nil {
		return err
	}
	if _, err := meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		obs.ObserveInt64(queueDepth, int64(len(s.queue)))
		return nil
	}, queueDepth); err != nil {
		return err
	}
	jobs, err := meter.Int64Counter("sirius.scheduler.jobs",
		metric.WithDescription("Terminal job outcomes"))
	if err != nil {
		return err
	}
	duration, err := meter.Float64Histogram("sirius.synthesis.duration",
		metric.WithDescription("Wall time of one synthesis call"),
		metric.WithUnit("s"))
	if err != nil {
		return err
	}
	s.jobsCounter = jobs
	s.synthDuration = duration
	return nil
}

func (s *Scheduler) count(out Outcome) {
	if s.jobsCounter == nil {
		return
	}
	s.jobsCounter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("outcome", out.Status.String())))
}

func (s *Scheduler) observe(elapsed time.Duration, out Outcome) {
	if s.synthDuration == nil {
		return
	}
	s.synthDuration.Record(context.Background(), elapsed.Seconds(),
		metric.WithAttributes(attribute.String("outcome", out.Status.String())))
}
