package artifactmgr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	nanoid "github.com/matoous/go-nanoid/v2"
	"github.com/robfig/cron/v3"

	"github.com/spdk/artifact-manager/artifact"
	amhttp "github.com/spdk/artifact-manager/http"
	"github.com/spdk/artifact-manager/notify"
)

// PollerConfig holds the poll loop settings.
type PollerConfig struct {
	WorkflowName  string
	ArtifactName  string
	RunMaxAgeDays int

	// Interval is the pause between cycles when Schedule is nil.
	Interval time.Duration

	// Schedule, when set, decides when the next cycle starts.
	Schedule cron.Schedule

	SweepDryRun bool
}

// ParseSchedule parses a five-field cron expression or a descriptor such
// as "@hourly".
func ParseSchedule(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return parser.Parse(expr)
}

// Poller drives the download, repack and sweep cycle.
type Poller struct {
	provider   Provider
	downloader *Downloader
	sweeper    *artifact.Sweeper
	notifier   notify.Notifier
	logger     *slog.Logger
	config     PollerConfig

	now func() time.Time
}

// PollerOption configures NewPoller.
type PollerOption func(*Poller)

// WithLogger sets the poller's logger.
func WithLogger(logger *slog.Logger) PollerOption {
	return func(p *Poller) { p.logger = logger }
}

// WithNotifier sets where poller events are reported. It replaces the
// default log notifier, so n should include one to keep failures in the log.
func WithNotifier(n notify.Notifier) PollerOption {
	return func(p *Poller) { p.notifier = n }
}

// NewPoller creates a poller.
func NewPoller(provider Provider, downloader *Downloader, sweeper *artifact.Sweeper, config PollerConfig, opts ...PollerOption) *Poller {
	p := &Poller{
		provider:   provider,
		downloader: downloader,
		sweeper:    sweeper,
		logger:     slog.Default(),
		config:     config,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.notifier == nil {
		p.notifier = notify.NewLogNotifier(p.logger)
	}
	return p
}

// RunFailure records why one run could not be processed.
type RunFailure struct {
	RunID int64
	Err   error
}

// CycleResult summarizes one poll cycle.
type CycleResult struct {
	ID         string
	Runs       int
	Downloaded []int64
	Skipped    []int64
	Missing    []int64
	Failed     []RunFailure
	Sweep      *artifact.CleanupResult
}

// Run executes cycles until ctx is cancelled. Failures are reported by
// Cycle; the loop carries on with the next one.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller started",
		"workflow", p.config.WorkflowName,
		"artifact", p.config.ArtifactName,
	)

	for {
		if _, err := p.Cycle(ctx); err != nil && ctx.Err() != nil {
			break
		}

		wait := p.nextWait()
		p.logger.Debug("waiting for next cycle", "wait", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			p.logger.Info("poller stopped")
			return nil
		case <-timer.C:
		}
	}

	p.logger.Info("poller stopped")
	return nil
}

// Cycle lists the pipeline's recent runs, stores each run's summary
// artifact and sweeps expired build directories. Failing runs are recorded
// and skipped; the returned error joins every failure.
func (p *Poller) Cycle(ctx context.Context) (*CycleResult, error) {
	result := &CycleResult{ID: newCycleID()}
	logger := p.logger.With("cycle", result.ID)

	runs, err := p.provider.ListRuns(ctx, p.config.WorkflowName, p.config.RunMaxAgeDays)
	if err != nil {
		err = fmt.Errorf("list runs: %w", err)
		p.cycleFailed(ctx, result, err)
		return result, err
	}
	result.Runs = len(runs)
	logger.Debug("listed runs", "count", len(runs))

	var errs []error
	for _, run := range runs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := p.processRun(ctx, logger, run, result); err != nil {
			result.Failed = append(result.Failed, RunFailure{RunID: run.ID, Err: err})
			errs = append(errs, fmt.Errorf("run %d: %w", run.ID, err))
			p.notify(ctx, notify.Event{
				Type:     notify.EventArtifactFailed,
				RunID:    strconv.FormatInt(run.ID, 10),
				URL:      run.HTMLURL,
				Severity: failureSeverity(err),
				Message:  err.Error(),
				Metadata: map[string]any{"cycle": result.ID},
			})
		}
	}

	if err := p.sweep(ctx, logger, result); err != nil {
		p.cycleFailed(ctx, result, err)
		errs = append(errs, err)
	}

	logger.Info("poll cycle finished",
		"runs", result.Runs,
		"downloaded", len(result.Downloaded),
		"skipped", len(result.Skipped),
		"missing", len(result.Missing),
		"failed", len(result.Failed),
	)
	return result, errors.Join(errs...)
}

func (p *Poller) processRun(ctx context.Context, logger *slog.Logger, run *WorkflowRun, result *CycleResult) error {
	artifacts, err := p.provider.ListArtifacts(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("list artifacts: %w", err)
	}

	a := findArtifact(artifacts, p.config.ArtifactName)
	if a == nil {
		logger.Debug("run has no summary artifact", "run_id", run.ID, "status", run.Status)
		result.Missing = append(result.Missing, run.ID)
		return nil
	}
	if a.Expired {
		logger.Debug("summary artifact expired", "run_id", run.ID)
		result.Missing = append(result.Missing, run.ID)
		return nil
	}

	res, err := p.downloader.Download(ctx, a)
	if err != nil {
		return err
	}
	if res.Skipped {
		result.Skipped = append(result.Skipped, run.ID)
		return nil
	}

	result.Downloaded = append(result.Downloaded, run.ID)
	p.notify(ctx, notify.Event{
		Type:     notify.EventArtifactStored,
		RunID:    strconv.FormatInt(run.ID, 10),
		Severity: notify.SeverityInfo,
		Message:  fmt.Sprintf("stored %s for run #%d", a.Name, run.RunNumber),
		URL:      run.HTMLURL,
		Metadata: map[string]any{
			"dir":      res.Dir,
			"size":     humanize.Bytes(uint64(res.Bytes)),
			"archives": len(res.Archives),
		},
	})
	return nil
}

func (p *Poller) sweep(ctx context.Context, logger *slog.Logger, result *CycleResult) error {
	swept, err := p.sweeper.Sweep(p.config.SweepDryRun)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	result.Sweep = swept

	if len(swept.Deleted) > 0 {
		p.notify(ctx, notify.Event{
			Type:     notify.EventBuildsSwept,
			Severity: notify.SeverityInfo,
			Message:  fmt.Sprintf("swept %d build directories", len(swept.Deleted)),
			Metadata: map[string]any{
				"deleted": swept.Deleted,
				"freed":   humanize.Bytes(uint64(swept.SpaceSaved)),
				"dry_run": p.config.SweepDryRun,
			},
		})
	}

	if usage, err := p.sweeper.DiskUsage(); err == nil {
		logger.Debug("download root usage",
			"builds", usage.BuildCount,
			"size", humanize.Bytes(uint64(usage.TotalSize)),
		)
	}

	if len(swept.Errors) > 0 {
		errs := make([]error, 0, len(swept.Errors))
		for _, msg := range swept.Errors {
			errs = append(errs, errors.New(msg))
		}
		return fmt.Errorf("sweep: %w", errors.Join(errs...))
	}
	return nil
}

// cycleFailed reports a failure of the cycle itself. Per-run failures are
// reported as artifact_failed events instead.
func (p *Poller) cycleFailed(ctx context.Context, result *CycleResult, err error) {
	if ctx.Err() != nil {
		return
	}
	p.notify(ctx, notify.Event{
		Type:     notify.EventCycleFailed,
		Severity: failureSeverity(err),
		Message:  err.Error(),
		Metadata: map[string]any{"cycle": result.ID},
	})
}

func (p *Poller) notify(ctx context.Context, event notify.Event) {
	if event.Workflow == "" {
		event.Workflow = p.config.WorkflowName
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	if err := p.notifier.Notify(ctx, event); err != nil {
		p.logger.Warn("notification failed", "event", event.Type, "error", err)
	}
}

// failureSeverity reports transient API failures (rate limits, 5xx) as
// warnings; the next cycle retries them.
func failureSeverity(err error) string {
	if amhttp.IsRetryable(err) {
		return notify.SeverityWarning
	}
	return notify.SeverityError
}

// nextWait returns how long to sleep before the next cycle.
func (p *Poller) nextWait() time.Duration {
	if p.config.Schedule != nil {
		now := p.now()
		if wait := p.config.Schedule.Next(now).Sub(now); wait > 0 {
			return wait
		}
	}
	if p.config.Interval > 0 {
		return p.config.Interval
	}
	return 30 * time.Second
}

// newCycleID returns a short random identifier for log correlation.
func newCycleID() string {
	id, err := nanoid.New(10)
	if err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return id
}
