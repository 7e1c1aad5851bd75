package artifactmgr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spdk/artifact-manager/artifact"
	amhttp "github.com/spdk/artifact-manager/http"
	"github.com/spdk/artifact-manager/notify"
	"github.com/spdk/artifact-manager/testutil"
)

// =============================================================================
// Test Doubles
// =============================================================================

// fakeProvider serves canned runs and artifacts. Runs whose artifact list is
// missing from artifacts fail with errArtifacts.
type fakeProvider struct {
	mu sync.Mutex

	runs      []*WorkflowRun
	runsErr   error
	artifacts map[int64][]*Artifact
	payload   []byte

	listRunsCalls int
	downloads     map[int64]int
}

var errArtifacts = errors.New("artifacts unavailable")

func (f *fakeProvider) ListRuns(_ context.Context, _ string, _ int) ([]*WorkflowRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listRunsCalls++
	if f.runsErr != nil {
		return nil, f.runsErr
	}
	return f.runs, nil
}

func (f *fakeProvider) ListArtifacts(_ context.Context, runID int64) ([]*Artifact, error) {
	list, ok := f.artifacts[runID]
	if !ok {
		return nil, errArtifacts
	}
	return list, nil
}

func (f *fakeProvider) DownloadArtifact(_ context.Context, a *Artifact, w io.Writer) (int64, error) {
	f.mu.Lock()
	if f.downloads == nil {
		f.downloads = make(map[int64]int)
	}
	f.downloads[a.RunID]++
	f.mu.Unlock()

	n, err := w.Write(f.payload)
	return int64(n), err
}

func (f *fakeProvider) cycles() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listRunsCalls
}

// recordingNotifier keeps every event it receives.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(_ context.Context, event notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) count(t notify.EventType) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e.Type == t {
			c++
		}
	}
	return c
}

func summaryArtifact(runID int64) *Artifact {
	return &Artifact{ID: runID * 10, Name: "_autorun_summary", RunID: runID}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPoller(t *testing.T, root string, provider *fakeProvider, n notify.Notifier) *Poller {
	t.Helper()

	logger := discardLogger()
	downloader := NewDownloader(root, provider, artifact.NewRepacker(logger), logger)
	sweeper := artifact.NewSweeper(root, artifact.DefaultRetentionConfig(), logger)

	return NewPoller(provider, downloader, sweeper, PollerConfig{
		WorkflowName:  "SPDK per-patch tests",
		ArtifactName:  "_autorun_summary",
		RunMaxAgeDays: 7,
		Interval:      10 * time.Millisecond,
	}, WithLogger(logger), WithNotifier(n))
}

// =============================================================================
// Cycle Tests
// =============================================================================

func TestPoller_Cycle(t *testing.T) {
	root := t.TempDir()
	provider := &fakeProvider{
		runs: []*WorkflowRun{
			{ID: 1, Name: "SPDK per-patch tests", RunNumber: 101},
			{ID: 2, Name: "SPDK per-patch tests", RunNumber: 102},
			{ID: 3, Name: "SPDK per-patch tests", RunNumber: 103},
			{ID: 4, Name: "SPDK per-patch tests", RunNumber: 104},
		},
		artifacts: map[int64][]*Artifact{
			1: {summaryArtifact(1), {ID: 11, Name: "logs", RunID: 1}},
			// 2 fails to list artifacts
			3: {{ID: 31, Name: "logs", RunID: 3}},
			4: {{ID: 40, Name: "_autorun_summary", RunID: 4, Expired: true}},
		},
		payload: testutil.ZipBytes(t, map[string]string{"coverage/index.html": "<html>"}),
	}
	rec := &recordingNotifier{}
	p := newTestPoller(t, root, provider, rec)

	result, err := p.Cycle(context.Background())
	if err == nil {
		t.Fatal("expected joined error for the failing run")
	}
	if !errors.Is(err, errArtifacts) {
		t.Errorf("error = %v, want errArtifacts in chain", err)
	}

	if result.ID == "" {
		t.Error("cycle ID is empty")
	}
	if result.Runs != 4 {
		t.Errorf("Runs = %d, want 4", result.Runs)
	}
	if len(result.Downloaded) != 1 || result.Downloaded[0] != 1 {
		t.Errorf("Downloaded = %v, want [1]", result.Downloaded)
	}
	if len(result.Failed) != 1 || result.Failed[0].RunID != 2 {
		t.Errorf("Failed = %+v, want run 2", result.Failed)
	}
	if len(result.Missing) != 2 {
		t.Errorf("Missing = %v, want runs 3 and 4", result.Missing)
	}
	if result.Sweep == nil {
		t.Error("sweep did not run after a failed run")
	}

	testutil.AssertExists(t, filepath.Join(root, "1", "coverage.tar.gz"))
	for _, id := range []string{"2", "3", "4"} {
		testutil.AssertNotExist(t, filepath.Join(root, id))
	}

	if got := rec.count(notify.EventArtifactStored); got != 1 {
		t.Errorf("stored events = %d, want 1", got)
	}
	if got := rec.count(notify.EventArtifactFailed); got != 1 {
		t.Errorf("failed events = %d, want 1", got)
	}
	if got := rec.count(notify.EventCycleFailed); got != 0 {
		t.Errorf("cycle failed events = %d, want 0 for a run failure", got)
	}
}

func TestPoller_Cycle_SkipsStoredRuns(t *testing.T) {
	root := t.TempDir()
	provider := &fakeProvider{
		runs:      []*WorkflowRun{{ID: 7, Name: "SPDK per-patch tests"}},
		artifacts: map[int64][]*Artifact{7: {summaryArtifact(7)}},
		payload:   testutil.ZipBytes(t, map[string]string{"timing.txt": "1s"}),
	}
	p := newTestPoller(t, root, provider, &recordingNotifier{})

	if _, err := p.Cycle(context.Background()); err != nil {
		t.Fatalf("first Cycle: %v", err)
	}
	result, err := p.Cycle(context.Background())
	if err != nil {
		t.Fatalf("second Cycle: %v", err)
	}

	if len(result.Skipped) != 1 || len(result.Downloaded) != 0 {
		t.Errorf("second cycle downloaded=%v skipped=%v", result.Downloaded, result.Skipped)
	}
	if provider.downloads[7] != 1 {
		t.Errorf("run 7 downloaded %d times, want 1", provider.downloads[7])
	}
}

func TestPoller_Cycle_ListRunsError(t *testing.T) {
	root := t.TempDir()
	old := filepath.Join(root, "99")
	testutil.WriteFile(t, filepath.Join(old, "doc.tar.gz"), "payload")
	testutil.Backdate(t, old, 30*24*time.Hour)

	listErr := errors.New("bad credentials")
	provider := &fakeProvider{runsErr: listErr}
	rec := &recordingNotifier{}
	p := newTestPoller(t, root, provider, rec)

	result, err := p.Cycle(context.Background())
	if !errors.Is(err, listErr) {
		t.Fatalf("error = %v, want %v", err, listErr)
	}
	if result.Sweep != nil {
		t.Error("sweep ran although listing runs failed")
	}
	if got := rec.count(notify.EventCycleFailed); got != 1 {
		t.Errorf("cycle failed events = %d, want 1", got)
	}
	testutil.AssertExists(t, old)
}

func TestPoller_Cycle_SweepsExpiredBuilds(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"100", "assets-cache"} {
		dir := filepath.Join(root, name)
		testutil.WriteFile(t, filepath.Join(dir, CompleteMarker), "")
		testutil.Backdate(t, dir, 10*24*time.Hour)
	}

	rec := &recordingNotifier{}
	p := newTestPoller(t, root, &fakeProvider{}, rec)

	result, err := p.Cycle(context.Background())
	if err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if len(result.Sweep.Deleted) != 1 || result.Sweep.Deleted[0] != "100" {
		t.Errorf("Deleted = %v, want [100]", result.Sweep.Deleted)
	}
	testutil.AssertExists(t, filepath.Join(root, "assets-cache"))
	if got := rec.count(notify.EventBuildsSwept); got != 1 {
		t.Errorf("swept events = %d, want 1", got)
	}
}

func TestPoller_Cycle_LogsEachFailureOnce(t *testing.T) {
	root := t.TempDir()
	provider := &fakeProvider{
		runs:      []*WorkflowRun{{ID: 5, Name: "SPDK per-patch tests"}},
		artifacts: map[int64][]*Artifact{},
	}

	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))
	p := NewPoller(provider,
		NewDownloader(root, provider, nil, logger),
		artifact.NewSweeper(root, artifact.DefaultRetentionConfig(), logger),
		PollerConfig{WorkflowName: "SPDK per-patch tests", ArtifactName: "_autorun_summary", RunMaxAgeDays: 7},
		WithLogger(logger),
	)

	if _, err := p.Cycle(context.Background()); !errors.Is(err, errArtifacts) {
		t.Fatalf("Cycle error = %v, want errArtifacts", err)
	}
	if got := strings.Count(logBuf.String(), "level=ERROR"); got != 1 {
		t.Errorf("ERROR lines = %d, want 1:\n%s", got, logBuf.String())
	}
	if !strings.Contains(logBuf.String(), "event=artifact_failed") {
		t.Errorf("failure not logged as an event:\n%s", logBuf.String())
	}
}

func TestPoller_Cycle_NotifierFailureLoggedOnce(t *testing.T) {
	root := t.TempDir()
	provider := &fakeProvider{
		runs:      []*WorkflowRun{{ID: 6, Name: "SPDK per-patch tests"}},
		artifacts: map[int64][]*Artifact{6: {summaryArtifact(6)}},
		payload:   testutil.ZipBytes(t, map[string]string{"timing.txt": "1s"}),
	}
	broken := notify.NotifierFunc(func(context.Context, notify.Event) error {
		return errors.New("slack unavailable")
	})

	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))
	p := NewPoller(provider,
		NewDownloader(root, provider, nil, logger),
		artifact.NewSweeper(root, artifact.DefaultRetentionConfig(), logger),
		PollerConfig{WorkflowName: "SPDK per-patch tests", ArtifactName: "_autorun_summary", RunMaxAgeDays: 7},
		WithLogger(logger),
		WithNotifier(notify.NewMultiNotifier(&recordingNotifier{}, broken)),
	)

	if _, err := p.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if got := strings.Count(logBuf.String(), "slack unavailable"); got != 1 {
		t.Errorf("notifier failure logged %d times, want 1:\n%s", got, logBuf.String())
	}
}

func TestPoller_Cycle_TransientFailureIsWarning(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"server error", &amhttp.APIError{Service: "github", StatusCode: 502}, notify.SeverityWarning},
		{"rate limited", &amhttp.APIError{Service: "github", StatusCode: 429}, notify.SeverityWarning},
		{"not found", &amhttp.APIError{Service: "github", StatusCode: 404}, notify.SeverityError},
		{"other", errors.New("bad zip"), notify.SeverityError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := failureSeverity(fmt.Errorf("list artifacts: %w", tt.err)); got != tt.want {
				t.Errorf("failureSeverity = %q, want %q", got, tt.want)
			}
		})
	}
}

// =============================================================================
// Run Loop Tests
// =============================================================================

func TestPoller_Run_ContinuesAfterFailureUntilCancelled(t *testing.T) {
	root := t.TempDir()
	provider := &fakeProvider{runsErr: errors.New("temporary outage")}
	rec := &recordingNotifier{}
	p := newTestPoller(t, root, provider, rec)

	ctx, cancel := testutil.CancelableContext(t)
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for provider.cycles() < 3 {
		select {
		case <-deadline:
			cancel()
			t.Fatalf("only %d cycles ran", provider.cycles())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if rec.count(notify.EventCycleFailed) < 2 {
		t.Errorf("cycle failures reported = %d, want at least 2", rec.count(notify.EventCycleFailed))
	}
}

// =============================================================================
// Scheduling Tests
// =============================================================================

func TestPoller_NextWait(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 30, 0, time.UTC)
	hourly, err := ParseSchedule("0 * * * *")
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}

	tests := []struct {
		name   string
		config PollerConfig
		want   time.Duration
	}{
		{"default", PollerConfig{}, 30 * time.Second},
		{"interval", PollerConfig{Interval: time.Minute}, time.Minute},
		{"schedule wins", PollerConfig{Interval: time.Minute, Schedule: hourly}, 59*time.Minute + 30*time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPoller(&fakeProvider{}, nil, nil, tt.config)
			p.now = func() time.Time { return now }
			if got := p.nextWait(); got != tt.want {
				t.Errorf("nextWait = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"*/5 * * * *", false},
		{"@hourly", false},
		{"@every 45s", false},
		{"* * *", true},
		{"not a schedule", true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := ParseSchedule(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseSchedule(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}
