// Command artifact-manager mirrors the summary artifacts of a GitHub Actions
// pipeline into a local directory, repacks their bulky directories and
// prunes old builds.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	artifactmgr "github.com/spdk/artifact-manager"
	"github.com/spdk/artifact-manager/artifact"
	"github.com/spdk/artifact-manager/config"
	clierrors "github.com/spdk/artifact-manager/errors"
	"github.com/spdk/artifact-manager/notify"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(runCLI(ctx, os.Args[1:], os.Getenv, os.Stderr))
}

func runCLI(ctx context.Context, args []string, getenv func(string) string, stderr io.Writer) int {
	fs := flag.NewFlagSet("artifact-manager", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configFile := fs.String("config", "", "path to a YAML config file")
	once := fs.Bool("once", false, "run a single cycle and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	settings, err := config.Load(config.LoadOptions{
		ConfigFile:      *configFile,
		GlobalConfigDir: "artifact-manager",
		Getenv:          getenv,
		ErrWriter:       stderr,
	})
	if err != nil {
		fmt.Fprintln(stderr, clierrors.Explain(err, getenv(config.EnvPrefix+"API_URL")))
		return 1
	}

	logger := newLogger(settings.LogLevel, settings.LogFormat, stderr)
	slog.SetDefault(logger)

	poller, err := buildPoller(settings, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		return 1
	}

	if *once {
		if _, err := poller.Cycle(ctx); err != nil {
			fmt.Fprintln(stderr, clierrors.Explain(err, settings.APIURL))
			return 1
		}
		return 0
	}

	if err := poller.Run(ctx); err != nil {
		logger.Error("poller exited", "error", err)
		return 1
	}
	return 0
}

func buildPoller(s *config.Settings, logger *slog.Logger) (*artifactmgr.Poller, error) {
	ghOpts := []artifactmgr.GitHubOption{
		artifactmgr.WithDownloadAttempts(s.DownloadAttempts),
	}
	if s.APIURL != "" {
		ghOpts = append(ghOpts, artifactmgr.WithBaseURL(s.APIURL))
	}
	provider, err := artifactmgr.NewGitHubProvider(s.Token, s.Owner, s.Repo, ghOpts...)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.DownloadDir, 0755); err != nil {
		return nil, fmt.Errorf("create download directory: %w", err)
	}

	pollerConfig := artifactmgr.PollerConfig{
		WorkflowName:  s.WorkflowName,
		ArtifactName:  s.ArtifactName,
		RunMaxAgeDays: s.RunMaxAgeDays,
		Interval:      s.PollInterval,
		SweepDryRun:   s.SweepDryRun,
	}
	if s.Schedule != "" {
		schedule, err := artifactmgr.ParseSchedule(s.Schedule)
		if err != nil {
			return nil, fmt.Errorf("invalid schedule %q: %w", s.Schedule, err)
		}
		pollerConfig.Schedule = schedule
	}

	downloader := artifactmgr.NewDownloader(s.DownloadDir, provider, artifact.NewRepacker(logger), logger)
	sweeper := artifact.NewSweeper(s.DownloadDir, artifact.RetentionConfig{RetentionDays: s.RetentionDays}, logger)

	return artifactmgr.NewPoller(provider, downloader, sweeper, pollerConfig,
		artifactmgr.WithLogger(logger),
		artifactmgr.WithNotifier(newNotifier(s, logger)),
	), nil
}

func newNotifier(s *config.Settings, logger *slog.Logger) notify.Notifier {
	notifiers := []notify.Notifier{notify.NewLogNotifier(logger)}
	if s.SlackWebhookURL != "" {
		var opts []notify.SlackOption
		if s.SlackChannel != "" {
			opts = append(opts, notify.WithSlackChannel(s.SlackChannel))
		}
		slack := notify.NewSlackNotifier(s.SlackWebhookURL, opts...)
		notifiers = append(notifiers, notify.MinSeverity(slack, s.SlackMinSeverity))
	}
	if s.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(s.WebhookURL, nil))
	}
	return notify.NewMultiNotifier(notifiers...)
}

// newLogger builds the process logger. Unknown levels fall back to info.
func newLogger(level, format string, w io.Writer) *slog.Logger {
	var l slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		l = slog.LevelDebug
	case "WARN", "WARNING":
		l = slog.LevelWarn
	case "ERROR":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: l}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
