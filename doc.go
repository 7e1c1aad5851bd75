// Package artifactmgr keeps a local copy of CI summary artifacts.
//
// A Poller periodically lists the workflow runs of one pipeline through a
// Provider, downloads each run's summary artifact with a Downloader into
// <root>/<run id>, repacks its bulky subdirectories into .tar.gz archives
// and sweeps build directories that outlived the retention window.
//
// The package is organized into subpackages by concern:
//
//   - artifact: Repacking, archive codecs and retention sweeping
//   - config: Layered settings (defaults, YAML files, environment)
//   - http: Authenticated payload streaming, API errors, pagination
//   - notify: Event notifications (log, Slack, webhook)
//
// # Quick Start
//
//	provider, _ := artifactmgr.NewGitHubProvider(token, "spdk", "spdk")
//	downloader := artifactmgr.NewDownloader("builds", provider, artifact.NewRepacker(logger), logger)
//	sweeper := artifact.NewSweeper("builds", artifact.DefaultRetentionConfig(), logger)
//
//	poller := artifactmgr.NewPoller(provider, downloader, sweeper, artifactmgr.PollerConfig{
//	    WorkflowName:  "SPDK per-patch tests",
//	    ArtifactName:  "_autorun_summary",
//	    RunMaxAgeDays: 7,
//	    Interval:      30 * time.Second,
//	}, artifactmgr.WithLogger(logger))
//	err := poller.Run(ctx)
package artifactmgr
