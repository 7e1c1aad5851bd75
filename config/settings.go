package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Required environment variables. They are read without the EnvPrefix.
const (
	EnvToken = "GITHUB_TOKEN"
	EnvOwner = "REPO_OWNER"
	EnvRepo  = "REPO_NAME"
)

// EnvPrefix is the prefix for optional settings taken from the environment.
const EnvPrefix = "ARTIFACT_MANAGER_"

// Configuration keys.
const (
	KeyDownloadDir      = "download_dir"
	KeyWorkflowName     = "workflow_name"
	KeyArtifactName     = "artifact_name"
	KeyRunMaxAgeDays    = "run_max_age_days"
	KeyRetentionDays    = "retention_days"
	KeyPollInterval     = "poll_interval"
	KeySchedule         = "schedule"
	KeyAPIURL           = "api_url"
	KeyDownloadAttempts = "download_attempts"
	KeySweepDryRun      = "sweep_dry_run"
	KeyLogLevel         = "log_level"
	KeyLogFormat        = "log_format"
	KeySlackWebhookURL  = "slack_webhook_url"
	KeySlackChannel     = "slack_channel"
	KeySlackMinSeverity = "slack_min_severity"
	KeyWebhookURL       = "webhook_url"
)

// Defaults returns the built-in value of every optional key.
func Defaults() map[string]string {
	return map[string]string{
		KeyDownloadDir:      "builds",
		KeyWorkflowName:     "SPDK per-patch tests",
		KeyArtifactName:     "_autorun_summary",
		KeyRunMaxAgeDays:    "7",
		KeyRetentionDays:    "7",
		KeyPollInterval:     "30s",
		KeySchedule:         "",
		KeyAPIURL:           "",
		KeyDownloadAttempts: "1",
		KeySweepDryRun:      "false",
		KeyLogLevel:         "info",
		KeyLogFormat:        "text",
		KeySlackWebhookURL:  "",
		KeySlackChannel:     "",
		KeySlackMinSeverity: "info",
		KeyWebhookURL:       "",
	}
}

// ErrMissingEnv indicates required environment variables are not set.
var ErrMissingEnv = errors.New("missing required environment variables")

// MissingEnvError lists the required environment variables that are unset.
type MissingEnvError struct {
	Names []string
}

// Error implements the error interface.
func (e *MissingEnvError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingEnv, strings.Join(e.Names, ", "))
}

// Unwrap returns ErrMissingEnv.
func (e *MissingEnvError) Unwrap() error {
	return ErrMissingEnv
}

// InvalidValueError reports a configuration value that cannot be parsed.
type InvalidValueError struct {
	Key    string
	Value  string
	Source Source
	Err    error
}

// Error implements the error interface.
func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid %s %q (from %s): %v", e.Key, e.Value, e.Source, e.Err)
}

// Unwrap returns the parse error.
func (e *InvalidValueError) Unwrap() error {
	return e.Err
}

// Settings is the typed configuration of the agent, built once at startup
// and handed to every component.
type Settings struct {
	Token string
	Owner string
	Repo  string

	DownloadDir      string
	WorkflowName     string
	ArtifactName     string
	RunMaxAgeDays    int
	RetentionDays    int
	PollInterval     time.Duration
	Schedule         string
	APIURL           string
	DownloadAttempts int
	SweepDryRun      bool

	LogLevel  string
	LogFormat string

	SlackWebhookURL  string
	SlackChannel     string
	SlackMinSeverity string
	WebhookURL       string
}

// LoadOptions controls where Load reads configuration from.
type LoadOptions struct {
	// ConfigFile is an optional YAML file path.
	ConfigFile string

	// GlobalConfigDir names the directory under ~/.config/. Empty disables
	// the global config file.
	GlobalConfigDir string

	// Getenv looks up environment variables. Defaults to os.Getenv.
	Getenv func(string) string

	// ErrWriter receives resolver warnings. Defaults to os.Stderr.
	ErrWriter io.Writer
}

// Load resolves Settings from defaults, config files and the environment.
// Missing required variables produce a *MissingEnvError.
func Load(opts LoadOptions) (*Settings, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	s := &Settings{
		Token: getenv(EnvToken),
		Owner: getenv(EnvOwner),
		Repo:  getenv(EnvRepo),
	}

	var missing []string
	for _, kv := range [][2]string{{EnvToken, s.Token}, {EnvOwner, s.Owner}, {EnvRepo, s.Repo}} {
		if kv[1] == "" {
			missing = append(missing, kv[0])
		}
	}
	if len(missing) > 0 {
		return nil, &MissingEnvError{Names: missing}
	}

	defaults := Defaults()
	validKeys := make([]string, 0, len(defaults))
	for k := range defaults {
		validKeys = append(validKeys, k)
	}

	resolver := NewResolver(ResolverConfig{
		EnvPrefix:       EnvPrefix,
		GlobalConfigDir: opts.GlobalConfigDir,
		ConfigFile:      opts.ConfigFile,
		Defaults:        defaults,
		ValidKeys:       validKeys,
		Getenv:          getenv,
		ErrWriter:       opts.ErrWriter,
	})
	resolved, err := resolver.Resolve()
	if err != nil {
		return nil, err
	}

	p := parser{resolved: resolved}
	s.DownloadDir = resolved.Get(KeyDownloadDir)
	s.WorkflowName = resolved.Get(KeyWorkflowName)
	s.ArtifactName = resolved.Get(KeyArtifactName)
	s.RunMaxAgeDays = p.positiveInt(KeyRunMaxAgeDays)
	s.RetentionDays = p.positiveInt(KeyRetentionDays)
	s.PollInterval = p.duration(KeyPollInterval)
	s.Schedule = resolved.Get(KeySchedule)
	s.APIURL = resolved.Get(KeyAPIURL)
	s.DownloadAttempts = p.positiveInt(KeyDownloadAttempts)
	s.SweepDryRun = p.boolean(KeySweepDryRun)
	s.LogLevel = strings.ToLower(resolved.Get(KeyLogLevel))
	s.LogFormat = strings.ToLower(resolved.Get(KeyLogFormat))
	s.SlackWebhookURL = resolved.Get(KeySlackWebhookURL)
	s.SlackChannel = resolved.Get(KeySlackChannel)
	s.SlackMinSeverity = strings.ToLower(resolved.Get(KeySlackMinSeverity))
	s.WebhookURL = resolved.Get(KeyWebhookURL)

	if p.err != nil {
		return nil, p.err
	}
	if s.DownloadDir == "" {
		return nil, &InvalidValueError{Key: KeyDownloadDir, Source: resolved.Source(KeyDownloadDir), Err: errors.New("must not be empty")}
	}
	if s.WorkflowName == "" || s.ArtifactName == "" {
		return nil, &InvalidValueError{Key: KeyWorkflowName + "/" + KeyArtifactName, Err: errors.New("must not be empty")}
	}
	switch s.LogFormat {
	case "text", "json":
	default:
		return nil, &InvalidValueError{Key: KeyLogFormat, Value: s.LogFormat, Source: resolved.Source(KeyLogFormat), Err: errors.New("want text or json")}
	}
	switch s.SlackMinSeverity {
	case "info", "warning", "error":
	default:
		return nil, &InvalidValueError{Key: KeySlackMinSeverity, Value: s.SlackMinSeverity, Source: resolved.Source(KeySlackMinSeverity), Err: errors.New("want info, warning or error")}
	}

	return s, nil
}

// parser converts resolved strings, keeping the first failure.
type parser struct {
	resolved *Resolved
	err      error
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		value, source := p.resolved.GetWithSource(key)
		p.err = &InvalidValueError{Key: key, Value: value, Source: source, Err: err}
	}
}

func (p *parser) positiveInt(key string) int {
	n, err := strconv.Atoi(p.resolved.Get(key))
	if err != nil {
		p.fail(key, err)
		return 0
	}
	if n <= 0 {
		p.fail(key, errors.New("must be positive"))
		return 0
	}
	return n
}

func (p *parser) duration(key string) time.Duration {
	d, err := time.ParseDuration(p.resolved.Get(key))
	if err != nil {
		p.fail(key, err)
		return 0
	}
	if d <= 0 {
		p.fail(key, errors.New("must be positive"))
		return 0
	}
	return d
}

func (p *parser) boolean(key string) bool {
	b, err := strconv.ParseBool(p.resolved.Get(key))
	if err != nil {
		p.fail(key, err)
		return false
	}
	return b
}
