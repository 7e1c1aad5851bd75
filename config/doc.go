// Package config resolves the agent's settings from layered sources.
//
// Precedence, highest first:
//  1. Environment variables with the ARTIFACT_MANAGER_ prefix
//  2. The YAML file given with -config
//  3. Global config (~/.config/artifact-manager/config.yaml)
//  4. Built-in defaults
//
// The credentials and repository coordinates are always taken from the
// unprefixed GITHUB_TOKEN, REPO_OWNER and REPO_NAME variables; Load fails
// with a *MissingEnvError naming whichever are unset.
//
// # Basic Usage
//
//	settings, err := config.Load(config.LoadOptions{
//	    ConfigFile:      "/etc/artifact-manager.yaml",
//	    GlobalConfigDir: "artifact-manager",
//	})
//	if errors.Is(err, config.ErrMissingEnv) {
//	    // print a hint and exit 1
//	}
//
// # Config Sources
//
// Each resolved value tracks where it came from ("default", "global",
// "file" or "env"), which invalid-value errors report.
package config
