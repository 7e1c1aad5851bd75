// Package artifact restructures and ages out downloaded CI artifacts on disk.
//
// Core types:
//   - Repacker: Replaces extracted summary directories with .tar.gz archives
//   - Sweeper: Deletes build directories older than the retention window
//
// Helpers:
//   - WriteTarGz: Compresses a directory, rooted either at its contents or at itself
//   - ExtractZip: Unpacks a downloaded artifact, rejecting entries that escape the target
//
// Example usage:
//
//	repacker := artifact.NewRepacker(logger)
//	res, err := repacker.Repack("builds/123456")
//
//	sweeper := artifact.NewSweeper("builds", artifact.DefaultRetentionConfig(), logger)
//	swept, err := sweeper.Sweep(false)
package artifact
