package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/objectvault/upload-agent/internal/common"
)

var (
	logLevelFlag string
	logFileFlag  string
	jobsFlag     int
	triesFlag    int
	chunkSizeMiB int64
	noResume     bool
	baseURLFlag  string
	tokenFlag    string
)

var rootCmd = &cobra.Command{
	Use:   "uploadagent",
	Short: "Chunked, resumable, compressed file uploader",
	Long: `uploadagent uploads local files to a remote object store as ordered,
numbered parts over presigned HTTP endpoints, resuming interrupted transfers
where a previous run left a matching remote object behind.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "info", "log level: none, error, warning, info, debug")
	rootCmd.PersistentFlags().StringVar(&logFileFlag, "log-file", "", "log file path (stderr if empty)")
	rootCmd.PersistentFlags().IntVar(&jobsFlag, "jobs", 0, "worker pool size (0 = auto-detect from CPU count)")
	rootCmd.PersistentFlags().IntVar(&triesFlag, "tries", 3, "retries per chunk before it is marked permanently failed")
	rootCmd.PersistentFlags().Int64Var(&chunkSizeMiB, "chunk-size-mib", 100, "part size in MiB")
	rootCmd.PersistentFlags().BoolVar(&noResume, "no-resume", false, "always create a new remote file object instead of resuming")
	rootCmd.PersistentFlags().StringVar(&baseURLFlag, "api-url", "", "remote platform API base URL")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", os.Getenv("UPLOADAGENT_TOKEN"), "remote platform auth token (default: $UPLOADAGENT_TOKEN)")

	rootCmd.AddCommand(uploadCmd)
}

func newLogger() (common.Logger, func(), error) {
	level := parseLogLevel(logLevelFlag)
	if logFileFlag == "" {
		return common.NewLogger(os.Stderr, level, sessionID()), func() {}, nil
	}
	w, err := common.NewRotatingWriter(logFileFlag, 200*1024*1024)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %s: %w", logFileFlag, err)
	}
	logger := common.NewLogger(w, level, sessionID())
	return logger, func() { _ = w.Close() }, nil
}

func parseLogLevel(s string) common.LogLevel {
	switch s {
	case "none":
		return common.LogNone
	case "error":
		return common.LogError
	case "warning", "warn":
		return common.LogWarning
	case "debug":
		return common.LogDebug
	default:
		return common.LogInfo
	}
}

var startTime = time.Now()

func sessionID() string {
	return startTime.Format("20060102-150405")
}
