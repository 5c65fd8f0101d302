package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger initializes zerolog with the specified configuration. Logs go to
// stderr so command output on stdout stays machine readable.
func InitLogger(level string, format string) {
	initLogger(os.Stderr, level, format)
}

func initLogger(out io.Writer, level string, format string) {
	// Set time format
	zerolog.TimeFieldFormat = time.RFC3339Nano

	// Parse log level
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	// Configure output format
	if format == "console" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	} else {
		// JSON format (default)
		log.Logger = zerolog.New(out).With().
			Timestamp().
			Caller().
			Logger()
	}

	// Add service metadata
	log.Logger = log.With().
		Str("service", "deployctl").
		Logger()
}

// ComponentLogger creates a logger for a named component
func ComponentLogger(component string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Logger()
}

// WorkflowLogger creates a logger tagged with a Temporal workflow run, for
// use outside workflow code. Workflows log through workflow.GetLogger.
func WorkflowLogger(workflowID string, runID string) zerolog.Logger {
	return log.With().
		Str("workflow_id", workflowID).
		Str("run_id", runID).
		Str("component", "workflow").
		Logger()
}

// ActivityLogger creates a logger for Temporal activities
func ActivityLogger(activityName string, workflowID string, runID string) zerolog.Logger {
	return log.With().
		Str("activity", activityName).
		Str("workflow_id", workflowID).
		Str("run_id", runID).
		Str("component", "activity").
		Logger()
}

// GitHubLogger creates a logger for GitHub API operations
func GitHubLogger() zerolog.Logger {
	return ComponentLogger("github")
}
