package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lucasnoah/codepipeline-notifier/internal/message"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var recognizedLogFormats = map[string]bool{"json": true, "console": true}
var recognizedRunners = map[string]bool{"api": true, "gh": true}

var knownStageStates = map[message.StageState]bool{
	message.StateStarted: true, message.StateStopping: true, message.StateStopped: true, message.StateResumed: true,
	message.StateCanceled: true, message.StateFailed: true, message.StateSucceeded: true, message.StateSuperseded: true,
}

// Validate checks a Config for missing and inconsistent settings.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError

	if cfg.Slack.Token == "" {
		errs = append(errs, ValidationError{Field: "slack.token", Message: "is required (SLACK_BOT_TOKEN)"})
	}
	if cfg.Slack.Channel == "" && cfg.Slack.ChannelID == "" {
		errs = append(errs, ValidationError{Field: "slack.channel", Message: "channel or channel_id is required"})
	}
	if cfg.Correlation.DSN == "" {
		errs = append(errs, ValidationError{Field: "correlation.dsn", Message: "is required (NOTIFIER_CORRELATION_DSN or DYNAMODB_TABLE)"})
	} else if !strings.Contains(cfg.Correlation.DSN, "://") {
		errs = append(errs, ValidationError{Field: "correlation.dsn", Message: fmt.Sprintf("%q has no scheme", cfg.Correlation.DSN)})
	}
	if cfg.Log.Format != "" && !recognizedLogFormats[cfg.Log.Format] {
		errs = append(errs, ValidationError{Field: "log.format", Message: fmt.Sprintf("unknown format %q: must be json or console", cfg.Log.Format)})
	}
	if cfg.GitHub.Runner != "" && !recognizedRunners[cfg.GitHub.Runner] {
		errs = append(errs, ValidationError{Field: "github.runner", Message: fmt.Sprintf("unknown runner %q: must be api or gh", cfg.GitHub.Runner)})
	}

	states := make([]string, 0, len(cfg.Message.Icons.Stages))
	for state := range cfg.Message.Icons.Stages {
		states = append(states, state)
	}
	sort.Strings(states)
	for _, state := range states {
		if !knownStageStates[message.StageState(state)] {
			errs = append(errs, ValidationError{Field: "message.icons.stages." + state, Message: "unknown stage state"})
		}
	}

	errs = append(errs, validateIcons(cfg.Theme())...)
	return errs
}

// validateIcons requires one distinct, space-free icon per stage state: the
// Stages field is decoded back into states by icon.
func validateIcons(theme message.Theme) []ValidationError {
	var errs []ValidationError
	owner := map[string]message.StageState{}

	states := make([]string, 0, len(theme.StageIcons))
	for state := range theme.StageIcons {
		states = append(states, string(state))
	}
	sort.Strings(states)

	for _, s := range states {
		state := message.StageState(s)
		icon := theme.StageIcons[state]
		field := "message.icons.stages." + s
		switch {
		case icon == "":
			errs = append(errs, ValidationError{Field: field, Message: "icon is empty"})
		case strings.ContainsAny(icon, " \t\n"):
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("icon %q must not contain whitespace", icon)})
		default:
			if other, dup := owner[icon]; dup {
				errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("icon %q is already used by %s", icon, other)})
			}
			owner[icon] = state
		}
	}
	return errs
}
