package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultChannel      = "builds_test"
	DefaultBotName      = "PipelineBot"
	DefaultBotIcon      = ":robot_face:"
	DefaultRegion       = "ap-northeast-2"
	DefaultAddr         = ":8080"
	DefaultHistoryLimit = 10
)

// Load reads and parses a configuration from the given YAML file path, then
// applies environment overrides and defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parsing config YAML")
	}

	ApplyEnv(&cfg, os.LookupEnv)
	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault searches for a config in standard locations and loads the first
// one found. Search order: ./notifier.yaml, ~/.notifier/config.yaml. Without a
// file the configuration comes from the environment alone.
func LoadDefault() (*Config, error) {
	candidates := []string{"notifier.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".notifier", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	var cfg Config
	ApplyEnv(&cfg, os.LookupEnv)
	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadEnvFile loads KEY=value pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return errors.Wrapf(godotenv.Load(path), "load %s", path)
}

// EnvKeys lists every environment variable ApplyEnv reads.
var EnvKeys = []string{
	"SLACK_BOT_TOKEN", "SLACK_CHANNEL", "SLACK_CHANNEL_OVERRIDE_CHANNEL_ID", "SLACK_BOT_NAME", "SLACK_BOT_ICON",
	"GITHUB_ACCESS_TOKEN", "GITHUB_ICON", "AWS_REGION", "DYNAMODB_TABLE", "SHOW_BUILD_PHASE",
	"SLACK_IN_PROGRESS_EMOJI", "SLACK_IN_RESUMED_EMOJI", "SLACK_IN_STOPPED_EMOJI", "SLACK_IN_SUPERSEDED_EMOJI",
	"NOTIFIER_CORRELATION_DSN", "NOTIFIER_ADDR", "NOTIFIER_LOG_LEVEL", "NOTIFIER_LOG_FORMAT",
}

// ApplyEnv overrides cfg from environment variables. Empty values are
// ignored. lookup is os.LookupEnv outside tests.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(&cfg.Slack.Token, "SLACK_BOT_TOKEN")
	set(&cfg.Slack.Channel, "SLACK_CHANNEL")
	set(&cfg.Slack.ChannelID, "SLACK_CHANNEL_OVERRIDE_CHANNEL_ID")
	set(&cfg.Slack.BotName, "SLACK_BOT_NAME")
	set(&cfg.Slack.BotIcon, "SLACK_BOT_ICON")
	set(&cfg.GitHub.Token, "GITHUB_ACCESS_TOKEN")
	set(&cfg.AWS.Region, "AWS_REGION")
	set(&cfg.Correlation.DynamoDBTable, "DYNAMODB_TABLE")
	set(&cfg.Correlation.DSN, "NOTIFIER_CORRELATION_DSN")
	set(&cfg.Server.Addr, "NOTIFIER_ADDR")
	set(&cfg.Log.Level, "NOTIFIER_LOG_LEVEL")
	set(&cfg.Log.Format, "NOTIFIER_LOG_FORMAT")
	set(&cfg.Message.Icons.Source, "GITHUB_ICON")

	if v, ok := lookup("SHOW_BUILD_PHASE"); ok && v != "" {
		cfg.Message.ShowBuildPhases = strings.EqualFold(strings.TrimSpace(v), "true")
	}

	stageIcon := func(state, key string) {
		if v, ok := lookup(key); ok && v != "" {
			if cfg.Message.Icons.Stages == nil {
				cfg.Message.Icons.Stages = map[string]string{}
			}
			cfg.Message.Icons.Stages[state] = v
		}
	}
	stageIcon("STARTED", "SLACK_IN_PROGRESS_EMOJI")
	stageIcon("RESUMED", "SLACK_IN_RESUMED_EMOJI")
	stageIcon("STOPPED", "SLACK_IN_STOPPED_EMOJI")
	stageIcon("SUPERSEDED", "SLACK_IN_SUPERSEDED_EMOJI")

	if v, ok := lookup("SLACK_IN_PROGRESS_EMOJI"); ok && v != "" {
		if cfg.Message.Icons.Phases == nil {
			cfg.Message.Icons.Phases = map[string]string{}
		}
		cfg.Message.Icons.Phases["IN_PROGRESS"] = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Slack.Channel == "" {
		cfg.Slack.Channel = DefaultChannel
	}
	if cfg.Slack.BotName == "" {
		cfg.Slack.BotName = DefaultBotName
	}
	if cfg.Slack.BotIcon == "" {
		cfg.Slack.BotIcon = DefaultBotIcon
	}
	if cfg.Slack.HistoryLimit <= 0 {
		cfg.Slack.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.GitHub.Runner == "" {
		cfg.GitHub.Runner = "api"
	}
	if cfg.AWS.Region == "" {
		cfg.AWS.Region = DefaultRegion
	}
	if cfg.Correlation.DSN == "" && cfg.Correlation.DynamoDBTable != "" {
		cfg.Correlation.DSN = "dynamodb://" + cfg.Correlation.DynamoDBTable
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultAddr
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}
