package config

// Config is the notifier configuration, parsed from notifier.yaml and then
// overridden from the environment.
type Config struct {
	Slack       SlackConfig       `yaml:"slack"`
	GitHub      GitHubConfig      `yaml:"github"`
	AWS         AWSConfig         `yaml:"aws"`
	Correlation CorrelationConfig `yaml:"correlation"`
	Message     MessageConfig     `yaml:"message"`
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
}

// SlackConfig selects the bot and the channel messages are posted to.
type SlackConfig struct {
	Token        string `yaml:"token"`
	Channel      string `yaml:"channel"`
	ChannelID    string `yaml:"channel_id"`
	BotName      string `yaml:"bot_name"`
	BotIcon      string `yaml:"bot_icon"`
	BaseURL      string `yaml:"base_url"`
	HistoryLimit int    `yaml:"history_limit"`
}

// GitHubConfig configures commit author lookups. Runner is "api" (REST with
// Token) or "gh" (the gh CLI and its own auth).
type GitHubConfig struct {
	Token   string `yaml:"token"`
	Runner  string `yaml:"runner"`
	BaseURL string `yaml:"base_url"`
}

// AWSConfig holds the region used for CodePipeline and DynamoDB.
type AWSConfig struct {
	Region string `yaml:"region"`
}

// CorrelationConfig selects the deployment correlation backend by DSN, e.g.
// memory://, sqlite:///path, postgres://..., dynamodb://table.
type CorrelationConfig struct {
	DSN           string `yaml:"dsn"`
	DynamoDBTable string `yaml:"dynamodb_table"`
}

// MessageConfig controls how pipeline messages are rendered.
type MessageConfig struct {
	ShowBuildPhases bool       `yaml:"show_build_phases"`
	Icons           IconConfig `yaml:"icons"`
}

// IconConfig overrides icons by state name. Unset entries keep the defaults.
type IconConfig struct {
	Stages map[string]string `yaml:"stages"`
	Phases map[string]string `yaml:"phases"`
	Source string            `yaml:"source"`
}

// ServerConfig configures the HTTP ingest.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig selects the log level and json or console output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}
