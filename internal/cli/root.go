package cli

import (
	"github.com/spf13/cobra"

	"github.com/lucasnoah/codepipeline-notifier/internal/config"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var (
	configFile string
	envFile    string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "notifier",
	Short: "notifier: AWS CodePipeline to Slack build notifications",
	Long: `notifier keeps one Slack message per CodePipeline execution up to date.

Pipeline, stage, CodeBuild and CodeDeploy events arrive over HTTP (EventBridge,
SNS or SQS-wrapped SNS) and are merged into the execution's message so it never
regresses, whatever order the events are delivered in.

Configuration comes from notifier.yaml (or ~/.notifier/config.yaml), a .env
file and the environment, in increasing order of precedence.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.LoadEnvFile(envFile)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to notifier config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: json or console (overrides config)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(handleCmd)
	rootCmd.AddCommand(correlationCmd)
	rootCmd.AddCommand(configCmd)
}
