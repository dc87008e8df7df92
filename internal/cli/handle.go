package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lucasnoah/codepipeline-notifier/internal/events"
)

var handleCmd = &cobra.Command{
	Use:   "handle [file]",
	Short: "Process one event payload from a file or stdin",
	Long: `Validate and process a single event, as the HTTP ingest would. The payload
may be an EventBridge event, an SNS notification or an SQS record batch
wrapping SNS. With --dry-run the event is only validated and routed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		raw, err := readPayload(cmd, args)
		if err != nil {
			return err
		}

		validator, err := events.NewValidator()
		if err != nil {
			return errors.Wrap(err, "event validator")
		}
		if err := validator.Validate(raw); err != nil {
			return err
		}
		env, err := events.Parse(raw)
		if err != nil {
			return err
		}
		path := events.Route(env)

		if dryRun {
			fmt.Fprintf(cmd.OutOrStdout(), "source: %s\ndetail-type: %s\nroute: %s\n", env.Source, env.DetailType, path)
			return nil
		}

		cfg, err := validConfig()
		if err != nil {
			return err
		}
		proc, store, err := newProcessor(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := log.With().Str("route", string(path)).Logger().WithContext(cmd.Context())
		if err := proc.Handle(ctx, env); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "handled %s event (%s)\n", path, env.DetailType)
		return nil
	},
}

func readPayload(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		return data, errors.Wrap(err, "read stdin")
	}
	data, err := os.ReadFile(args[0])
	return data, errors.Wrapf(err, "read %s", args[0])
}

func init() {
	handleCmd.Flags().Bool("dry-run", false, "validate and route only; do not call Slack or AWS")
}
