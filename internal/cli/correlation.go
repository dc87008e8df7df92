package cli

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/lucasnoah/codepipeline-notifier/internal/correlation"
)

var correlationDSN string

var correlationCmd = &cobra.Command{
	Use:   "correlation",
	Short: "Inspect and repair deployment correlation records",
}

var correlationGetCmd = &cobra.Command{
	Use:   "get <deployment-id>",
	Short: "Print the correlation record for a deployment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCorrelation(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		rec, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return errors.Wrap(err, "marshal record")
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var correlationPutCmd = &cobra.Command{
	Use:   "put <deployment-id>",
	Short: "Set fields on a deployment's correlation record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pipelineID, _ := cmd.Flags().GetString("pipeline-id")
		taskDef, _ := cmd.Flags().GetString("task-def")

		store, err := openCorrelation(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		fields := correlation.Fields{PipelineID: pipelineID, TaskDef: taskDef}
		if err := store.Update(cmd.Context(), args[0], fields); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "updated %s\n", args[0])
		return nil
	},
}

func openCorrelation(cmd *cobra.Command) (correlation.Store, error) {
	dsn := correlationDSN
	if dsn == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		dsn = correlation.WithDefaultRegion(cfg.Correlation.DSN, cfg.AWS.Region)
	}
	if dsn == "" {
		return nil, errors.New("no correlation store configured: set --dsn, correlation.dsn or DYNAMODB_TABLE")
	}
	return correlation.Open(cmd.Context(), dsn)
}

func init() {
	correlationCmd.PersistentFlags().StringVar(&correlationDSN, "dsn", "", "correlation store DSN (overrides config)")
	correlationPutCmd.Flags().String("pipeline-id", "", "pipeline execution id")
	correlationPutCmd.Flags().String("task-def", "", "task definition family:revision")
	correlationCmd.AddCommand(correlationGetCmd)
	correlationCmd.AddCommand(correlationPutCmd)
}
