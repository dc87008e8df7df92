package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lucasnoah/codepipeline-notifier/internal/bus"
	"github.com/lucasnoah/codepipeline-notifier/internal/events"
	"github.com/lucasnoah/codepipeline-notifier/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept pipeline events over HTTP and keep Slack messages current",
	Long: `Start the HTTP ingest on server.addr. POST /events accepts EventBridge
events, SNS notifications and SQS records wrapping SNS; accepted events are
queued and processed one at a time in arrival order. GET /healthz reports
liveness.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := validConfig()
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		proc, store, err := newProcessor(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		b, err := bus.NewInMemoryBus(bus.NewZerologAdapter(log.Logger))
		if err != nil {
			return err
		}
		bus.RegisterEventHandler(b, proc)

		validator, err := events.NewValidator()
		if err != nil {
			return errors.Wrap(err, "event validator")
		}
		srv := web.NewServer(b, validator, cfg.Server.Addr)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return b.Run(gctx)
		})
		g.Go(func() error {
			select {
			case <-b.Running():
			case <-gctx.Done():
				return nil
			}
			return srv.Start(gctx)
		})
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides server.addr)")
}
