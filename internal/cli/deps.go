package cli

import (
	"context"

	"github.com/pkg/errors"

	"github.com/lucasnoah/codepipeline-notifier/internal/codepipeline"
	"github.com/lucasnoah/codepipeline-notifier/internal/config"
	"github.com/lucasnoah/codepipeline-notifier/internal/correlation"
	"github.com/lucasnoah/codepipeline-notifier/internal/github"
	"github.com/lucasnoah/codepipeline-notifier/internal/notifier"
	"github.com/lucasnoah/codepipeline-notifier/internal/slack"
)

// newProcessor wires the processor's collaborators from cfg. The returned
// store must be closed by the caller.
func newProcessor(ctx context.Context, cfg *config.Config) (*notifier.Processor, correlation.Store, error) {
	store, err := correlation.Open(ctx, correlation.WithDefaultRegion(cfg.Correlation.DSN, cfg.AWS.Region))
	if err != nil {
		return nil, nil, errors.Wrap(err, "open correlation store")
	}

	pipelines, err := codepipeline.NewFromConfig(ctx, cfg.AWS.Region)
	if err != nil {
		store.Close()
		return nil, nil, errors.Wrap(err, "codepipeline client")
	}

	chat := slack.NewClient(slack.Options{
		BaseURL:           cfg.Slack.BaseURL,
		Token:             cfg.Slack.Token,
		BotName:           cfg.Slack.BotName,
		BotIcon:           cfg.Slack.BotIcon,
		HistoryLimit:      cfg.Slack.HistoryLimit,
		ChannelIDOverride: cfg.Slack.ChannelID,
	})

	proc := notifier.NewProcessor(chat, pipelines, github.NewClient(githubRunner(cfg)), store, notifier.Options{
		Channel: cfg.Slack.Channel,
		Message: cfg.MessageOptions(),
	})
	return proc, store, nil
}

func githubRunner(cfg *config.Config) github.CmdRunner {
	if cfg.GitHub.Runner == "gh" {
		return &github.ExecRunner{}
	}
	return &github.APIRunner{BaseURL: cfg.GitHub.BaseURL, Token: cfg.GitHub.Token}
}
