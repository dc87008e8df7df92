// Package notifier turns one inbound pipeline event into a create or update
// of the pipeline execution's chat message.
package notifier

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/lucasnoah/codepipeline-notifier/internal/codepipeline"
	"github.com/lucasnoah/codepipeline-notifier/internal/correlation"
	"github.com/lucasnoah/codepipeline-notifier/internal/events"
	"github.com/lucasnoah/codepipeline-notifier/internal/github"
	"github.com/lucasnoah/codepipeline-notifier/internal/message"
)

const (
	sourceStage    = "Source"
	stateSucceeded = "SUCCEEDED"
)

// Transport posts and finds chat messages.
type Transport interface {
	FindChannelID(ctx context.Context, name string) (string, error)
	FindMessage(ctx context.Context, channelID, marker string) (*message.Message, error)
	Send(ctx context.Context, channelID string, attachments []message.Attachment) (string, error)
	Update(ctx context.Context, channelID, ts string, attachments []message.Attachment) error
}

// PipelineMetadata answers questions about pipeline structure and executions.
type PipelineMetadata interface {
	StageOrder(ctx context.Context, pipelineName string) ([]string, error)
	FindBuildAction(ctx context.Context, pipelineName, buildID string) (*codepipeline.BuildAction, error)
	RevisionInfo(ctx context.Context, pipelineName, executionID string) (*message.Revision, error)
	SourceRevisions(ctx context.Context, pipelineName, executionID string) ([]codepipeline.SourceRevision, error)
}

// CommitLookup resolves commit authors.
type CommitLookup interface {
	CommitInfo(ctx context.Context, repo, sha string) (*github.Commit, error)
}

// Options configure a Processor.
type Options struct {
	// Channel is the chat channel name messages are posted to.
	Channel string
	Message message.Options
}

// Processor handles events one at a time. It keeps no per-event state
// between calls; the chat message and the correlation store hold it all.
type Processor struct {
	transport Transport
	pipelines PipelineMetadata
	commits   CommitLookup
	store     correlation.Store
	opts      Options

	mu        sync.Mutex
	channelID string
}

// NewProcessor creates a Processor. commits may be nil to skip author lookups.
func NewProcessor(transport Transport, pipelines PipelineMetadata, commits CommitLookup, store correlation.Store, opts Options) *Processor {
	return &Processor{
		transport: transport,
		pipelines: pipelines,
		commits:   commits,
		store:     store,
		opts:      opts,
	}
}

// Handle processes one event. Events from unknown sources are ignored.
func (p *Processor) Handle(ctx context.Context, env *events.Envelope) error {
	logger := log.Ctx(ctx).With().Str("source", env.Source).Str("detail_type", env.DetailType).Str("event_id", env.ID).Logger()
	ctx = logger.WithContext(ctx)

	switch events.Route(env) {
	case events.PathPipeline:
		return p.handlePipeline(ctx, env)
	case events.PathBuild:
		return p.handleBuild(ctx, env)
	case events.PathDeploy:
		return p.handleDeploy(ctx, env)
	default:
		logger.Debug().Msg("event ignored")
		return nil
	}
}

func (p *Processor) handlePipeline(ctx context.Context, env *events.Envelope) error {
	logger := log.Ctx(ctx)
	d, err := env.PipelineDetail()
	if err != nil {
		return err
	}
	logger.Info().Str("pipeline", d.Pipeline).Str("execution_id", d.ExecutionID).
		Str("stage", d.Stage).Str("state", d.State).Msg("pipeline event")

	channelID, b, err := p.load(ctx, d.ExecutionID, d.Pipeline)
	if err != nil {
		return err
	}

	switch {
	case events.IsPipelineStateChange(env):
		b.ApplyPipelineState(d.State)
	case events.IsStageStateChange(env):
		order, err := p.pipelines.StageOrder(ctx, d.Pipeline)
		if err != nil {
			return err
		}
		if err := b.ApplyStageState(d.Stage, message.StageState(d.State), order); err != nil {
			return err
		}
		if d.Stage == sourceStage && d.State == stateSucceeded {
			p.attachSourceCommits(ctx, b)
		}
	}
	b.FinalizeIfComplete()

	if !b.HasRevisionInfo() {
		if err := p.attachRevision(ctx, b); err != nil {
			return err
		}
	}

	if events.IsDeploymentJoinEvent(env) {
		deploymentID, pipelineID, err := events.DeploymentFromCodePipeline(env)
		if err != nil {
			return err
		}
		prior, err := p.join(ctx, deploymentID, correlation.Fields{PipelineID: pipelineID})
		if err != nil {
			return err
		}
		if prior == nil {
			return nil
		}
		if err := b.AttachTaskDefinition(prior.TaskDef); err != nil {
			return err
		}
	}

	return p.post(ctx, channelID, b)
}

func (p *Processor) handleBuild(ctx context.Context, env *events.Envelope) error {
	logger := log.Ctx(ctx)
	d, err := env.BuildDetail()
	if err != nil {
		return err
	}
	ref, ok := events.BuildReference(d)
	if !ok {
		logger.Debug().Str("build_id", d.BuildID).Msg("build not started by a pipeline")
		return nil
	}

	action, err := p.pipelines.FindBuildAction(ctx, ref.Pipeline, ref.BuildID)
	if err != nil {
		return err
	}
	if action == nil || action.PipelineExecutionID == "" {
		logger.Debug().Str("pipeline", ref.Pipeline).Str("build_id", ref.BuildID).Msg("no pipeline action for build")
		return nil
	}
	logger.Info().Str("pipeline", ref.Pipeline).Str("execution_id", action.PipelineExecutionID).
		Str("stage", action.StageName).Str("project", ref.Project).Msg("build event")

	channelID, b, err := p.load(ctx, action.PipelineExecutionID, ref.Pipeline)
	if err != nil {
		return err
	}
	if events.HasPhases(d) {
		reports := phaseReports(events.Phases(d))
		if err := b.ApplyBuildProgress(action.StageName, reports, action.ExternalExecutionURL, ref.Project); err != nil {
			return err
		}
	}
	return p.post(ctx, channelID, b)
}

func (p *Processor) handleDeploy(ctx context.Context, env *events.Envelope) error {
	logger := log.Ctx(ctx)
	if !events.IsDeploymentJoinEvent(env) {
		logger.Debug().Msg("deploy event without deployment id")
		return nil
	}
	deploymentID, taskDef, err := events.DeploymentFromCodeDeploy(env)
	if err != nil {
		return err
	}
	logger.Info().Str("deployment_id", deploymentID).Str("task_def", taskDef).Msg("deploy event")

	prior, err := p.join(ctx, deploymentID, correlation.Fields{TaskDef: taskDef})
	if err != nil {
		return err
	}
	if prior == nil {
		return nil
	}
	if prior.PipelineID == "" {
		logger.Debug().Str("deployment_id", deploymentID).Msg("correlation record has no pipeline id")
		return nil
	}

	channelID, err := p.channel(ctx)
	if err != nil {
		return err
	}
	existing, err := p.transport.FindMessage(ctx, channelID, prior.PipelineID)
	if err != nil {
		return err
	}
	if existing == nil {
		logger.Info().Str("execution_id", prior.PipelineID).Msg("no message for deployment, dropping")
		return nil
	}
	b := message.NewBuilder(existing, prior.PipelineID, "", p.opts.Message)
	if err := b.AttachTaskDefinition(taskDef); err != nil {
		return err
	}
	return p.post(ctx, channelID, b)
}

// join runs one side of the deployment join. A nil record means this event
// arrived first and only seeded the record.
func (p *Processor) join(ctx context.Context, deploymentID string, fields correlation.Fields) (*correlation.Record, error) {
	prior, err := p.store.FindOrCreate(ctx, deploymentID, fields)
	if err != nil {
		return nil, err
	}
	if prior == nil {
		log.Ctx(ctx).Info().Str("deployment_id", deploymentID).Msg("correlation seeded, waiting for companion event")
		return nil, nil
	}
	if err := p.store.Update(ctx, deploymentID, fields); err != nil {
		return nil, err
	}
	return prior, nil
}

func (p *Processor) load(ctx context.Context, executionID, pipelineName string) (string, *message.Builder, error) {
	channelID, err := p.channel(ctx)
	if err != nil {
		return "", nil, err
	}
	existing, err := p.transport.FindMessage(ctx, channelID, executionID)
	if err != nil {
		return "", nil, err
	}
	return channelID, message.NewBuilder(existing, executionID, pipelineName, p.opts.Message), nil
}

func (p *Processor) channel(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channelID != "" {
		return p.channelID, nil
	}
	id, err := p.transport.FindChannelID(ctx, p.opts.Channel)
	if err != nil {
		return "", errors.Wrapf(err, "resolve channel %s", p.opts.Channel)
	}
	p.channelID = id
	return id, nil
}

func (p *Processor) post(ctx context.Context, channelID string, b *message.Builder) error {
	attachments := b.Render()
	if ts := b.MessageTS(); ts != "" {
		log.Ctx(ctx).Debug().Str("ts", ts).Str("execution_id", b.ExecutionID()).Msg("update message")
		return p.transport.Update(ctx, channelID, ts, attachments)
	}
	ts, err := p.transport.Send(ctx, channelID, attachments)
	if err != nil {
		return err
	}
	log.Ctx(ctx).Debug().Str("ts", ts).Str("execution_id", b.ExecutionID()).Msg("sent message")
	return nil
}

// attachSourceCommits adds one commit field per Source action. Lookup
// failures leave the message without commit details.
func (p *Processor) attachSourceCommits(ctx context.Context, b *message.Builder) {
	logger := log.Ctx(ctx)
	sources, err := p.pipelines.SourceRevisions(ctx, b.PipelineName(), b.ExecutionID())
	if err != nil {
		logger.Warn().Err(err).Msg("source revisions lookup failed")
		return
	}
	for _, src := range sources {
		info := message.CommitInfo{
			Repo:    src.Repo,
			Branch:  src.Branch,
			Message: src.CommitMessage,
			Link:    src.CommitLink,
		}
		if p.commits != nil && src.Repo != "" && src.CommitSHA != "" {
			commit, err := p.commits.CommitInfo(ctx, src.Repo, src.CommitSHA)
			if err != nil {
				logger.Warn().Err(err).Str("repo", src.Repo).Str("sha", src.CommitSHA).Msg("commit author lookup failed")
			} else {
				info.Author = commit.Author
			}
		}
		b.AttachCommitInfo(info)
	}
}

func (p *Processor) attachRevision(ctx context.Context, b *message.Builder) error {
	rev, err := p.pipelines.RevisionInfo(ctx, b.PipelineName(), b.ExecutionID())
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("revision lookup failed")
		return nil
	}
	if rev == nil {
		return nil
	}
	return b.AttachRevisionInfo(*rev)
}

func phaseReports(phases []events.BuildPhase) []message.PhaseReport {
	reports := make([]message.PhaseReport, 0, len(phases))
	for _, ph := range phases {
		reports = append(reports, message.PhaseReport{
			Type:            ph.PhaseType,
			Status:          ph.PhaseStatus,
			DurationSeconds: ph.DurationInSeconds,
			Context:         ph.PhaseContext,
		})
	}
	return reports
}
