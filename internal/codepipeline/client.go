// Package codepipeline reads pipeline structure and execution metadata from
// AWS CodePipeline.
package codepipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline/types"
	"github.com/pkg/errors"

	"github.com/lucasnoah/codepipeline-notifier/internal/message"
)

const sourceStageName = "Source"

// API is the subset of the CodePipeline client the notifier calls.
type API interface {
	GetPipeline(ctx context.Context, in *codepipeline.GetPipelineInput, opts ...func(*codepipeline.Options)) (*codepipeline.GetPipelineOutput, error)
	GetPipelineExecution(ctx context.Context, in *codepipeline.GetPipelineExecutionInput, opts ...func(*codepipeline.Options)) (*codepipeline.GetPipelineExecutionOutput, error)
	GetPipelineState(ctx context.Context, in *codepipeline.GetPipelineStateInput, opts ...func(*codepipeline.Options)) (*codepipeline.GetPipelineStateOutput, error)
}

// Client answers pipeline metadata questions.
type Client struct {
	api API
}

// New wraps an existing CodePipeline API client.
func New(api API) *Client {
	return &Client{api: api}
}

// NewFromConfig builds a Client from the default AWS credential chain.
func NewFromConfig(ctx context.Context, region string) (*Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}
	return New(codepipeline.NewFromConfig(cfg)), nil
}

func (c *Client) pipeline(ctx context.Context, name string) (*types.PipelineDeclaration, error) {
	out, err := c.api.GetPipeline(ctx, &codepipeline.GetPipelineInput{Name: aws.String(name)})
	if err != nil {
		return nil, errors.Wrapf(err, "get pipeline %s", name)
	}
	if out.Pipeline == nil {
		return nil, errors.Errorf("pipeline %s has no declaration", name)
	}
	return out.Pipeline, nil
}

// StageOrder returns the declared stage names of a pipeline in order.
func (c *Client) StageOrder(ctx context.Context, pipelineName string) ([]string, error) {
	p, err := c.pipeline(ctx, pipelineName)
	if err != nil {
		return nil, err
	}
	order := make([]string, 0, len(p.Stages))
	for _, s := range p.Stages {
		order = append(order, aws.ToString(s.Name))
	}
	return order, nil
}

// BuildAction locates the pipeline action that ran a CodeBuild build.
type BuildAction struct {
	StageName            string
	ActionName           string
	PipelineExecutionID  string
	ExternalExecutionURL string
	Status               string
}

// FindBuildAction scans the current pipeline state for the action whose
// latest execution ran buildID. It returns nil when no action matches, which
// happens once a newer execution has replaced the build's stage run.
func (c *Client) FindBuildAction(ctx context.Context, pipelineName, buildID string) (*BuildAction, error) {
	out, err := c.api.GetPipelineState(ctx, &codepipeline.GetPipelineStateInput{Name: aws.String(pipelineName)})
	if err != nil {
		return nil, errors.Wrapf(err, "get pipeline state %s", pipelineName)
	}
	for _, stage := range out.StageStates {
		for _, action := range stage.ActionStates {
			exec := action.LatestExecution
			if exec == nil || !sameBuild(buildID, aws.ToString(exec.ExternalExecutionId)) {
				continue
			}
			found := &BuildAction{
				StageName:            aws.ToString(stage.StageName),
				ActionName:           aws.ToString(action.ActionName),
				ExternalExecutionURL: aws.ToString(exec.ExternalExecutionUrl),
				Status:               string(exec.Status),
			}
			if stage.LatestExecution != nil {
				found.PipelineExecutionID = aws.ToString(stage.LatestExecution.PipelineExecutionId)
			}
			return found, nil
		}
	}
	return nil, nil
}

// sameBuild compares a CodeBuild build ARN with the "project:uuid" id
// CodePipeline records as the action's external execution id.
func sameBuild(buildID, externalID string) bool {
	if externalID == "" {
		return false
	}
	return buildID == externalID || strings.HasSuffix(buildID, "/"+externalID)
}

func (c *Client) execution(ctx context.Context, pipelineName, executionID string) (*types.PipelineExecution, error) {
	out, err := c.api.GetPipelineExecution(ctx, &codepipeline.GetPipelineExecutionInput{
		PipelineName:        aws.String(pipelineName),
		PipelineExecutionId: aws.String(executionID),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "get pipeline execution %s", executionID)
	}
	if out.PipelineExecution == nil {
		return nil, errors.Errorf("pipeline execution %s not returned", executionID)
	}
	return out.PipelineExecution, nil
}

// RevisionInfo describes the first source artifact of an execution. It
// returns nil when the execution has no artifact revisions.
func (c *Client) RevisionInfo(ctx context.Context, pipelineName, executionID string) (*message.Revision, error) {
	exec, err := c.execution(ctx, pipelineName, executionID)
	if err != nil {
		return nil, err
	}
	if len(exec.ArtifactRevisions) == 0 {
		return nil, nil
	}
	rev := exec.ArtifactRevisions[0]
	return &message.Revision{
		ID:      aws.ToString(rev.RevisionId),
		Summary: firstLine(revisionSummary(aws.ToString(rev.RevisionSummary))),
		URL:     aws.ToString(rev.RevisionUrl),
	}, nil
}

// SourceRevision is one Source stage action joined with the commit it fetched.
type SourceRevision struct {
	ActionName    string
	Repo          string
	Branch        string
	CommitSHA     string
	CommitMessage string
	CommitLink    string
}

// SourceRevisions lists the Source stage actions of a pipeline together with
// the commits the execution pulled through them.
func (c *Client) SourceRevisions(ctx context.Context, pipelineName, executionID string) ([]SourceRevision, error) {
	p, err := c.pipeline(ctx, pipelineName)
	if err != nil {
		return nil, err
	}
	var sources []SourceRevision
	for _, stage := range p.Stages {
		if aws.ToString(stage.Name) != sourceStageName {
			continue
		}
		for _, action := range stage.Actions {
			sources = append(sources, SourceRevision{
				ActionName: aws.ToString(action.Name),
				Repo:       action.Configuration["FullRepositoryId"],
				Branch:     action.Configuration["BranchName"],
			})
		}
	}
	if len(sources) == 0 {
		return nil, nil
	}

	exec, err := c.execution(ctx, pipelineName, executionID)
	if err != nil {
		return nil, err
	}
	for _, rev := range exec.ArtifactRevisions {
		for i := range sources {
			if sources[i].ActionName != aws.ToString(rev.Name) {
				continue
			}
			sources[i].CommitMessage = firstLine(revisionSummary(aws.ToString(rev.RevisionSummary)))
			repo, sha := commitFromRevisionURL(aws.ToString(rev.RevisionUrl))
			if repo == "" {
				repo = sources[i].Repo
			}
			if sha == "" {
				sha = aws.ToString(rev.RevisionId)
			}
			sources[i].CommitSHA = sha
			if repo != "" && sha != "" {
				sources[i].CommitLink = fmt.Sprintf("https://github.com/%s/commit/%s", repo, sha)
			}
		}
	}
	return sources, nil
}

// revisionSummary unwraps the JSON summary CodeStar connections record
// ({"ProviderType":"GitHub","CommitMessage":"..."}); other summaries pass through.
func revisionSummary(summary string) string {
	var parsed struct {
		CommitMessage string `json:"CommitMessage"`
	}
	if strings.HasPrefix(strings.TrimSpace(summary), "{") && json.Unmarshal([]byte(summary), &parsed) == nil && parsed.CommitMessage != "" {
		return parsed.CommitMessage
	}
	return summary
}

func commitFromRevisionURL(raw string) (repo, sha string) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", ""
	}
	q := u.Query()
	return q.Get("FullRepositoryId"), q.Get("Commit")
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}
