package events

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const pipelineInitiatorPrefix = "codepipeline/"

// IsPipelineStateChange reports whether e carries an overall pipeline execution state.
func IsPipelineStateChange(e *Envelope) bool {
	return e.DetailType == DetailPipelineExecution
}

// IsStageStateChange reports whether e carries a stage execution state.
func IsStageStateChange(e *Envelope) bool {
	return e.DetailType == DetailStageExecution
}

// IsActionStateChange reports whether e carries an action execution state.
func IsActionStateChange(e *Envelope) bool {
	return e.DetailType == DetailActionExecution
}

// BuildRef identifies a CodeBuild run started by a pipeline.
type BuildRef struct {
	Pipeline string
	BuildID  string
	Project  string
}

// BuildReference extracts the pipeline, build id and project of a CodeBuild
// event. ok is false for builds that were not started by CodePipeline.
func BuildReference(d *BuildDetail) (ref BuildRef, ok bool) {
	initiator := d.AdditionalInformation.Initiator
	if !strings.HasPrefix(initiator, pipelineInitiatorPrefix) {
		return BuildRef{}, false
	}
	return BuildRef{
		Pipeline: strings.TrimPrefix(initiator, pipelineInitiatorPrefix),
		BuildID:  d.BuildID,
		Project:  d.ProjectName,
	}, true
}

// HasPhases reports whether a CodeBuild event carries a phase list.
func HasPhases(d *BuildDetail) bool {
	return d.AdditionalInformation.Phases != nil
}

// Phases returns the phase list of a CodeBuild event.
func Phases(d *BuildDetail) []BuildPhase {
	if d.AdditionalInformation.Phases == nil {
		return nil
	}
	return *d.AdditionalInformation.Phases
}

// IsDeploymentJoinEvent reports whether e is one side of the deployment join:
// a CodeDeploy CreateDeployment call, or a successful CodePipeline Deploy
// action that produced an external execution id.
func IsDeploymentJoinEvent(e *Envelope) bool {
	switch e.Source {
	case SourceCodeDeploy:
		d, err := e.DeploymentCallDetail()
		return err == nil && d.EventName == "CreateDeployment"
	case SourceCodePipeline:
		if !IsActionStateChange(e) {
			return false
		}
		d, err := e.PipelineDetail()
		if err != nil {
			return false
		}
		return d.Stage == "Deploy" && d.State == "SUCCEEDED" && d.ExecutionResult != nil
	}
	return false
}

// DeploymentFromCodePipeline returns the CodeDeploy deployment id and the
// pipeline execution id of a Deploy action event.
func DeploymentFromCodePipeline(e *Envelope) (deploymentID, pipelineID string, err error) {
	d, err := e.PipelineDetail()
	if err != nil {
		return "", "", err
	}
	if d.ExecutionResult == nil || d.ExecutionResult.ExternalExecutionID == "" {
		return "", "", errors.Wrap(ErrInvalidEnvelope, "deploy action has no external execution id")
	}
	return d.ExecutionResult.ExternalExecutionID, d.ExecutionID, nil
}

// DeploymentFromCodeDeploy returns the deployment id and the deployed task
// definition ("family:revision") of a CreateDeployment call.
func DeploymentFromCodeDeploy(e *Envelope) (deploymentID, taskDef string, err error) {
	d, err := e.DeploymentCallDetail()
	if err != nil {
		return "", "", err
	}
	deploymentID = d.ResponseElements.DeploymentID
	if deploymentID == "" {
		return "", "", errors.Wrap(ErrInvalidEnvelope, "CreateDeployment response has no deploymentId")
	}
	taskDef, err = TaskDefinitionFromAppSpec(d.RequestParameters.Revision.String.Content)
	if err != nil {
		return "", "", err
	}
	return deploymentID, taskDef, nil
}

var taskDefPattern = regexp.MustCompile(`TaskDefinition: [\w|:\-/]+`)

type appSpec struct {
	Resources []map[string]struct {
		Type       string `yaml:"Type"`
		Properties struct {
			TaskDefinition string `yaml:"TaskDefinition"`
		} `yaml:"Properties"`
	} `yaml:"Resources"`
}

// TaskDefinitionFromAppSpec finds the ECS task definition in an AppSpec
// document (YAML or JSON) and returns its last path segment.
func TaskDefinitionFromAppSpec(content string) (string, error) {
	var spec appSpec
	if err := yaml.Unmarshal([]byte(content), &spec); err == nil {
		for _, resource := range spec.Resources {
			for _, target := range resource {
				if arn := strings.TrimSpace(target.Properties.TaskDefinition); arn != "" {
					return lastSegment(arn), nil
				}
			}
		}
	}
	match := taskDefPattern.FindString(content)
	if match == "" {
		return "", errors.Wrap(ErrInvalidEnvelope, "no TaskDefinition in appspec")
	}
	return lastSegment(strings.TrimPrefix(match, "TaskDefinition: ")), nil
}

func lastSegment(arn string) string {
	if i := strings.LastIndex(arn, "/"); i >= 0 {
		return arn[i+1:]
	}
	return arn
}
