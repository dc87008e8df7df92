package events

// PipelineDetail is the detail of a CodePipeline execution, stage or action
// state change.
type PipelineDetail struct {
	Pipeline        string           `json:"pipeline"`
	ExecutionID     string           `json:"execution-id"`
	Stage           string           `json:"stage,omitempty"`
	Action          string           `json:"action,omitempty"`
	State           string           `json:"state"`
	Version         float64          `json:"version,omitempty"`
	ExecutionResult *ExecutionResult `json:"execution-result,omitempty"`
}

// ExecutionResult is attached to action state changes once the action ran.
type ExecutionResult struct {
	ExternalExecutionID      string `json:"external-execution-id"`
	ExternalExecutionURL     string `json:"external-execution-url,omitempty"`
	ExternalExecutionSummary string `json:"external-execution-summary,omitempty"`
}

// BuildDetail is the detail of a CodeBuild state or phase change.
type BuildDetail struct {
	BuildStatus           string                `json:"build-status,omitempty"`
	CompletedPhase        string                `json:"completed-phase,omitempty"`
	ProjectName           string                `json:"project-name"`
	BuildID               string                `json:"build-id"`
	AdditionalInformation AdditionalInformation `json:"additional-information"`
}

// AdditionalInformation holds the CodeBuild build metadata. Phases is nil
// when the event carries no phase list.
type AdditionalInformation struct {
	Initiator string        `json:"initiator"`
	Phases    *[]BuildPhase `json:"phases,omitempty"`
}

// BuildPhase is one entry of a CodeBuild phase list.
type BuildPhase struct {
	PhaseType         string   `json:"phase-type,omitempty"`
	PhaseStatus       string   `json:"phase-status,omitempty"`
	DurationInSeconds *int     `json:"duration-in-seconds,omitempty"`
	PhaseContext      []string `json:"phase-context,omitempty"`
	StartTime         string   `json:"start-time,omitempty"`
	EndTime           string   `json:"end-time,omitempty"`
}

// DeploymentCallDetail is the CloudTrail record of a CodeDeploy API call.
type DeploymentCallDetail struct {
	EventName         string            `json:"eventName"`
	EventSource       string            `json:"eventSource,omitempty"`
	RequestParameters RequestParameters `json:"requestParameters"`
	ResponseElements  struct {
		DeploymentID string `json:"deploymentId"`
	} `json:"responseElements"`
}

// RequestParameters are the CreateDeployment request fields the notifier reads.
type RequestParameters struct {
	ApplicationName     string `json:"applicationName,omitempty"`
	DeploymentGroupName string `json:"deploymentGroupName,omitempty"`
	Revision            struct {
		RevisionType string `json:"revisionType,omitempty"`
		String       struct {
			Content string `json:"content"`
			Sha256  string `json:"sha256,omitempty"`
		} `json:"string"`
	} `json:"revision"`
}

// PipelineDetail decodes a CodePipeline detail.
func (e *Envelope) PipelineDetail() (*PipelineDetail, error) {
	var d PipelineDetail
	if err := e.decodeDetail(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

// BuildDetail decodes a CodeBuild detail.
func (e *Envelope) BuildDetail() (*BuildDetail, error) {
	var d BuildDetail
	if err := e.decodeDetail(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

// DeploymentCallDetail decodes a CodeDeploy CloudTrail detail.
func (e *Envelope) DeploymentCallDetail() (*DeploymentCallDetail, error) {
	var d DeploymentCallDetail
	if err := e.decodeDetail(&d); err != nil {
		return nil, err
	}
	return &d, nil
}
