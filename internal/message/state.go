package message

// StageState is a CodePipeline stage or pipeline execution state.
type StageState string

const (
	StateStarted    StageState = "STARTED"
	StateStopping   StageState = "STOPPING"
	StateStopped    StageState = "STOPPED"
	StateResumed    StageState = "RESUMED"
	StateCanceled   StageState = "CANCELED"
	StateFailed     StageState = "FAILED"
	StateSucceeded  StageState = "SUCCEEDED"
	StateSuperseded StageState = "SUPERSEDED"
)

// StatusUnknown is the overall status shown before any pipeline state event arrives.
const StatusUnknown = "UNKNOWN"

// levelUnobserved ranks below every known state, so the first observation always applies.
const levelUnobserved = -99

var stageLevels = map[StageState]int{
	StateStarted:    1,
	StateStopping:   2,
	StateStopped:    3,
	StateResumed:    3,
	StateCanceled:   4,
	StateFailed:     4,
	StateSucceeded:  4,
	StateSuperseded: 4,
}

// Level returns the progress rank of s. Stage states only move forward in rank;
// ok is false for states outside the known ordering.
func (s StageState) Level() (level int, ok bool) {
	level, ok = stageLevels[s]
	return level, ok
}

// stageIconOrder fixes the lookup order when decoding an icon back to a state.
var stageIconOrder = []StageState{
	StateCanceled,
	StateFailed,
	StateResumed,
	StateStarted,
	StateStopped,
	StateSucceeded,
	StateSuperseded,
	StateStopping,
}

// PhaseType is a CodeBuild build phase.
type PhaseType string

const (
	PhaseSubmitted       PhaseType = "SUBMITTED"
	PhaseQueued          PhaseType = "QUEUED"
	PhaseProvisioning    PhaseType = "PROVISIONING"
	PhaseDownloadSource  PhaseType = "DOWNLOAD_SOURCE"
	PhaseInstall         PhaseType = "INSTALL"
	PhasePreBuild        PhaseType = "PRE_BUILD"
	PhaseBuild           PhaseType = "BUILD"
	PhasePostBuild       PhaseType = "POST_BUILD"
	PhaseUploadArtifacts PhaseType = "UPLOAD_ARTIFACTS"
	PhaseFinalizing      PhaseType = "FINALIZING"
	PhaseCompleted       PhaseType = "COMPLETED"
)

type phaseRule struct {
	level          int
	enableProgress bool
}

var phaseRules = map[PhaseType]phaseRule{
	PhaseSubmitted:       {level: 0, enableProgress: true},
	PhaseQueued:          {level: 1, enableProgress: true},
	PhaseProvisioning:    {level: 2, enableProgress: true},
	PhaseDownloadSource:  {level: 3, enableProgress: true},
	PhaseInstall:         {level: 4, enableProgress: true},
	PhasePreBuild:        {level: 5, enableProgress: true},
	PhaseBuild:           {level: 6, enableProgress: true},
	PhasePostBuild:       {level: 7, enableProgress: true},
	PhaseUploadArtifacts: {level: 8, enableProgress: true},
	PhaseFinalizing:      {level: 9, enableProgress: false},
	PhaseCompleted:       {level: 10, enableProgress: false},
}

// Level returns the position of p in the build lifecycle.
func (p PhaseType) Level() (level int, ok bool) {
	rule, ok := phaseRules[p]
	return rule.level, ok
}

// ShowsProgress reports whether p is rendered with its reported status icon.
// FINALIZING and COMPLETED always render as succeeded.
func (p PhaseType) ShowsProgress() bool {
	return phaseRules[p].enableProgress
}

// PhaseStatus is the status CodeBuild reports for a single phase.
type PhaseStatus string

const (
	PhaseStatusSucceeded   PhaseStatus = "SUCCEEDED"
	PhaseStatusFailed      PhaseStatus = "FAILED"
	PhaseStatusFault       PhaseStatus = "FAULT"
	PhaseStatusTimedOut    PhaseStatus = "TIMED_OUT"
	PhaseStatusInProgress  PhaseStatus = "IN_PROGRESS"
	PhaseStatusStopped     PhaseStatus = "STOPPED"
	PhaseStatusClientError PhaseStatus = "CLIENT_ERROR"
)
