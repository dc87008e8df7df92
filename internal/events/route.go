package events

// Path is the processing path an event is dispatched to.
type Path string

const (
	PathIgnore   Path = "ignore"
	PathPipeline Path = "pipeline"
	PathBuild    Path = "build"
	PathDeploy   Path = "deploy"
)

// Route picks the processing path for e. CloudTrail records of CodeBuild API
// calls and unknown sources are ignored.
func Route(e *Envelope) Path {
	switch e.Source {
	case SourceCodePipeline:
		return PathPipeline
	case SourceCodeBuild:
		if e.DetailType == DetailCloudTrailCall {
			return PathIgnore
		}
		return PathBuild
	case SourceCodeDeploy:
		return PathDeploy
	default:
		return PathIgnore
	}
}
