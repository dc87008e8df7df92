package message

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	stagesTitle         = "Stages"
	buildContextTitle   = "Build Context"
	taskDefinitionTitle = "Task Definition"
	revisionTitle       = "Revision"
	buildInfoAction     = "Build info"
)

// ErrIndexOutOfRange is returned when a field or action is written back to an
// index the message no longer has.
var ErrIndexOutOfRange = errors.New("index out of range")

// Options configures how a Builder renders.
type Options struct {
	Theme           Theme
	Region          string
	ShowBuildPhases bool
}

// Builder holds the fields and actions of one pipeline execution's message
// and merges updates into them without regressing what is already shown.
// Field 0 is always the overall pipeline status.
type Builder struct {
	pipelineName string
	executionID  string
	messageTS    string
	fields       []Field
	actions      []Action
	opts         Options
}

// NewBuilder starts from an existing message when there is one, otherwise
// from a fresh message with an UNKNOWN status. An empty pipelineName is taken
// from the existing status field's title.
func NewBuilder(existing *Message, executionID, pipelineName string, opts Options) *Builder {
	b := &Builder{
		pipelineName: pipelineName,
		executionID:  executionID,
		opts:         opts,
	}
	if existing != nil && len(existing.Attachments) > 0 {
		att := existing.Attachments[0]
		b.fields = append([]Field(nil), att.Fields...)
		b.actions = append([]Action(nil), att.Actions...)
		b.messageTS = existing.TS
		log.Debug().Str("ts", b.messageTS).Str("execution_id", executionID).Msg("found existing message")
	}
	if len(b.fields) == 0 {
		b.fields = []Field{{Title: pipelineName, Value: StatusUnknown, Short: true}}
	}
	if b.pipelineName == "" {
		b.pipelineName = b.fields[0].Title
	}
	return b
}

// MessageTS returns the timestamp of the message being updated, or "" for a new one.
func (b *Builder) MessageTS() string { return b.messageTS }

// PipelineName returns the pipeline the message belongs to.
func (b *Builder) PipelineName() string { return b.pipelineName }

// ExecutionID returns the pipeline execution id used as the footer marker.
func (b *Builder) ExecutionID() string { return b.executionID }

// Status returns the overall pipeline status shown in field 0.
func (b *Builder) Status() string { return b.fields[0].Value }

// Fields returns a copy of the current field list.
func (b *Builder) Fields() []Field {
	return append([]Field(nil), b.fields...)
}

// Actions returns a copy of the current action list.
func (b *Builder) Actions() []Action {
	return append([]Action(nil), b.actions...)
}

// GetField returns the index and a copy of the field titled title, or -1.
func (b *Builder) GetField(title string) (int, Field) {
	for i, f := range b.fields {
		if f.Title == title {
			return i, f
		}
	}
	return -1, Field{}
}

// GetOrCreateField returns the field titled title, appending an empty one if
// it does not exist yet. Write changes back with UpdateField.
func (b *Builder) GetOrCreateField(title string, short bool) (int, Field) {
	if i, f := b.GetField(title); i >= 0 {
		return i, f
	}
	f := Field{Title: title, Value: "", Short: short}
	b.fields = append(b.fields, f)
	return len(b.fields) - 1, f
}

// UpdateField replaces the field at index.
func (b *Builder) UpdateField(index int, f Field) error {
	if index < 0 || index >= len(b.fields) {
		return errors.Wrapf(ErrIndexOutOfRange, "field index %d, max length %d", index, len(b.fields))
	}
	b.fields[index] = f
	return nil
}

// GetOrCreateAction returns the button labelled text, appending a link button
// to url if there is none.
func (b *Builder) GetOrCreateAction(text, url string) (int, Action) {
	for i, a := range b.actions {
		if a.Text == text {
			return i, a
		}
	}
	a := Action{Type: "button", Text: text, URL: url}
	b.actions = append(b.actions, a)
	return len(b.actions) - 1, a
}

// UpdateAction replaces the action at index.
func (b *Builder) UpdateAction(index int, a Action) error {
	if index < 0 || index >= len(b.actions) {
		return errors.Wrapf(ErrIndexOutOfRange, "action index %d, max length %d", index, len(b.actions))
	}
	b.actions[index] = a
	return nil
}

// ApplyPipelineState overwrites the overall status. The latest pipeline
// execution event is authoritative.
func (b *Builder) ApplyPipelineState(state string) {
	b.fields[0].Value = state
}

// ApplyStageState merges one stage transition into the Stages field. order is
// the pipeline's declared stage order; stages not yet observed are omitted.
func (b *Builder) ApplyStageState(stage string, state StageState, order []string) error {
	if _, ok := state.Level(); !ok {
		log.Debug().Str("stage", stage).Str("state", string(state)).Msg("unknown stage state ignored")
		return nil
	}
	index, field := b.GetOrCreateField(stagesTitle, true)
	progress := DecodeStageProgress(field.Value, b.opts.Theme)
	if !progress.Apply(stage, state, b.opts.Theme) {
		log.Debug().Str("stage", stage).Str("state", string(state)).Msg("stage state not applied")
	}
	field.Value = progress.Encode(order)
	return b.UpdateField(index, field)
}

// BuildFieldTitle names the field holding one CodeBuild project's phases.
func BuildFieldTitle(stageName, projectName string) string {
	return fmt.Sprintf("Stage: %s | CodeBuild: %s", stageName, projectName)
}

// ApplyBuildProgress merges a CodeBuild phase report into the build's field.
// executionURL, when set, is linked from a single "Build info" button.
func (b *Builder) ApplyBuildProgress(stageName string, phases []PhaseReport, executionURL, projectName string) error {
	if executionURL != "" {
		b.GetOrCreateAction(buildInfoAction, executionURL)
	}
	if !b.opts.ShowBuildPhases {
		return nil
	}

	title := BuildFieldTitle(stageName, projectName)
	index, field := b.GetOrCreateField(title, false)
	if err := b.applyBuildContext(phases); err != nil {
		return err
	}

	existing := DecodePhaseProgress(field.Value)
	incoming := NewPhaseProgressFromReports(phases, b.opts.Theme)
	field.Value = MergePhaseProgress(existing, incoming).Render(b.opts.Theme)
	return b.UpdateField(index, field)
}

func (b *Builder) applyBuildContext(phases []PhaseReport) error {
	var context []string
	for _, phase := range phases {
		for _, c := range phase.Context {
			c = strings.TrimSpace(c)
			if c == "" || c == ":" {
				continue
			}
			context = append(context, c)
		}
	}
	if len(context) == 0 {
		return nil
	}
	index, field := b.GetOrCreateField(buildContextTitle, false)
	field.Value = strings.Join(context, " ")
	return b.UpdateField(index, field)
}

// AttachCommitInfo appends one source commit field. It is called once per
// source action and never merges with earlier commit fields.
func (b *Builder) AttachCommitInfo(info CommitInfo) {
	// slack strips newlines from field titles
	title := fmt.Sprintf("%s `%s` on `%s` by %s", b.opts.Theme.SourceIcon, info.Repo, info.Branch, info.Author)
	value := info.Message
	if info.Link != "" {
		value = fmt.Sprintf("<%s|%s>", info.Link, info.Message)
	}
	b.fields = append(b.fields, Field{Title: title, Value: value, Short: true})
}

// AttachTaskDefinition links the ECS task definition ("family:revision") that
// was deployed.
func (b *Builder) AttachTaskDefinition(taskDef string) error {
	if taskDef == "" {
		return nil
	}
	family, revision, _ := strings.Cut(taskDef, ":")
	link := fmt.Sprintf("https://%s.console.aws.amazon.com/ecs/home?region=%s#/taskDefinitions/%s", b.opts.Region, b.opts.Region, family)
	if revision != "" {
		link += "/" + revision
	}
	index, field := b.GetOrCreateField(taskDefinitionTitle, true)
	field.Value = fmt.Sprintf("<%s|%s>", link, taskDef)
	return b.UpdateField(index, field)
}

// HasRevisionInfo reports whether the Revision field is present.
func (b *Builder) HasRevisionInfo() bool {
	i, _ := b.GetField(revisionTitle)
	return i >= 0
}

// AttachRevisionInfo sets the Revision field, linking the short revision id
// when the revision has a URL.
func (b *Builder) AttachRevisionInfo(rev Revision) error {
	index, field := b.GetOrCreateField(revisionTitle, true)
	if rev.URL != "" {
		field.Value = fmt.Sprintf("<%s|%s: %s>", rev.URL, shortRevision(rev.ID), rev.Summary)
	} else {
		field.Value = rev.Summary
	}
	return b.UpdateField(index, field)
}

func shortRevision(id string) string {
	if len(id) > 7 {
		return id[:7]
	}
	return id
}

// FinalizeIfComplete turns every in-progress icon into its succeeded
// counterpart once the pipeline has succeeded. Applying it twice is a no-op.
func (b *Builder) FinalizeIfComplete() {
	if b.Status() != string(StateSucceeded) {
		return
	}
	theme := b.opts.Theme
	replacer := newIconReplacer(
		theme.PhaseIcon(PhaseStatusInProgress), theme.PhaseIcon(PhaseStatusSucceeded),
		theme.StageIcon(StateStarted), theme.StageIcon(StateSucceeded),
	)
	for i := range b.fields {
		b.fields[i].Value = replacer.Replace(b.fields[i].Value)
	}
}

func newIconReplacer(pairs ...string) *strings.Replacer {
	var oldnew []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i] == "" || pairs[i] == pairs[i+1] {
			continue
		}
		oldnew = append(oldnew, pairs[i], pairs[i+1])
	}
	return strings.NewReplacer(oldnew...)
}

// Color returns the attachment color for the current overall status.
func (b *Builder) Color() string {
	return b.opts.Theme.Color(b.Status())
}

// PipelineURL links to the pipeline in the CodePipeline console.
func (b *Builder) PipelineURL() string {
	return fmt.Sprintf("https://%s.console.aws.amazon.com/codesuite/codepipeline/pipelines/%s/view", b.opts.Region, b.pipelineName)
}

// Render produces the attachment list for the chat transport. The footer
// carries the execution id so the message can be found again.
func (b *Builder) Render() []Attachment {
	return []Attachment{{
		MrkdwnIn: []string{"fields", "footer"},
		Fields:   b.Fields(),
		Color:    b.Color(),
		Footer:   fmt.Sprintf("<%s|%s>", b.PipelineURL(), b.executionID),
		Actions:  b.Actions(),
	}}
}
