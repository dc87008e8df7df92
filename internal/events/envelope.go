package events

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// Event sources routed by the notifier.
const (
	SourceCodePipeline = "aws.codepipeline"
	SourceCodeBuild    = "aws.codebuild"
	SourceCodeDeploy   = "aws.codedeploy"
)

// Detail types the classifier distinguishes.
const (
	DetailPipelineExecution = "CodePipeline Pipeline Execution State Change"
	DetailStageExecution    = "CodePipeline Stage Execution State Change"
	DetailActionExecution   = "CodePipeline Action Execution State Change"
	DetailCloudTrailCall    = "AWS API Call via CloudTrail"
)

// ErrInvalidEnvelope is returned for payloads that are not an EventBridge event.
var ErrInvalidEnvelope = errors.New("invalid event envelope")

// Envelope is an EventBridge event. Detail is decoded lazily per source.
type Envelope struct {
	Version    string          `json:"version,omitempty"`
	ID         string          `json:"id,omitempty"`
	Source     string          `json:"source"`
	DetailType string          `json:"detail-type"`
	Account    string          `json:"account,omitempty"`
	Region     string          `json:"region,omitempty"`
	Time       string          `json:"time,omitempty"`
	Resources  []string        `json:"resources,omitempty"`
	Detail     json.RawMessage `json:"detail"`
}

// Parse decodes an event, unwrapping SQS and SNS delivery envelopes first.
func Parse(raw []byte) (*Envelope, error) {
	inner, err := Unwrap(raw)
	if err != nil {
		return nil, err
	}
	var env Envelope
	if err := json.Unmarshal(inner, &env); err != nil {
		return nil, errors.Wrap(ErrInvalidEnvelope, err.Error())
	}
	if strings.TrimSpace(env.Source) == "" || strings.TrimSpace(env.DetailType) == "" {
		return nil, errors.Wrap(ErrInvalidEnvelope, "source and detail-type are required")
	}
	return &env, nil
}

type sqsBatch struct {
	Records []struct {
		Body string `json:"body"`
	} `json:"Records"`
}

type snsNotification struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

// Unwrap returns the EventBridge event carried by raw. It accepts the event
// itself, an SNS notification, or an SQS batch whose first record holds either.
func Unwrap(raw []byte) ([]byte, error) {
	var batch sqsBatch
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, errors.Wrap(ErrInvalidEnvelope, err.Error())
	}
	if len(batch.Records) > 0 {
		raw = []byte(batch.Records[0].Body)
	}

	var note snsNotification
	if err := json.Unmarshal(raw, &note); err != nil {
		return nil, errors.Wrap(ErrInvalidEnvelope, err.Error())
	}
	if note.Message != "" && (note.Type == "" || note.Type == "Notification") {
		return []byte(note.Message), nil
	}
	return raw, nil
}

func (e *Envelope) decodeDetail(v any) error {
	if len(e.Detail) == 0 {
		return errors.Wrapf(ErrInvalidEnvelope, "%s event has no detail", e.Source)
	}
	if err := json.Unmarshal(e.Detail, v); err != nil {
		return errors.Wrapf(err, "decode %s detail", e.Source)
	}
	return nil
}
