package message

import "strings"

// Field is one titled entry of a Slack attachment.
type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// Action is a link button on a Slack attachment.
type Action struct {
	Type string `json:"type"`
	Text string `json:"text"`
	URL  string `json:"url"`
}

// Attachment is the legacy Slack attachment the notifier renders into.
type Attachment struct {
	MrkdwnIn []string `json:"mrkdwn_in,omitempty"`
	Fields   []Field  `json:"fields"`
	Color    string   `json:"color,omitempty"`
	Footer   string   `json:"footer,omitempty"`
	Actions  []Action `json:"actions,omitempty"`
}

// Message is a chat message as read back from the channel history.
type Message struct {
	TS          string       `json:"ts"`
	User        string       `json:"user,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// FooterMarker extracts the correlation marker from a rendered footer of the
// form "<link|marker>". A footer without a link yields its text up to '>'.
func FooterMarker(footer string) string {
	if i := strings.LastIndex(footer, "|"); i >= 0 {
		footer = footer[i+1:]
	}
	if i := strings.Index(footer, ">"); i >= 0 {
		footer = footer[:i]
	}
	return footer
}

// Revision describes the source revision a pipeline execution was started from.
type Revision struct {
	ID      string
	Summary string
	URL     string
}

// CommitInfo is the source-control context shown for one source action.
type CommitInfo struct {
	Repo    string
	Branch  string
	Author  string
	Message string
	Link    string
}

// PhaseReport is one phase entry of a CodeBuild phase-change event.
type PhaseReport struct {
	Type            string
	Status          string
	DurationSeconds *int
	Context         []string
}
