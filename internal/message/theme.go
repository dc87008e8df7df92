package message

// Theme holds the icons and colors used to render a pipeline message.
// Icons must not contain spaces: they are the first token of every encoded row.
type Theme struct {
	StageIcons   map[StageState]string
	PhaseIcons   map[PhaseStatus]string
	Colors       map[string]string
	DefaultColor string
	SourceIcon   string
}

// DefaultTheme returns the stock Slack emoji set.
func DefaultTheme() Theme {
	return Theme{
		StageIcons: map[StageState]string{
			StateCanceled:   ":no_entry:",
			StateFailed:     ":x:",
			StateResumed:    ":arrow_forward:",
			StateStarted:    ":building_construction:",
			StateStopped:    ":double_vertical_bar:",
			StateStopping:   ":octagonal_sign:",
			StateSucceeded:  ":white_check_mark:",
			StateSuperseded: ":repeat:",
		},
		PhaseIcons: map[PhaseStatus]string{
			PhaseStatusSucceeded:   ":white_check_mark:",
			PhaseStatusFailed:      ":x:",
			PhaseStatusFault:       ":warning:",
			PhaseStatusTimedOut:    ":stopwatch:",
			PhaseStatusInProgress:  ":building_construction:",
			PhaseStatusStopped:     ":double_vertical_bar:",
			PhaseStatusClientError: ":warning:",
		},
		Colors: map[string]string{
			string(StateCanceled):   "",
			string(StateFailed):     "danger",
			string(StateResumed):    "",
			string(StateStarted):    "#9E9E9E",
			string(StateStopped):    "#f00",
			string(StateStopping):   "#f00",
			string(StateSucceeded):  "good",
			string(StateSuperseded): "",
		},
		DefaultColor: "#eee",
		SourceIcon:   ":github:",
	}
}

// StageIcon returns the icon for a stage state.
func (t Theme) StageIcon(s StageState) string {
	return t.StageIcons[s]
}

// PhaseIcon returns the icon for a build phase status. Unrecognised statuses
// render as in progress.
func (t Theme) PhaseIcon(s PhaseStatus) string {
	if icon, ok := t.PhaseIcons[s]; ok && icon != "" {
		return icon
	}
	return t.PhaseIcons[PhaseStatusInProgress]
}

// stateForIcon maps a rendered icon back to its stage state.
func (t Theme) stateForIcon(icon string) (StageState, bool) {
	if icon == "" {
		return "", false
	}
	for _, s := range stageIconOrder {
		if t.StageIcons[s] == icon {
			return s, true
		}
	}
	return "", false
}

// Color returns the attachment color for an overall pipeline status.
func (t Theme) Color(status string) string {
	if c, ok := t.Colors[status]; ok {
		return c
	}
	return t.DefaultColor
}
