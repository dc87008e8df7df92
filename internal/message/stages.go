package message

import (
	"strings"

	"github.com/rs/zerolog/log"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const stageSeparator = "\t"

// StageEntry is the last known state of one pipeline stage and the icon it is
// displayed with. State is empty when the icon was not recognised.
type StageEntry struct {
	State StageState
	Icon  string
}

// StageProgress is the decoded "Stages" field: stage name to last known state,
// in the order stages were first seen.
type StageProgress struct {
	entries *orderedmap.OrderedMap[string, StageEntry]
}

// NewStageProgress returns an empty record.
func NewStageProgress() *StageProgress {
	return &StageProgress{entries: orderedmap.New[string, StageEntry]()}
}

// DecodeStageProgress parses a field value of tab separated "icon stage" pairs.
// Rows without both parts are skipped.
func DecodeStageProgress(value string, theme Theme) *StageProgress {
	p := NewStageProgress()
	if strings.TrimSpace(value) == "" {
		return p
	}
	for _, row := range strings.Split(value, stageSeparator) {
		icon, stage, ok := strings.Cut(strings.TrimSpace(row), " ")
		stage = strings.TrimSpace(stage)
		if !ok || icon == "" || stage == "" {
			log.Debug().Str("row", row).Msg("skipping malformed stage row")
			continue
		}
		state, _ := theme.stateForIcon(icon)
		p.entries.Set(stage, StageEntry{State: state, Icon: icon})
	}
	return p
}

// Get returns the recorded entry for stage.
func (p *StageProgress) Get(stage string) (StageEntry, bool) {
	return p.entries.Get(stage)
}

// Len returns the number of recorded stages.
func (p *StageProgress) Len() int {
	return p.entries.Len()
}

// Apply records state for stage unless it would move the stage backwards.
// It reports whether the recorded state changed rank or was first observed.
// Unknown states are ignored.
func (p *StageProgress) Apply(stage string, state StageState, theme Theme) bool {
	incoming, ok := state.Level()
	if !ok {
		log.Debug().Str("stage", stage).Str("state", string(state)).Msg("ignoring unknown stage state")
		return false
	}
	current := levelUnobserved
	entry, seen := p.entries.Get(stage)
	if seen {
		if lvl, known := entry.State.Level(); known {
			current = lvl
		}
	}
	if incoming < current {
		// keep the recorded state, normalising its icon
		p.entries.Set(stage, StageEntry{State: entry.State, Icon: theme.StageIcon(entry.State)})
		return false
	}
	p.entries.Set(stage, StageEntry{State: state, Icon: theme.StageIcon(state)})
	return true
}

// Encode renders the stages listed in order, skipping stages never observed.
// With an empty order, stages are rendered in the order they were first seen.
func (p *StageProgress) Encode(order []string) string {
	var rows []string
	if len(order) == 0 {
		for pair := p.entries.Oldest(); pair != nil; pair = pair.Next() {
			rows = append(rows, pair.Value.Icon+" "+pair.Key)
		}
		return strings.Join(rows, stageSeparator)
	}
	for _, stage := range order {
		entry, ok := p.entries.Get(stage)
		if !ok {
			continue
		}
		rows = append(rows, entry.Icon+" "+stage)
	}
	return strings.Join(rows, stageSeparator)
}
