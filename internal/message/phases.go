package message

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// PhaseEntry is one rendered build phase row. Duration is empty when unknown.
type PhaseEntry struct {
	Icon     string
	Duration string
}

// PhaseProgress is a snapshot of a build's phase list plus the most advanced
// phase it reached.
type PhaseProgress struct {
	entries  *orderedmap.OrderedMap[PhaseType, PhaseEntry]
	maxLevel int
}

func newPhaseProgress() *PhaseProgress {
	return &PhaseProgress{entries: orderedmap.New[PhaseType, PhaseEntry]()}
}

func (p *PhaseProgress) set(phase PhaseType, entry PhaseEntry) {
	level, _ := phase.Level()
	if level > p.maxLevel {
		p.maxLevel = level
	}
	p.entries.Set(phase, entry)
}

// MaxLevel returns the highest phase level in the snapshot.
func (p *PhaseProgress) MaxLevel() int {
	return p.maxLevel
}

// Len returns the number of phases in the snapshot.
func (p *PhaseProgress) Len() int {
	return p.entries.Len()
}

// Get returns the entry recorded for phase.
func (p *PhaseProgress) Get(phase PhaseType) (PhaseEntry, bool) {
	return p.entries.Get(phase)
}

// DecodePhaseProgress parses a rendered build field, one "icon PHASE [duration]"
// row per line. It returns nil for an empty value. Rows with other token counts
// or unknown phase names are skipped.
func DecodePhaseProgress(value string) *PhaseProgress {
	if value == "" {
		return nil
	}
	p := newPhaseProgress()
	for _, row := range strings.Split(value, "\n") {
		tokens := strings.Split(strings.TrimSpace(row), " ")
		var entry PhaseEntry
		var phase PhaseType
		switch len(tokens) {
		case 3:
			entry.Icon, phase, entry.Duration = tokens[0], PhaseType(tokens[1]), tokens[2]
		case 2:
			entry.Icon, phase = tokens[0], PhaseType(tokens[1])
		default:
			continue
		}
		if _, ok := phase.Level(); !ok {
			log.Debug().Str("row", row).Msg("skipping unknown build phase row")
			continue
		}
		p.set(phase, entry)
	}
	return p
}

// NewPhaseProgressFromReports builds a snapshot from the phases of a CodeBuild
// event. It returns nil when reports is empty. Phases without a status are in
// progress; phases without a recognised type are dropped.
func NewPhaseProgressFromReports(reports []PhaseReport, theme Theme) *PhaseProgress {
	if len(reports) == 0 {
		return nil
	}
	p := newPhaseProgress()
	for _, r := range reports {
		phase := PhaseType(r.Type)
		if _, ok := phase.Level(); !ok {
			log.Debug().Str("phase", r.Type).Msg("dropping phase without a known type")
			continue
		}
		status := PhaseStatus(r.Status)
		if status == "" {
			status = PhaseStatusInProgress
		}
		entry := PhaseEntry{Icon: theme.PhaseIcon(status)}
		if r.DurationSeconds != nil {
			entry.Duration = strconv.Itoa(*r.DurationSeconds)
		}
		p.set(phase, entry)
	}
	return p
}

// MergePhaseProgress picks the snapshot that reached further into the build.
// Ties go to incoming. Snapshots are never interleaved.
func MergePhaseProgress(existing, incoming *PhaseProgress) *PhaseProgress {
	switch {
	case existing == nil:
		return incoming
	case incoming == nil:
		return existing
	case existing.maxLevel > incoming.maxLevel:
		return existing
	default:
		return incoming
	}
}

// Render writes the snapshot one phase per line. A nil snapshot renders empty.
func (p *PhaseProgress) Render(theme Theme) string {
	if p == nil {
		return ""
	}
	var rows []string
	for pair := p.entries.Oldest(); pair != nil; pair = pair.Next() {
		icon := pair.Value.Icon
		if !pair.Key.ShowsProgress() {
			icon = theme.PhaseIcon(PhaseStatusSucceeded)
		}
		row := icon + " " + string(pair.Key)
		if pair.Value.Duration != "" {
			row += " " + pair.Value.Duration
		}
		rows = append(rows, row)
	}
	return strings.Join(rows, "\n")
}
