package therapy

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// daysPerMonth matches the mean Gregorian month used for survival
// durations.
const daysPerMonth = 30.4375

// InferredLine is one therapy line produced by the inference pass,
// before persistence.
type InferredLine struct {
	Intent  Intent
	Ordinal int
	Label   string

	PeriodStart *time.Time
	PeriodEnd   *time.Time

	SystemicTherapyIDs []uuid.UUID
	SurgeryIDs         []uuid.UUID
	RadiotherapyIDs    []uuid.UUID

	ProgressionFreeSurvival *float64
	TherapyClassification   string
	DrugCombinations        [][]string

	ongoing    bool
	categories map[string]bool
}

const (
	kindSystemic = iota
	kindSurgery
	kindRadiotherapy
)

type lineEvent struct {
	kind   int
	id     uuid.UUID
	intent Intent
	start  time.Time
	end    *time.Time

	categories  []string
	combination []string
}

// InferLines runs the deterministic therapy-line assignment over a
// case's treatments and response assessments. Re-running over the same
// inputs yields the same lines.
func InferLines(therapies []*SystemicTherapy, surgeries []*Surgery, radiotherapies []*Radiotherapy, responses []*TreatmentResponse) []*InferredLine {
	var events []lineEvent
	for _, t := range therapies {
		events = append(events, lineEvent{
			kind:        kindSystemic,
			id:          t.ID,
			intent:      t.Intent,
			start:       t.Period.Start,
			end:         t.Period.End,
			categories:  t.Categories(),
			combination: t.Combination(),
		})
	}
	for _, s := range surgeries {
		end := s.Date
		events = append(events, lineEvent{
			kind:   kindSurgery,
			id:     s.ID,
			intent: s.Intent,
			start:  s.Date,
			end:    &end,
		})
	}
	for _, r := range radiotherapies {
		events = append(events, lineEvent{
			kind:   kindRadiotherapy,
			id:     r.ID,
			intent: r.Intent,
			start:  r.Period.Start,
			end:    r.Period.End,
		})
	}
	sort.Slice(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.start.Equal(b.start) {
			return a.start.Before(b.start)
		}
		if a.kind != b.kind {
			return a.kind < b.kind
		}
		return a.id.String() < b.id.String()
	})

	var progressions []time.Time
	for _, r := range responses {
		if r.IsProgression() {
			progressions = append(progressions, r.Date)
		}
	}
	sort.Slice(progressions, func(i, j int) bool { return progressions[i].Before(progressions[j]) })

	var lines []*InferredLine
	ordinals := map[Intent]int{}
	var current *InferredLine
	var lastStart time.Time

	for _, ev := range events {
		if current == nil || ev.intent != current.Intent ||
			progressionBetween(progressions, lastStart, ev.start) {
			ordinals[ev.intent]++
			current = &InferredLine{
				Intent:     ev.intent,
				Ordinal:    ordinals[ev.intent],
				Label:      LineLabel(ev.intent, ordinals[ev.intent]),
				categories: map[string]bool{},
			}
			lines = append(lines, current)
		}
		current.assign(ev)
		lastStart = ev.start
	}

	for i, line := range lines {
		var nextStart *time.Time
		if i+1 < len(lines) {
			nextStart = lines[i+1].PeriodStart
		}
		line.ProgressionFreeSurvival = survivalMonths(line.PeriodStart, nextStart, progressions)
		line.TherapyClassification = RenderClassification(line.classificationParts())
	}
	return lines
}

func (l *InferredLine) assign(ev lineEvent) {
	switch ev.kind {
	case kindSystemic:
		l.SystemicTherapyIDs = append(l.SystemicTherapyIDs, ev.id)
		for _, c := range ev.categories {
			l.categories[c] = true
		}
		l.DrugCombinations = append(l.DrugCombinations, ev.combination)
	case kindSurgery:
		l.SurgeryIDs = append(l.SurgeryIDs, ev.id)
		l.categories["surgery"] = true
	case kindRadiotherapy:
		l.RadiotherapyIDs = append(l.RadiotherapyIDs, ev.id)
		l.categories["radiotherapy"] = true
	}
	if l.PeriodStart == nil || ev.start.Before(*l.PeriodStart) {
		start := ev.start
		l.PeriodStart = &start
	}
	if ev.end == nil {
		l.ongoing = true
		l.PeriodEnd = nil
	} else if !l.ongoing && (l.PeriodEnd == nil || ev.end.After(*l.PeriodEnd)) {
		end := *ev.end
		l.PeriodEnd = &end
	}
}

func (l *InferredLine) classificationParts() []string {
	parts := make([]string, 0, len(l.categories))
	for c := range l.categories {
		parts = append(parts, c)
	}
	sort.Strings(parts)
	return parts
}

// progressionBetween reports whether a progression falls strictly
// after `after` and no later than `until`.
func progressionBetween(progressions []time.Time, after, until time.Time) bool {
	for _, p := range progressions {
		if p.After(after) && !p.After(until) {
			return true
		}
	}
	return false
}

// survivalMonths returns the months from the line start to the first
// progression attributable to the line, or nil when none occurred.
func survivalMonths(start, nextStart *time.Time, progressions []time.Time) *float64 {
	if start == nil {
		return nil
	}
	for _, p := range progressions {
		if !p.After(*start) {
			continue
		}
		if nextStart != nil && p.After(*nextStart) {
			break
		}
		months := p.Sub(*start).Hours() / 24 / daysPerMonth
		return &months
	}
	return nil
}

// RenderClassification joins sorted classification parts, with the
// conventional short renderings for common pairs.
func RenderClassification(parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	if len(parts) == 2 {
		if parts[0] == "chemotherapy" && parts[1] == "immunotherapy" {
			return "Chemoimmunotherapy"
		}
		if parts[0] == "radiotherapy" || parts[1] == "radiotherapy" {
			other := parts[0]
			if other == "radiotherapy" {
				other = parts[1]
			}
			return "Radio" + other
		}
	}
	return capitalize(strings.Join(parts, ", "))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
