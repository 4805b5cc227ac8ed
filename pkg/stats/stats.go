package stats

import (
	"errors"
	"math"
	"sort"
)

// ErrEmptySample is returned for statistics that need at least one observation.
var ErrEmptySample = errors.New("empty sample")

// Percentile computes the p-th percentile (0-100) with linear
// interpolation between closest ranks.
func Percentile(values []float64, p float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrEmptySample
	}
	if p < 0 || p > 100 {
		return 0, errors.New("percentile out of range")
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0], nil
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo], nil
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac, nil
}

// Observation is one subject in a survival analysis. Time is months
// from the origin event; Event is false for censored subjects.
type Observation struct {
	Time  float64
	Event bool
}

// SurvivalPoint is one step of a Kaplan-Meier curve.
type SurvivalPoint struct {
	Time       float64 `json:"time"`
	Survival   float64 `json:"survival"`
	LowerBound float64 `json:"lowerBound"`
	UpperBound float64 `json:"upperBound"`
	AtRisk     int     `json:"atRisk"`
	Events     int     `json:"events"`
	Censored   int     `json:"censored"`
}

const z95 = 1.959963984540054

// KaplanMeier estimates the survival function from right-censored
// observations. Confidence bands use the Borgan-Liestol log-log
// transformation at the 95% level, clamped to [0, 1].
func KaplanMeier(observations []Observation) []SurvivalPoint {
	if len(observations) == 0 {
		return nil
	}
	obs := make([]Observation, len(observations))
	copy(obs, observations)
	sort.Slice(obs, func(i, j int) bool { return obs[i].Time < obs[j].Time })

	type group struct {
		time     float64
		events   int
		censored int
	}
	var groups []group
	for _, o := range obs {
		if len(groups) == 0 || groups[len(groups)-1].time != o.Time {
			groups = append(groups, group{time: o.Time})
		}
		g := &groups[len(groups)-1]
		if o.Event {
			g.events++
		} else {
			g.censored++
		}
	}

	points := make([]SurvivalPoint, 0, len(groups)+1)
	points = append(points, SurvivalPoint{Time: 0, Survival: 1, LowerBound: 1, UpperBound: 1, AtRisk: len(obs)})

	atRisk := len(obs)
	survival := 1.0
	varianceSum := 0.0 // Greenwood accumulator: sum d / (n * (n - d))
	for _, g := range groups {
		if g.events > 0 {
			n := float64(atRisk)
			d := float64(g.events)
			survival *= (n - d) / n
			if n > d {
				varianceSum += d / (n * (n - d))
			}
		}
		lower, upper := logLogBounds(survival, varianceSum)
		points = append(points, SurvivalPoint{
			Time:       g.time,
			Survival:   survival,
			LowerBound: lower,
			UpperBound: upper,
			AtRisk:     atRisk,
			Events:     g.events,
			Censored:   g.censored,
		})
		atRisk -= g.events + g.censored
	}
	return points
}

// logLogBounds computes the log-log transformed confidence interval
// around a survival estimate. Degenerate estimates (0 or 1) collapse
// to the point itself.
func logLogBounds(s, varianceSum float64) (lower, upper float64) {
	if s <= 0 || s >= 1 {
		return s, s
	}
	logS := math.Log(s)
	se := math.Sqrt(varianceSum) / math.Abs(logS)
	theta := math.Exp(z95 * se)
	lower = math.Pow(s, theta)
	upper = math.Pow(s, 1/theta)
	if lower < 0 {
		lower = 0
	}
	if upper > 1 {
		upper = 1
	}
	return lower, upper
}

// MedianSurvival returns the earliest time at which the survival
// estimate drops to 0.5 or below, and false when the curve never does.
func MedianSurvival(points []SurvivalPoint) (float64, bool) {
	for _, p := range points {
		if p.Survival <= 0.5 {
			return p.Time, true
		}
	}
	return 0, false
}
