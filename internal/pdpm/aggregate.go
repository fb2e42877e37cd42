package pdpm

import "sort"

// Summary is the result of aggregating one domain's entries against one table
type Summary struct {
	Domain            Domain  `json:"domain"`
	Variant           string  `json:"variant"`
	RecordedTotal     float64 `json:"recorded_total"`
	SuggestedTotal    float64 `json:"suggested_total"`
	ProjectedTotal    float64 `json:"projected_total"`
	RecordedCategory  Code    `json:"recorded_category"`
	ProjectedCategory Code    `json:"projected_category"`
	RecordedCMI       float64 `json:"recorded_cmi"`
	ProjectedCMI      float64 `json:"projected_cmi"`
	ActiveSuggestions int     `json:"active_suggestions"`
	RecordedLookup    Totals  `json:"recorded_lookup"`
	ProjectedLookup   Totals  `json:"projected_lookup"`
}

// Changed reports whether accepting the active suggestions would move the category
func (s Summary) Changed() bool {
	return s.RecordedCategory != s.ProjectedCategory
}

// IsActiveSuggestion reports whether an entry is an unrecorded item backed by at least
// one AI-suggested evidence excerpt.
func IsActiveSuggestion(e Scored) bool {
	return !e.Recorded() && len(e.Suggestions()) > 0
}

// Aggregate totals recorded and suggested entries and maps both the recorded and the
// projected totals to a category of table. Entries that are neither recorded nor
// actively suggested do not contribute. The result does not depend on entry order.
func Aggregate(entries []Scored, table *CategoryTable) Summary {
	s := Summary{Domain: table.Domain, Variant: table.Variant}

	var recordedScores, suggestedScores []float64
	var recorded, projected labelSet
	for _, e := range entries {
		switch {
		case e.Recorded():
			recordedScores = append(recordedScores, e.Score())
			recorded.add(e)
			projected.add(e)
		case IsActiveSuggestion(e):
			suggestedScores = append(suggestedScores, e.Score())
			s.ActiveSuggestions++
			projected.add(e)
		}
	}
	s.RecordedTotal = sum(recordedScores)
	s.SuggestedTotal = sum(suggestedScores)
	s.ProjectedTotal = s.RecordedTotal + s.SuggestedTotal

	s.RecordedLookup = recorded.totals(table.Kind, s.RecordedTotal)
	s.ProjectedLookup = projected.totals(table.Kind, s.ProjectedTotal)
	s.RecordedCategory = table.Lookup(s.RecordedLookup)
	s.ProjectedCategory = table.Lookup(s.ProjectedLookup)
	s.RecordedCMI = table.CMIFor(s.RecordedCategory)
	s.ProjectedCMI = table.CMIFor(s.ProjectedCategory)
	return s
}

// sum adds scores in ascending order so that fractional scores give the same total
// whatever order the entries arrived in.
func sum(scores []float64) float64 {
	sort.Float64s(scores)
	var total float64
	for _, v := range scores {
		total += v
	}
	return total
}

// labelSet collects distinct condition labels per axis for grid tables
type labelSet struct {
	general map[string]struct{}
	diet    map[string]struct{}
}

func (a *labelSet) add(e Scored) {
	if e.Axis() == AxisDiet {
		if a.diet == nil {
			a.diet = make(map[string]struct{})
		}
		a.diet[e.Label()] = struct{}{}
		return
	}
	if a.general == nil {
		a.general = make(map[string]struct{})
	}
	a.general[e.Label()] = struct{}{}
}

func (a *labelSet) totals(kind Kind, total float64) Totals {
	if kind == KindGrid {
		return Totals{General: len(a.general), Diet: len(a.diet)}
	}
	return Totals{Primary: total}
}
