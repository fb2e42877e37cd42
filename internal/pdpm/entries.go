package pdpm

import "time"

// Axis places an entry on one dimension of a table lookup
type Axis string

const (
	AxisPrimary Axis = "primary"
	AxisGeneral Axis = "general" // SLP: acute neuro, cognitive impairment, SLP comorbidity
	AxisDiet    Axis = "diet"    // SLP: mechanically altered diet, swallowing disorder
)

// Evidence is an AI-suggested progress-note excerpt supporting an entry
type Evidence struct {
	NoteID   string    `json:"note_id" db:"note_id"`
	Excerpt  string    `json:"excerpt" db:"excerpt"`
	NoteDate time.Time `json:"note_date,omitempty" db:"note_date"`
}

// Scored is the minimal view the aggregator needs of any clinical entry
type Scored interface {
	Label() string
	Score() float64
	Recorded() bool
	Suggestions() []Evidence
	Axis() Axis
}

// Entry is the domain-neutral form of a scored item as it travels over the wire and
// out of storage.
type Entry struct {
	Item       string     `json:"item"`
	Points     float64    `json:"score"`
	Dimension  Axis       `json:"axis,omitempty"`
	IsRecorded bool       `json:"recorded"`
	Evidence   []Evidence `json:"suggestions,omitempty"`
}

func (e Entry) Label() string           { return e.Item }
func (e Entry) Score() float64          { return e.Points }
func (e Entry) Recorded() bool          { return e.IsRecorded }
func (e Entry) Suggestions() []Evidence { return e.Evidence }
func (e Entry) Axis() Axis {
	if e.Dimension == "" {
		return AxisPrimary
	}
	return e.Dimension
}

// NTAEntry is a non-therapy ancillary comorbidity or service
type NTAEntry struct {
	Comorbidity string
	MDSItem     string
	PointValue  int
	IsRecorded  bool
	Evidence    []Evidence
}

func (e NTAEntry) Label() string           { return e.Comorbidity }
func (e NTAEntry) Score() float64          { return float64(e.PointValue) }
func (e NTAEntry) Recorded() bool          { return e.IsRecorded }
func (e NTAEntry) Suggestions() []Evidence { return e.Evidence }
func (e NTAEntry) Axis() Axis              { return AxisPrimary }

// SLPEntry is a speech-language pathology condition. Each condition counts once.
type SLPEntry struct {
	Condition   string
	DietRelated bool
	IsRecorded  bool
	Evidence    []Evidence
}

func (e SLPEntry) Label() string           { return e.Condition }
func (e SLPEntry) Score() float64          { return 1 }
func (e SLPEntry) Recorded() bool          { return e.IsRecorded }
func (e SLPEntry) Suggestions() []Evidence { return e.Evidence }
func (e SLPEntry) Axis() Axis {
	if e.DietRelated {
		return AxisDiet
	}
	return AxisGeneral
}

// NursingEntry is one contribution to a nursing table total: a function-score item
// (GG self-care or mobility) or a counted service, depending on the nursing group.
type NursingEntry struct {
	Item       string
	Points     float64
	IsRecorded bool
	Evidence   []Evidence
}

func (e NursingEntry) Label() string           { return e.Item }
func (e NursingEntry) Score() float64          { return e.Points }
func (e NursingEntry) Recorded() bool          { return e.IsRecorded }
func (e NursingEntry) Suggestions() []Evidence { return e.Evidence }
func (e NursingEntry) Axis() Axis              { return AxisPrimary }

// TherapyEntry is one PT/OT function-score item
type TherapyEntry struct {
	Item       string
	Points     float64
	IsRecorded bool
	Evidence   []Evidence
}

func (e TherapyEntry) Label() string           { return e.Item }
func (e TherapyEntry) Score() float64          { return e.Points }
func (e TherapyEntry) Recorded() bool          { return e.IsRecorded }
func (e TherapyEntry) Suggestions() []Evidence { return e.Evidence }
func (e TherapyEntry) Axis() Axis              { return AxisPrimary }

// Entries adapts a slice of concrete entries to the Scored interface
func Entries[T Scored](in []T) []Scored {
	out := make([]Scored, len(in))
	for i, e := range in {
		out[i] = e
	}
	return out
}
