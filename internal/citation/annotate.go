package citation

import (
	"strconv"
	"strings"
)

// Reference is an opaque source payload attached to a citation group.
// The annotator only counts references; their content is carried through untouched.
type Reference struct {
	DocumentID string                 `json:"document_id,omitempty"`
	Excerpt    string                 `json:"excerpt,omitempty"`
	Locator    string                 `json:"locator,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Group is an ordered set of references cited at a single point of the text.
// EndOffset is measured in runes of the annotated text.
type Group struct {
	References []Reference `json:"references"`
	EndOffset  int         `json:"end_offset"`
}

// SpanKind tells text spans and marker spans apart
type SpanKind string

const (
	SpanText   SpanKind = "text"
	SpanMarker SpanKind = "marker"
)

// Span is one piece of annotated output: either plain text or a citation marker.
type Span struct {
	Kind    SpanKind `json:"kind"`
	Text    string   `json:"text,omitempty"`
	Numbers []int    `json:"numbers,omitempty"`
}

// IsMarker reports whether the span is a citation marker
func (s Span) IsMarker() bool { return s.Kind == SpanMarker }

// Label renders a marker as "[1,2]". Text spans return their text.
func (s Span) Label() string {
	if !s.IsMarker() {
		return s.Text
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, n := range s.Numbers {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(n))
	}
	b.WriteByte(']')
	return b.String()
}

// NumberedReference pairs a reference with the global number it was assigned
type NumberedReference struct {
	Number    int       `json:"number"`
	Reference Reference `json:"reference"`
}

// Result is the output of Annotate.
//
// When no citation groups were supplied the result is a pass-through: Spans is nil and
// Text holds the original message. Callers use Passthrough to distinguish that case from
// groups that carried zero references.
type Result struct {
	Text    string `json:"text"`
	Spans   []Span `json:"spans,omitempty"`
	Clamped int    `json:"clamped,omitempty"`

	refs      []NumberedReference
	annotated bool
}

// Passthrough reports whether Annotate returned the text unchanged because there were no groups
func (r Result) Passthrough() bool { return !r.annotated }

// References returns the numbered reference list in assignment order
func (r Result) References() []NumberedReference {
	out := make([]NumberedReference, len(r.refs))
	copy(out, r.refs)
	return out
}

// Markers returns only the marker spans
func (r Result) Markers() []Span {
	var out []Span
	for _, s := range r.Spans {
		if s.IsMarker() {
			out = append(out, s)
		}
	}
	return out
}

// foldState is the accumulator threaded through the groups.
type foldState struct {
	next    int // next reference number to assign
	cut     int // rune offset already emitted
	clamped int
}

// Annotate splices numbered citation markers into text.
//
// Groups are processed in input order. Group i is numbered with the contiguous range
// that follows group i-1's last number, starting at 1. Offsets below the previous cut
// point or past the end of the text are clamped, so concatenating the text spans always
// reproduces the input.
func Annotate(text string, groups []Group) Result {
	if len(groups) == 0 {
		return Result{Text: text}
	}

	runes := []rune(text)
	spans := make([]Span, 0, 2*len(groups)+1)
	refs := make([]NumberedReference, 0, len(groups))
	st := foldState{next: 1}

	for _, g := range groups {
		st, spans, refs = step(st, runes, g, spans, refs)
	}

	if st.cut < len(runes) {
		spans = append(spans, Span{Kind: SpanText, Text: string(runes[st.cut:])})
	}

	return Result{
		Text:      text,
		Spans:     spans,
		Clamped:   st.clamped,
		refs:      refs,
		annotated: true,
	}
}

func step(st foldState, runes []rune, g Group, spans []Span, refs []NumberedReference) (foldState, []Span, []NumberedReference) {
	end := g.EndOffset
	switch {
	case end < st.cut:
		end = st.cut
		st.clamped++
	case end > len(runes):
		end = len(runes)
		st.clamped++
	}

	if end > st.cut {
		spans = append(spans, Span{Kind: SpanText, Text: string(runes[st.cut:end])})
	}
	st.cut = end

	// A group without references still moves the cut but carries no marker.
	if len(g.References) == 0 {
		return st, spans, refs
	}

	numbers := make([]int, len(g.References))
	for i, ref := range g.References {
		numbers[i] = st.next + i
		refs = append(refs, NumberedReference{Number: st.next + i, Reference: ref})
	}
	st.next += len(g.References)
	spans = append(spans, Span{Kind: SpanMarker, Numbers: numbers})
	return st, spans, refs
}

// PlainText concatenates the text spans, dropping markers
func (r Result) PlainText() string {
	if r.Passthrough() {
		return r.Text
	}
	var b strings.Builder
	for _, s := range r.Spans {
		if !s.IsMarker() {
			b.WriteString(s.Text)
		}
	}
	return b.String()
}
