package citation

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func refs(n int) []Reference {
	out := make([]Reference, n)
	for i := range out {
		out[i] = Reference{DocumentID: "doc-" + string(rune('a'+i))}
	}
	return out
}

func TestAnnotate_SingleGroup(t *testing.T) {
	res := Annotate("The sky is blue.", []Group{{References: refs(2), EndOffset: 10}})

	want := []Span{
		{Kind: SpanText, Text: "The sky is"},
		{Kind: SpanMarker, Numbers: []int{1, 2}},
		{Kind: SpanText, Text: " blue."},
	}
	if diff := cmp.Diff(want, res.Spans); diff != "" {
		t.Errorf("spans mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, res.Passthrough())
	assert.Equal(t, 0, res.Clamped)
	assert.Equal(t, "[1,2]", res.Spans[1].Label())
}

// End offsets are exclusive: 11 places the marker after the space that follows "is".
func TestAnnotate_EndOffsetIsExclusive(t *testing.T) {
	res := Annotate("The sky is blue.", []Group{{References: refs(2), EndOffset: 11}})

	want := []Span{
		{Kind: SpanText, Text: "The sky is "},
		{Kind: SpanMarker, Numbers: []int{1, 2}},
		{Kind: SpanText, Text: "blue."},
	}
	if diff := cmp.Diff(want, res.Spans); diff != "" {
		t.Errorf("spans mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 0, res.Clamped)
	assert.Equal(t, "The sky is [1,2]blue.", Render(res, StylePlain))
}

func TestAnnotate_NoGroupsIsPassthrough(t *testing.T) {
	res := Annotate("unchanged text", nil)

	assert.True(t, res.Passthrough())
	assert.Equal(t, "unchanged text", res.Text)
	assert.Nil(t, res.Spans)
	assert.Empty(t, res.Markers())
	assert.Equal(t, "unchanged text", Render(res, StylePlain))
}

func TestAnnotate_ZeroReferenceGroupIsNotPassthrough(t *testing.T) {
	res := Annotate("abc def", []Group{{EndOffset: 3}})

	assert.False(t, res.Passthrough())
	assert.Empty(t, res.Markers())
	require.Len(t, res.Spans, 2)
	assert.Equal(t, "abc", res.Spans[0].Text)
	assert.Equal(t, " def", res.Spans[1].Text)
}

func TestAnnotate_NumberingIsContiguousAcrossGroups(t *testing.T) {
	text := "Alpha. Beta. Gamma. Delta."
	groups := []Group{
		{References: refs(1), EndOffset: 6},
		{References: refs(3), EndOffset: 12},
		{References: refs(2), EndOffset: 19},
		{References: refs(1), EndOffset: 26},
	}
	res := Annotate(text, groups)

	markers := res.Markers()
	require.Len(t, markers, len(groups))
	prevLast := 0
	for i, m := range markers {
		require.Len(t, m.Numbers, len(groups[i].References))
		assert.Equal(t, prevLast+1, m.Numbers[0], "group %d must start right after previous group", i)
		for j := 1; j < len(m.Numbers); j++ {
			assert.Equal(t, m.Numbers[j-1]+1, m.Numbers[j])
		}
		prevLast = m.Numbers[len(m.Numbers)-1]
	}
	assert.Equal(t, 7, prevLast)

	numbered := res.References()
	require.Len(t, numbered, 7)
	for i, nr := range numbered {
		assert.Equal(t, i+1, nr.Number)
	}
	assert.Equal(t, "doc-c", numbered[3].Reference.DocumentID)
}

func TestAnnotate_RoundTripPreservesText(t *testing.T) {
	text := "Resident has CHF, on diuretics. Weight stable; edema noted at 2+. No SOB."
	cases := [][]int{
		{0},
		{len([]rune(text))},
		{10, 20, 30},
		{31, 31, 31},
		{5, 40, 70, 73},
	}
	for _, offsets := range cases {
		groups := make([]Group, len(offsets))
		for i, o := range offsets {
			groups[i] = Group{References: refs(1), EndOffset: o}
		}
		res := Annotate(text, groups)
		assert.Equal(t, text, res.PlainText(), "offsets %v", offsets)
		assert.Equal(t, 0, res.Clamped, "offsets %v", offsets)
		for _, s := range res.Spans {
			if !s.IsMarker() {
				assert.NotEmpty(t, s.Text, "empty text spans must be omitted")
			}
		}
	}
}

func TestAnnotate_ClampsMalformedOffsets(t *testing.T) {
	text := "short text"

	t.Run("past end", func(t *testing.T) {
		res := Annotate(text, []Group{{References: refs(1), EndOffset: 500}})
		assert.Equal(t, 1, res.Clamped)
		assert.Equal(t, text, res.PlainText())
		last := res.Spans[len(res.Spans)-1]
		assert.True(t, last.IsMarker())
	})

	t.Run("negative", func(t *testing.T) {
		res := Annotate(text, []Group{{References: refs(1), EndOffset: -4}})
		assert.Equal(t, 1, res.Clamped)
		assert.True(t, res.Spans[0].IsMarker())
		assert.Equal(t, text, res.PlainText())
	})

	t.Run("non monotonic", func(t *testing.T) {
		res := Annotate(text, []Group{
			{References: refs(1), EndOffset: 8},
			{References: refs(1), EndOffset: 3},
		})
		assert.Equal(t, 1, res.Clamped)
		assert.Equal(t, text, res.PlainText())
		assert.Equal(t, "short te[1][2]xt", Render(res, StylePlain))
	})
}

func TestAnnotate_OffsetsAreRunes(t *testing.T) {
	text := "Dx: café – stable"
	res := Annotate(text, []Group{{References: refs(1), EndOffset: 8}})

	require.GreaterOrEqual(t, len(res.Spans), 2)
	assert.Equal(t, "Dx: café", res.Spans[0].Text)
	assert.Equal(t, text, res.PlainText())
}

func TestRender_Styles(t *testing.T) {
	res := Annotate("a < b", []Group{{References: refs(2), EndOffset: 1}})

	assert.Equal(t, "a[1,2] < b", Render(res, StylePlain))
	assert.Equal(t, "a^[1,2]^ < b", Render(res, StyleMarkdown))
	assert.Equal(t, "a<sup>[1,2]</sup> &lt; b", Render(res, StyleHTML))
}

func TestParseStyle(t *testing.T) {
	for in, want := range map[string]Style{"": StylePlain, "MD": StyleMarkdown, "html": StyleHTML, " text ": StylePlain} {
		got, err := ParseStyle(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseStyle("latex")
	assert.Error(t, err)
}

func TestDecodePayload(t *testing.T) {
	t.Run("native shape", func(t *testing.T) {
		body := `{"message":"The sky is blue.","citations":[{"end_offset":10,"references":[{"document_id":"n1","excerpt":"sky"},{"document_id":"n2"}]}]}`
		p, err := DecodePayload([]byte(body))
		require.NoError(t, err)
		require.Len(t, p.Citations, 1)
		assert.Equal(t, 10, p.Citations[0].EndOffset)
		assert.Len(t, p.Citations[0].References, 2)
		assert.Equal(t, "n1", p.Citations[0].References[0].DocumentID)
	})

	t.Run("knowledge base shape", func(t *testing.T) {
		body := `{"message":"Edema noted.","citations":[{
			"generatedResponsePart":{"textResponsePart":{"text":"Edema noted","span":{"start":0,"end":11}}},
			"retrievedReferences":[{"content":{"text":"2+ pitting edema"},"location":{"type":"S3","s3Location":{"uri":"s3://notes/123.txt"}},"metadata":{"document_id":"note-123"}}]
		}]}`
		p, err := DecodePayload([]byte(body))
		require.NoError(t, err)
		require.Len(t, p.Citations, 1)
		g := p.Citations[0]
		assert.Equal(t, 11, g.EndOffset)
		require.Len(t, g.References, 1)
		assert.Equal(t, "s3://notes/123.txt", g.References[0].Locator)
		assert.Equal(t, "note-123", g.References[0].DocumentID)
		assert.Equal(t, "2+ pitting edema", g.References[0].Excerpt)

		res := Annotate(p.Message, p.Citations)
		assert.Equal(t, "Edema noted[1].", Render(res, StylePlain))
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := DecodePayload([]byte(`{"message":`))
		assert.Error(t, err)
	})
}

func BenchmarkAnnotate(b *testing.B) {
	text := strings.Repeat("Resident ambulates with walker. ", 200)
	groups := make([]Group, 0, 100)
	for i := 1; i <= 100; i++ {
		groups = append(groups, Group{References: refs(2), EndOffset: i * 60})
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Annotate(text, groups)
	}
}
