package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hfjohn123/Anthuria-sub001/internal/auth"
	"github.com/hfjohn123/Anthuria-sub001/internal/circuitbreaker"
	"github.com/hfjohn123/Anthuria-sub001/internal/citation"
	"github.com/hfjohn123/Anthuria-sub001/internal/db"
	"github.com/hfjohn123/Anthuria-sub001/internal/pdpm"
)

type fakeEntries struct {
	entries map[string][]pdpm.Entry
	err     error
}

func (f *fakeEntries) ListEntries(_ context.Context, id string, domain pdpm.Domain, _ string) ([]pdpm.Entry, error) {
	if f.err != nil {
		return nil, f.err
	}
	e, ok := f.entries[id+"/"+string(domain)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", db.ErrNotFound, id)
	}
	return e, nil
}

type fakeCache struct{ invalidated []string }

func (f *fakeCache) Invalidate(_ context.Context, id string) (int, error) {
	f.invalidated = append(f.invalidated, id)
	return 2, nil
}

func newTestMux(t *testing.T, opts Options) *http.ServeMux {
	t.Helper()
	logger := zaptest.NewLogger(t)
	if opts.Tables == nil {
		opts.Tables = pdpm.NewStore(pdpm.DefaultRegistry(), logger)
	}
	opts.Logger = logger
	mux := http.NewServeMux()
	NewServer(opts).RegisterRoutes(mux)
	return mux
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAnnotate(t *testing.T) {
	mux := newTestMux(t, Options{})

	rec := do(t, mux, http.MethodPost, "/v1/citations/annotate", map[string]interface{}{
		"message": "The sky is blue.",
		"style":   "markdown",
		"citations": []map[string]interface{}{{
			"end_offset": 10,
			"references": []map[string]string{{"document_id": "d1"}, {"document_id": "d2"}},
		}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	var resp annotateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "The sky is^[1,2]^ blue.", resp.Rendered)
	assert.Equal(t, "The sky is blue.", resp.PlainText)
	assert.False(t, resp.Passthrough)
	want := []citation.Span{
		{Kind: citation.SpanText, Text: "The sky is"},
		{Kind: citation.SpanMarker, Numbers: []int{1, 2}},
		{Kind: citation.SpanText, Text: " blue."},
	}
	if diff := cmp.Diff(want, resp.Spans); diff != "" {
		t.Errorf("spans mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, resp.References, 2)
	assert.Equal(t, "d2", resp.References[1].Reference.DocumentID)
}

func TestAnnotatePassthroughAndErrors(t *testing.T) {
	mux := newTestMux(t, Options{})

	rec := do(t, mux, http.MethodPost, "/v1/citations/annotate", map[string]interface{}{"message": "<b>hi</b>", "style": "html"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp annotateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Passthrough)
	assert.Equal(t, "&lt;b&gt;hi&lt;/b&gt;", resp.Rendered)
	assert.Empty(t, resp.Spans)

	rec = do(t, mux, http.MethodPost, "/v1/citations/annotate", `{"message": "x", "style": "latex"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, mux, http.MethodPost, "/v1/citations/annotate", `{not json`, RequestIDHeader, "req-42")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
	var e errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Equal(t, "req-42", e.RequestID)

	rec = do(t, mux, http.MethodGet, "/v1/citations/annotate", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAggregate(t *testing.T) {
	mux := newTestMux(t, Options{})

	rec := do(t, mux, http.MethodPost, "/v1/pdpm/aggregate", map[string]interface{}{
		"domain": "nta",
		"entries": []pdpm.Entry{
			{Item: "HIV/AIDS", Points: 8, IsRecorded: true},
			{Item: "Parenteral IV feeding", Points: 7, Evidence: []pdpm.Evidence{{NoteID: "pn-1", Excerpt: "TPN"}}},
			{Item: "Morbid obesity", Points: 1},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var s pdpm.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	assert.Equal(t, 8.0, s.RecordedTotal)
	assert.Equal(t, 7.0, s.SuggestedTotal)
	assert.Equal(t, pdpm.Code("NC"), s.RecordedCategory)
	assert.Equal(t, pdpm.Code("NA"), s.ProjectedCategory)
	assert.Equal(t, 1, s.ActiveSuggestions)

	rec = do(t, mux, http.MethodPost, "/v1/pdpm/aggregate", map[string]interface{}{"domain": "nta", "entries": []pdpm.Entry{}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	assert.Equal(t, pdpm.Code("NF"), s.ProjectedCategory)

	assert.Equal(t, http.StatusNotFound, do(t, mux, http.MethodPost, "/v1/pdpm/aggregate", map[string]string{"domain": "nursing", "variant": "nope"}).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, mux, http.MethodPost, "/v1/pdpm/aggregate", map[string]string{}).Code)
}

func TestTables(t *testing.T) {
	mux := newTestMux(t, Options{})
	rec := do(t, mux, http.MethodGet, "/v1/pdpm/tables", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp tablesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "builtin", resp.Source)
	assert.Len(t, resp.Tables, pdpm.DefaultRegistry().Len())
}

func TestAssessment(t *testing.T) {
	src := &fakeEntries{entries: map[string][]pdpm.Entry{
		"asmt-1/slp": {
			{Item: "aphasia", Points: 1, Dimension: pdpm.AxisGeneral, IsRecorded: true},
			{Item: "swallowing disorder", Points: 1, Dimension: pdpm.AxisDiet, Evidence: []pdpm.Evidence{{NoteID: "pn-3", Excerpt: "coughing with thin liquids"}}},
		},
	}}
	mux := newTestMux(t, Options{Entries: src})

	rec := do(t, mux, http.MethodGet, "/v1/assessments/asmt-1/pdpm?domain=slp", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp assessmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "asmt-1", resp.AssessmentID)
	assert.Equal(t, pdpm.Code("SD"), resp.Summary.RecordedCategory)
	assert.Equal(t, pdpm.Code("SE"), resp.Summary.ProjectedCategory)
	assert.Len(t, resp.Entries, 2)

	assert.Equal(t, http.StatusNotFound, do(t, mux, http.MethodGet, "/v1/assessments/unknown/pdpm?domain=slp", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, mux, http.MethodGet, "/v1/assessments/asmt-1/pdpm", nil).Code)

	src.err = fmt.Errorf("select items: %w", circuitbreaker.ErrOpen)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, mux, http.MethodGet, "/v1/assessments/asmt-1/pdpm?domain=slp", nil).Code)
	src.err = errors.New("syntax error")
	assert.Equal(t, http.StatusInternalServerError, do(t, mux, http.MethodGet, "/v1/assessments/asmt-1/pdpm?domain=slp", nil).Code)

	unconfigured := newTestMux(t, Options{})
	assert.Equal(t, http.StatusServiceUnavailable, do(t, unconfigured, http.MethodGet, "/v1/assessments/asmt-1/pdpm?domain=slp", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, unconfigured, http.MethodDelete, "/v1/assessments/asmt-1/cache", nil).Code)
}

func TestAuthAndInvalidate(t *testing.T) {
	tokens := auth.NewTokenManager("0123456789abcdef0123456789abcdef", "")
	cache := &fakeCache{}
	mux := newTestMux(t, Options{
		Cache: cache,
		Auth:  auth.NewMiddleware(tokens, false, zaptest.NewLogger(t)),
	})

	assert.Equal(t, http.StatusUnauthorized, do(t, mux, http.MethodGet, "/v1/pdpm/tables", nil).Code)

	reader, err := tokens.Issue("reader", []string{auth.ScopeRead}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, do(t, mux, http.MethodGet, "/v1/pdpm/tables", nil, "Authorization", "Bearer "+reader).Code)
	assert.Equal(t, http.StatusForbidden, do(t, mux, http.MethodDelete, "/v1/assessments/a1/cache", nil, "Authorization", "Bearer "+reader).Code)

	writer, err := tokens.Issue("ops", []string{auth.ScopeRead, auth.ScopeWrite}, time.Hour)
	require.NoError(t, err)
	rec := do(t, mux, http.MethodDelete, "/v1/assessments/a1/cache", nil, "Authorization", "Bearer "+writer)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"removed": 2}`, rec.Body.String())
	assert.Equal(t, []string{"a1"}, cache.invalidated)
}

func TestRateLimit(t *testing.T) {
	mux := newTestMux(t, Options{RateLimit: NewRateLimiter(0.001, 2, zaptest.NewLogger(t))})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, do(t, mux, http.MethodGet, "/v1/pdpm/tables", nil, "X-Forwarded-For", "10.0.0.1, 10.0.0.2").Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	// another client has its own bucket
	assert.Equal(t, http.StatusOK, do(t, mux, http.MethodGet, "/v1/pdpm/tables", nil, "X-Forwarded-For", "10.0.0.9").Code)
}

func TestRateLimitIgnoresClientSuppliedForwardedFor(t *testing.T) {
	mux := newTestMux(t, Options{RateLimit: NewRateLimiter(0.001, 1, zaptest.NewLogger(t))})

	admitted := 0
	for i := 0; i < 20; i++ {
		fwd := fmt.Sprintf("203.0.113.%d, 10.0.0.7", i)
		if do(t, mux, http.MethodGet, "/v1/pdpm/tables", nil, "X-Forwarded-For", fwd).Code == http.StatusOK {
			admitted++
		}
	}
	assert.Equal(t, 1, admitted)
}

func TestClientKey(t *testing.T) {
	cases := []struct {
		name   string
		remote string
		fwd    []string
		want   string
	}{
		{"remote only", "192.0.2.1:5555", nil, "192.0.2.1"},
		{"single proxy hop", "10.0.0.1:80", []string{"198.51.100.4"}, "198.51.100.4"},
		{"rightmost entry", "10.0.0.1:80", []string{"1.2.3.4, 5.6.7.8 , 198.51.100.4"}, "198.51.100.4"},
		{"last header line", "10.0.0.1:80", []string{"1.2.3.4", "198.51.100.4"}, "198.51.100.4"},
		{"empty trailing entry", "192.0.2.1:5555", []string{"1.2.3.4, "}, "192.0.2.1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for _, v := range tc.fwd {
				req.Header.Add("X-Forwarded-For", v)
			}
			assert.Equal(t, tc.want, clientKey(req))
		})
	}
}

func TestRateLimiterSweepsIdleClients(t *testing.T) {
	rl := NewRateLimiter(1, 1, zaptest.NewLogger(t))
	now := time.Now()
	assert.True(t, rl.allow("a", now))
	assert.False(t, rl.allow("a", now))

	later := now.Add(rl.idle + time.Second)
	assert.True(t, rl.allow("b", later))
	rl.mu.Lock()
	_, kept := rl.clients["a"]
	rl.mu.Unlock()
	assert.False(t, kept)
}

func TestRequestIDIsGeneratedWhenMissing(t *testing.T) {
	mux := newTestMux(t, Options{})
	rec := do(t, mux, http.MethodGet, "/v1/pdpm/tables", nil, RequestIDHeader, strings.Repeat("x", 200))
	id := rec.Header().Get(RequestIDHeader)
	assert.Len(t, id, 36)
}
