package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/doc-rag/internal/core/ask"
	"github.com/jinford/doc-rag/internal/core/job"
	"github.com/jinford/doc-rag/internal/core/search"
)

type stubAsker struct {
	askFunc func(ctx context.Context, params ask.AskParams) (*ask.AskResult, error)
}

func (s *stubAsker) Ask(ctx context.Context, params ask.AskParams) (*ask.AskResult, error) {
	return s.askFunc(ctx, params)
}

type stubJobs struct {
	submitFunc func(ctx context.Context, queryText string) (*job.Job, error)
	getFunc    func(ctx context.Context, queryID string) (mo.Option[*job.Job], error)
}

func (s *stubJobs) Submit(ctx context.Context, queryText string) (*job.Job, error) {
	return s.submitFunc(ctx, queryText)
}

func (s *stubJobs) Get(ctx context.Context, queryID string) (mo.Option[*job.Job], error) {
	return s.getFunc(ctx, queryID)
}

type stubMetrics struct{}

func (stubMetrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "docrag_jobs_total 0\n")
	})
}

func (stubMetrics) GinMiddleware() gin.HandlerFunc { return func(c *gin.Context) { c.Next() } }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(asker Asker, opts ...ServerOption) *Server {
	gin.SetMode(gin.TestMode)
	opts = append([]ServerOption{WithServerLogger(testLogger())}, opts...)
	return NewServer(asker, opts...)
}

func do(t *testing.T, s *Server, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	s := newTestServer(&stubAsker{})
	rec := do(t, s, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestSubmitQuery_Success(t *testing.T) {
	var got ask.AskParams
	s := newTestServer(&stubAsker{askFunc: func(ctx context.Context, params ask.AskParams) (*ask.AskResult, error) {
		got = params
		return &ask.AskResult{Query: params.Query, Answer: "$1500", Sources: []string{"data/monopoly.pdf:0:0"}}, nil
	}})

	rec := do(t, s, http.MethodPost, "/submit_query", `{"query_text":"How much money?","k":3,"strategy":"mmr"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "How much money?", body["query_text"])
	assert.Equal(t, "$1500", body["response_text"])
	assert.Equal(t, []any{"data/monopoly.pdf:0:0"}, body["sources"])
	assert.Equal(t, 3, got.K)
	assert.Equal(t, search.StrategyMMR, got.Strategy)
}

func TestSubmitQuery_ValidationError(t *testing.T) {
	s := newTestServer(&stubAsker{askFunc: func(ctx context.Context, params ask.AskParams) (*ask.AskResult, error) {
		return nil, &ask.ValidationError{Field: "query_text", Constraint: "safequery", Message: "query contains invalid characters"}
	}})

	rec := do(t, s, http.MethodPost, "/submit_query", `{"query_text":"<script>"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid query: query contains invalid characters", decode(t, rec)["detail"])
}

func TestSubmitQuery_InternalErrorIsGeneric(t *testing.T) {
	s := newTestServer(&stubAsker{askFunc: func(ctx context.Context, params ask.AskParams) (*ask.AskResult, error) {
		return nil, errors.New("dial tcp 10.0.0.5:11434: connection refused")
	}})

	rec := do(t, s, http.MethodPost, "/submit_query", `{"query_text":"hello"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, ask.GenericErrorMessage, decode(t, rec)["detail"])
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")
}

func TestSubmitQuery_BadBody(t *testing.T) {
	s := newTestServer(&stubAsker{})

	for _, body := range []string{`not json`, `{"query_text":"x","strategy":"random"}`, `{"query_text":"x","k":-1}`} {
		rec := do(t, s, http.MethodPost, "/submit_query", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestCORS(t *testing.T) {
	s := newTestServer(&stubAsker{}, WithAllowedOrigins([]string{"http://app.example"}))

	rec := do(t, s, http.MethodGet, "/health", "", "Origin", "http://app.example")
	assert.Equal(t, "http://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(t, s, http.MethodGet, "/health", "", "Origin", "http://evil.example")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(t, s, http.MethodOptions, "/submit_query", "", "Origin", "http://app.example")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "GET, POST", rec.Header().Get("Access-Control-Allow-Methods"))

	all := newTestServer(&stubAsker{})
	rec = do(t, all, http.MethodGet, "/health", "", "Origin", "http://any.example")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestJobs(t *testing.T) {
	stored := &job.Job{QueryID: "q1", QueryText: "hello", Status: job.StatusSucceeded, Answer: "hi", Sources: []string{"a:0:0"}}
	jobs := &stubJobs{
		submitFunc: func(ctx context.Context, queryText string) (*job.Job, error) {
			if queryText == "" {
				return nil, &ask.ValidationError{Field: "query_text", Constraint: "required", Message: "query must not be empty"}
			}
			return &job.Job{QueryID: "q1", QueryText: queryText, Status: job.StatusPending}, nil
		},
		getFunc: func(ctx context.Context, queryID string) (mo.Option[*job.Job], error) {
			switch queryID {
			case "q1":
				return mo.Some(stored), nil
			case "broken":
				return mo.None[*job.Job](), job.ErrJobPersistence
			default:
				return mo.None[*job.Job](), nil
			}
		},
	}
	s := newTestServer(&stubAsker{}, WithJobService(jobs))

	rec := do(t, s, http.MethodPost, "/jobs", `{"query_text":"hello"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, map[string]any{"query_id": "q1", "status": "PENDING"}, decode(t, rec))

	rec = do(t, s, http.MethodPost, "/jobs", `{"query_text":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/jobs/q1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "SUCCEEDED", body["status"])
	assert.Equal(t, "hi", body["response_text"])

	rec = do(t, s, http.MethodGet, "/jobs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/jobs/broken", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestJobsDisabledWithoutJobService(t *testing.T) {
	s := newTestServer(&stubAsker{})

	rec := do(t, s, http.MethodPost, "/jobs", `{"query_text":"hello"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(&stubAsker{}, WithMetrics(stubMetrics{}))

	rec := do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "docrag_jobs_total")
}
