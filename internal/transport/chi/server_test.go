package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kailas-cloud/docqa/internal/corpus"
	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/index"
	"github.com/kailas-cloud/docqa/internal/logger"
	"github.com/kailas-cloud/docqa/internal/snapshot"
	healthuc "github.com/kailas-cloud/docqa/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/docqa/internal/usecase/ingest"
	usageuc "github.com/kailas-cloud/docqa/internal/usecase/usage"
)

type mockIngester struct {
	got    string
	tokens int
	result ingestuc.Result
	err    error
}

func (m *mockIngester) Ingest(ctx context.Context, text string) (ingestuc.Result, error) {
	m.got = text
	if m.err != nil {
		return ingestuc.Result{}, m.err
	}
	domain.UsageFromContext(ctx).AddEmbeddingTokens(m.tokens)
	return m.result, nil
}

type mockAsker struct {
	answers []domain.Answer
	err     error
}

func (m *mockAsker) Ask(ctx context.Context, question string) ([]domain.Answer, error) {
	if m.err != nil {
		return nil, m.err
	}
	domain.UsageFromContext(ctx).AddEmbeddingTokens(7)
	domain.UsageFromContext(ctx).AddGenerationTokens(42)
	out := make([]domain.Answer, len(m.answers))
	for i, a := range m.answers {
		a.Question = question
		out[i] = a
	}
	return out, nil
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(context.Context) healthuc.Report { return m.report }

type mockUsage struct {
	got usageuc.Period
}

func (m *mockUsage) Report(_ context.Context, p usageuc.Period) usageuc.Report {
	m.got = p
	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	return usageuc.Report{
		Period: p, Start: start, End: start.AddDate(0, 1, 0),
		Used: 900, Limit: 1000, Remaining: 100,
	}
}

type fixture struct {
	ingest *mockIngester
	ask    *mockAsker
	health *mockHealth
	docs   *snapshot.Holder
	usage  *mockUsage
	router http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ingest: &mockIngester{},
		ask:    &mockAsker{},
		health: &mockHealth{report: healthuc.Report{Status: healthuc.Healthy}},
		docs:   snapshot.NewHolder(),
		usage:  &mockUsage{},
	}
	srv := NewServer(f.ingest, f.ask, f.health, f.docs, f.usage, 64, zap.NewNop())
	r := chi.NewRouter()
	srv.Routes(r)
	f.router = r
	return f
}

func (f *fixture) do(method, path, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return e
}

func TestUpload_JSON(t *testing.T) {
	f := newFixture(t)
	docID := uuid.New()
	f.ingest.result = ingestuc.Result{Status: ingestuc.StatusIndexed, ChunkCount: 4, DocumentID: docID}
	f.ingest.tokens = 120

	rec := f.do(http.MethodPost, "/upload", "application/json; charset=utf-8", `{"text":"The tenant shall pay rent."}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if f.ingest.got != "The tenant shall pay rent." {
		t.Errorf("ingested %q", f.ingest.got)
	}
	var resp UploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "indexed" || resp.Chunks != 4 || resp.DocumentID != docID.String() {
		t.Errorf("unexpected response %+v", resp)
	}
	if got := rec.Header().Get("X-Embedding-Tokens"); got != "120" {
		t.Errorf("X-Embedding-Tokens = %q, want 120", got)
	}
}

func TestUpload_PlainText(t *testing.T) {
	f := newFixture(t)
	f.ingest.result = ingestuc.Result{Status: ingestuc.StatusIndexed, ChunkCount: 1}

	rec := f.do(http.MethodPost, "/upload", "text/plain", "raw clause")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if f.ingest.got != "raw clause" {
		t.Errorf("ingested %q, want raw body", f.ingest.got)
	}
}

func TestUpload_BadJSON(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/upload", "application/json", `{"text":`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != CodeBadRequest {
		t.Errorf("code = %q", e.Code)
	}
}

func TestUpload_TooLarge(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/upload", "text/plain", strings.Repeat("x", 4096))

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
	if f.ingest.got != "" {
		t.Error("ingester must not be called for an oversized body")
	}
}

func TestUpload_EmptyDocument(t *testing.T) {
	f := newFixture(t)
	f.ingest.err = fmt.Errorf("document has no text: %w", domain.ErrInvalidInput)

	rec := f.do(http.MethodPost, "/upload", "application/json", `{"text":"   "}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	e := decodeError(t, rec)
	if e.Code != CodeInvalidInput || !strings.Contains(e.Message, "document has no text") {
		t.Errorf("unexpected error %+v", e)
	}
}

func TestQuery_Success(t *testing.T) {
	f := newFixture(t)
	f.ask.answers = []domain.Answer{{
		AnswerText:   "Rent is due on the first [1].",
		CitedChunkID: 1,
		SourceClause: "Rent is due on the first day of each month.",
		Confidence:   0.91,
	}}

	rec := f.do(http.MethodPost, "/query", "application/json", `{"question":"When is rent due?"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp []AnswerResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp) != 1 {
		t.Fatalf("got %d answers, want 1", len(resp))
	}
	a := resp[0]
	if a.Question != "When is rent due?" || a.CitedChunkID != 1 || a.Confidence != 0.91 {
		t.Errorf("unexpected answer %+v", a)
	}
	if a.SourceClause != "Rent is due on the first day of each month." {
		t.Errorf("source clause = %q", a.SourceClause)
	}
	if rec.Header().Get("X-Embedding-Tokens") != "7" || rec.Header().Get("X-Generation-Tokens") != "42" {
		t.Errorf("usage headers = %v", rec.Header())
	}
}

func TestQuery_ResponseFieldNames(t *testing.T) {
	f := newFixture(t)
	f.ask.answers = []domain.Answer{{AnswerText: "a", SourceClause: "s"}}

	rec := f.do(http.MethodPost, "/query", "application/json", `{"question":"q"}`)

	var raw []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"question", "answer", "source_clause", "confidence", "cited_chunk_id"} {
		if _, ok := raw[0][k]; !ok {
			t.Errorf("missing field %q in %v", k, raw[0])
		}
	}
}

func TestQuery_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"no document", domain.ErrNoDocumentIndexed, http.StatusPreconditionFailed, CodeNoDocument},
		{"blank question", fmt.Errorf("question is empty: %w", domain.ErrInvalidInput), http.StatusBadRequest, CodeInvalidInput},
		{"quota", fmt.Errorf("budget check: %w", domain.ErrEmbeddingQuotaExceeded), http.StatusPaymentRequired, CodeQuotaExceeded},
		{"transient embedding", fmt.Errorf("embed: %w", domain.ErrTransientService), http.StatusServiceUnavailable, CodeServiceUnavailable},
		{
			"transient generation",
			fmt.Errorf("%w: %w", domain.ErrGeneration, domain.ErrTransientService),
			http.StatusServiceUnavailable, CodeServiceUnavailable,
		},
		{"fatal generation", fmt.Errorf("%w: bad request", domain.ErrGeneration), http.StatusBadGateway, CodeGenerationFailed},
		{"fatal provider", fmt.Errorf("auth: %w", domain.ErrFatalService), http.StatusBadGateway, CodeProviderError},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.ask.err = tt.err

			rec := f.do(http.MethodPost, "/query", "application/json", `{"question":"q"}`)

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			e := decodeError(t, rec)
			if e.Code != tt.code {
				t.Errorf("code = %q, want %q", e.Code, tt.code)
			}
			if tt.code == CodeInternal && e.Message != "internal error" {
				t.Errorf("internal message leaked: %q", e.Message)
			}
		})
	}
}

func TestQuery_BadBody(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/query", "application/json", `not json`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestQuery_BodyTooLarge(t *testing.T) {
	f := newFixture(t)
	f.ask.err = errors.New("must not be reached")

	body := `{"question":"` + strings.Repeat("a", maxQueryBodyBytes) + `"}`
	rec := f.do(http.MethodPost, "/query", "application/json", body)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != CodePayloadTooLarge {
		t.Errorf("code = %q", e.Code)
	}
}

func TestDocument(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/document", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("empty holder status = %d, want 404", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != CodeNoDocument {
		t.Errorf("code = %q", e.Code)
	}

	ix, err := index.Build([][]float32{{1, 0, 0}, {0, 1, 0}})
	if err != nil {
		t.Fatal(err)
	}
	c, err := corpus.New([]domain.Chunk{{ID: 0, Text: "a"}, {ID: 1, Text: "b"}})
	if err != nil {
		t.Fatal(err)
	}
	snap, err := snapshot.New(ix, c)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.docs.Publish(snap); err != nil {
		t.Fatal(err)
	}

	rec = f.do(http.MethodGet, "/document", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp DocumentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.DocumentID != snap.DocumentID.String() || resp.Chunks != 2 || resp.Dimensions != 3 {
		t.Errorf("unexpected document %+v", resp)
	}
}

func TestUsage(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/usage?period=month", "", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if f.usage.got != usageuc.PeriodMonth {
		t.Errorf("period = %q, want month", f.usage.got)
	}
	var resp UsageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.TokensUsed != 900 || resp.TokensRemaining != 100 || resp.IsExhausted {
		t.Errorf("unexpected usage %+v", resp)
	}
	if !resp.ResetsAt.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("resets_at = %v", resp.ResetsAt)
	}
}

func TestUsage_BadPeriod(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/usage?period=decade", "", "")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		status healthuc.Status
		want   int
	}{
		{healthuc.Healthy, http.StatusOK},
		{healthuc.Degraded, http.StatusServiceUnavailable},
		{healthuc.Unhealthy, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			f := newFixture(t)
			f.health.report = healthuc.Report{
				Status: tt.status,
				Checks: map[string]healthuc.CheckResult{"cache": healthuc.CheckOK},
			}

			rec := f.do(http.MethodGet, "/health", "", "")

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			var resp HealthResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Status != string(tt.status) || resp.Checks["cache"] != string(healthuc.CheckOK) {
				t.Errorf("unexpected health %+v", resp)
			}
		})
	}
}

func TestMetrics(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/metrics", "", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestJSONRecoverer(t *testing.T) {
	h := JSONRecoverer(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != CodeInternal {
		t.Errorf("code = %q", e.Code)
	}
}

func TestCORS_Preflight(t *testing.T) {
	called := false
	h := CORS()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodOptions, "/query", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code >= http.StatusMultipleChoices {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if called {
		t.Error("preflight reached the handler")
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("allow-origin = %q, want *", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestCORS_ExposesUsageHeaders(t *testing.T) {
	h := CORS()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/query", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("allow-origin = %q, want *", rec.Header().Get("Access-Control-Allow-Origin"))
	}
	exposed := rec.Header().Get("Access-Control-Expose-Headers")
	for _, h := range []string{"X-Embedding-Tokens", "X-Generation-Tokens"} {
		if !strings.Contains(exposed, h) {
			t.Errorf("expose-headers %q lacks %s", exposed, h)
		}
	}
}

func TestWideEvent_LogsRequest(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID, WideEvent(zap.New(core)))
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Info("inside")
		w.Header().Set("X-Embedding-Tokens", "5")
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rec.Code)
	}
	reqID := rec.Header().Get("X-Request-ID")
	if reqID == "" {
		t.Fatal("X-Request-ID not set")
	}

	inside := logs.FilterMessage("inside").All()
	if len(inside) != 1 || inside[0].ContextMap()["request_id"] != reqID {
		t.Errorf("handler log not scoped to request: %+v", inside)
	}
	lines := logs.FilterMessage("http_request").All()
	if len(lines) != 1 {
		t.Fatalf("got %d http_request lines, want 1", len(lines))
	}
	fields := lines[0].ContextMap()
	if fields["status"] != int64(http.StatusTeapot) || fields["embedding_tokens"] != "5" {
		t.Errorf("unexpected fields %v", fields)
	}
}
