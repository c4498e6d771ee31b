package chi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/logger"
	"github.com/kailas-cloud/docqa/internal/snapshot"
	healthuc "github.com/kailas-cloud/docqa/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/docqa/internal/usecase/ingest"
	usageuc "github.com/kailas-cloud/docqa/internal/usecase/usage"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest         = "bad_request"
	CodePayloadTooLarge    = "payload_too_large"
	CodeInvalidInput       = "invalid_input"
	CodeNoDocument         = "no_document_indexed"
	CodeNotFound           = "not_found"
	CodeQuotaExceeded      = "embedding_quota_exceeded"
	CodeServiceUnavailable = "service_unavailable"
	CodeGenerationFailed   = "generation_failed"
	CodeProviderError      = "provider_error"
	CodeInternal           = "internal_error"
)

// maxQueryBodyBytes bounds POST /query bodies.
const maxQueryBodyBytes = 64 << 10

// Ingester replaces the current document.
type Ingester interface {
	Ingest(ctx context.Context, text string) (ingestuc.Result, error)
}

// Asker answers questions about the current document.
type Asker interface {
	Ask(ctx context.Context, question string) ([]domain.Answer, error)
}

// HealthReporter aggregates dependency health.
type HealthReporter interface {
	Check(ctx context.Context) healthuc.Report
}

// DocumentSource exposes the published snapshot.
type DocumentSource interface {
	Current() (*snapshot.Snapshot, error)
}

// UsageReporter reports embedding token usage against the budget.
type UsageReporter interface {
	Report(ctx context.Context, period usageuc.Period) usageuc.Report
}

// ErrorResponse is the JSON body of every error.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// UploadRequest is the JSON form of POST /upload.
type UploadRequest struct {
	Text string `json:"text"`
}

// UploadResponse is returned by POST /upload.
type UploadResponse struct {
	Status     string `json:"status"`
	Chunks     int    `json:"chunks"`
	DocumentID string `json:"document_id"`
}

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	Question string `json:"question"`
}

// AnswerResponse is one element of the POST /query response.
type AnswerResponse struct {
	Question     string  `json:"question"`
	Answer       string  `json:"answer"`
	SourceClause string  `json:"source_clause"`
	Confidence   float32 `json:"confidence"`
	CitedChunkID int     `json:"cited_chunk_id"`
}

// DocumentResponse is returned by GET /document.
type DocumentResponse struct {
	DocumentID string    `json:"document_id"`
	Chunks     int       `json:"chunks"`
	Dimensions int       `json:"dimensions"`
	IndexedAt  time.Time `json:"indexed_at"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// UsageResponse is returned by GET /usage.
type UsageResponse struct {
	Period          string    `json:"period"`
	PeriodStart     time.Time `json:"period_start"`
	PeriodEnd       time.Time `json:"period_end"`
	TokensUsed      int64     `json:"tokens_used"`
	TokensLimit     int64     `json:"tokens_limit"`
	TokensRemaining int64     `json:"tokens_remaining"`
	IsExhausted     bool      `json:"is_exhausted"`
	ResetsAt        time.Time `json:"resets_at"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server serves the document QA HTTP API.
type Server struct {
	ingest        Ingester
	query         Asker
	health        HealthReporter
	documents     DocumentSource
	usage         UsageReporter
	maxBodyBytes  int64
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. maxDocumentBytes bounds upload bodies.
func NewServer(
	ingest Ingester,
	query Asker,
	health HealthReporter,
	documents DocumentSource,
	usage UsageReporter,
	maxDocumentBytes int,
	logger *zap.Logger,
) *Server {
	if maxDocumentBytes <= 0 {
		maxDocumentBytes = ingestuc.DefaultMaxDocumentBytes
	}
	s := &Server{
		ingest:    ingest,
		query:     query,
		health:    health,
		documents: documents,
		usage:     usage,
		// JSON framing and escapes on top of the raw text.
		maxBodyBytes: int64(maxDocumentBytes)*2 + 1024,
		logger:       logger,
	}
	// Order matters: a transient generation failure wraps both ErrGeneration and
	// ErrTransientService and must surface as 503.
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidInput, http.StatusBadRequest, CodeInvalidInput),
		sentinelHandler(domain.ErrEmptyInput, http.StatusBadRequest, CodeInvalidInput),
		sentinelHandler(domain.ErrNoDocumentIndexed, http.StatusPreconditionFailed, CodeNoDocument),
		sentinelHandler(domain.ErrNotIndexed, http.StatusPreconditionFailed, CodeNoDocument),
		sentinelHandler(domain.ErrDimensionMismatch, http.StatusPreconditionFailed, CodeInvalidInput),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrEmbeddingQuotaExceeded, http.StatusPaymentRequired, CodeQuotaExceeded),
		sentinelHandler(domain.ErrTransientService, http.StatusServiceUnavailable, CodeServiceUnavailable),
		sentinelHandler(domain.ErrGeneration, http.StatusBadGateway, CodeGenerationFailed),
		sentinelHandler(domain.ErrFatalService, http.StatusBadGateway, CodeProviderError),
	}
	return s
}

// Routes registers the API on r.
func (s *Server) Routes(r chi.Router) {
	r.Post("/upload", s.Upload)
	r.Post("/query", s.Query)
	r.Get("/document", s.Document)
	r.Get("/usage", s.Usage)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// Upload handles POST /upload. The body is either {"text": "..."} or raw text/plain.
func (s *Server) Upload(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "document too large")
			return
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest, "failed to read request body")
		return
	}

	text := string(body)
	if isJSON(r) {
		var req UploadRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
			return
		}
		text = req.Text
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	res, err := s.ingest.Ingest(ctx, text)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setUsageHeaders(w, usage)
	writeJSON(w, http.StatusOK, UploadResponse{
		Status:     res.Status,
		Chunks:     res.ChunkCount,
		DocumentID: res.DocumentID.String(),
	})
}

// Query handles POST /query.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBodyBytes)).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "question too large")
			return
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	answers, err := s.query.Ask(ctx, req.Question)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	resp := make([]AnswerResponse, len(answers))
	for i, a := range answers {
		resp[i] = AnswerResponse{
			Question:     a.Question,
			Answer:       a.AnswerText,
			SourceClause: a.SourceClause,
			Confidence:   a.Confidence,
			CitedChunkID: a.CitedChunkID,
		}
	}
	setUsageHeaders(w, usage)
	writeJSON(w, http.StatusOK, resp)
}

// Document handles GET /document.
func (s *Server) Document(w http.ResponseWriter, r *http.Request) {
	snap, err := s.documents.Current()
	if err != nil {
		if errors.Is(err, domain.ErrNoDocumentIndexed) {
			writeError(w, http.StatusNotFound, CodeNoDocument, domain.ErrNoDocumentIndexed.Error())
			return
		}
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentResponse{
		DocumentID: snap.DocumentID.String(),
		Chunks:     snap.Corpus.Len(),
		Dimensions: snap.Index.Dim(),
		IndexedAt:  snap.IndexedAt,
	})
}

// Usage handles GET /usage?period=day|month.
func (s *Server) Usage(w http.ResponseWriter, r *http.Request) {
	period, err := usageuc.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	rep := s.usage.Report(r.Context(), period)
	writeJSON(w, http.StatusOK, UsageResponse{
		Period:          string(rep.Period),
		PeriodStart:     rep.Start,
		PeriodEnd:       rep.End,
		TokensUsed:      rep.Used,
		TokensLimit:     rep.Limit,
		TokensRemaining: rep.Remaining,
		IsExhausted:     rep.Exhausted,
		ResetsAt:        rep.End,
	})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, HealthResponse{Status: string(report.Status), Checks: checks})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func isJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}

func setUsageHeaders(w http.ResponseWriter, usage *domain.Usage) {
	if usage == nil {
		return
	}
	if usage.Embedded {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.EmbeddingTokens))
	}
	if usage.GenerationTokens > 0 {
		w.Header().Set("X-Generation-Tokens", strconv.Itoa(usage.GenerationTokens))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// safeDomainMessage returns the matched sentinel's message without exposing internals.
// Invalid input keeps the full chain: it only describes what the caller sent.
func safeDomainMessage(err error, sentinel error) string {
	if errors.Is(sentinel, domain.ErrInvalidInput) {
		return err.Error()
	}
	return sentinel.Error()
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, safeDomainMessage(err, sentinel))
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	for _, h := range s.errorHandlers {
		if h(w, err) {
			log.Warn("domain error", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternal, "internal error")
}
