package server

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/google/uuid"

	"github.com/onnwee/max-bridge/credentials"
	"github.com/onnwee/max-bridge/telemetry"
)

const successPage = `<!DOCTYPE html>
<html>
    <head><meta charset="utf-8"><title>Max Bridge</title></head>
    <body>
        <h1>Успех!</h1>
        <p>Токен сохранен. Вы можете закрыть эту страницу и запустить бота.</p>
    </body>
</html>
`

// Handler returns the capture routes wrapped with correlation and tracing.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /save", s.handleSave)
	return withCorrelation(mux)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := os.ReadFile(s.PagePath)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Warn("auth landing page unreadable", slog.String("path", s.PagePath), slog.Any("err", err))
		http.Error(w, "landing page unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cred := credentials.Credential{Token: q.Get("token"), UserID: q.Get("user_id")}
	if !cred.Valid() {
		telemetry.IncRejectedCallback()
		http.Error(w, "Не указаны token или user_id", http.StatusBadRequest)
		return
	}
	if !s.captured.CompareAndSwap(false, true) {
		http.Error(w, "authorization already completed", http.StatusConflict)
		return
	}
	if err := s.Store.Save(cred); err != nil {
		s.captured.Store(false)
		telemetry.LoggerWithCorr(r.Context()).Error("failed to persist credential", slog.Any("err", err))
		http.Error(w, "failed to save credential", http.StatusInternalServerError)
		return
	}
	telemetry.IncAuthCapture()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(successPage))
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	s.requestStop()
}

// withCorrelation tags each request with a correlation id and a span.
// It deliberately logs nothing per request.
func withCorrelation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartHTTPSpan(ctx, r)
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))
		telemetry.EndHTTPSpan(span, rec.statusCode)
	})
}

// statusRecorder wraps ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Flush implements http.Flusher if the underlying ResponseWriter supports it
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
