package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/flowcanvas/am"
	"github.com/teranos/flowcanvas/db"
	"github.com/teranos/flowcanvas/errors"
	"github.com/teranos/flowcanvas/logger"
)

// RequestIDHeader carries the id assigned to each API request
const RequestIDHeader = "X-Request-ID"

// requestWriter records what a handler answered so the request can be
// logged once it completes
type requestWriter struct {
	http.ResponseWriter
	status int
	err    error
}

func (rw *requestWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

// writeJSON writes a JSON response with the given status code
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warnw("Failed to encode response", logger.FieldError, err)
	}
}

// writeError writes a JSON error response. Hints attached to err are sent
// alongside the message.
func (s *Server) writeError(w http.ResponseWriter, err error, status int) {
	body := map[string]interface{}{"error": err.Error()}
	if hints := errors.GetAllHints(err); len(hints) > 0 {
		body["hints"] = hints
	}
	if rw, ok := w.(*requestWriter); ok {
		rw.err = err
	} else if status >= http.StatusInternalServerError {
		s.logger.Errorw("Request failed", logger.FieldError, err, "status", status)
	}
	s.writeJSON(w, status, body)
}

// writeErr maps domain sentinels to status codes
func (s *Server) writeErr(w http.ResponseWriter, err error) {
	s.writeError(w, err, errorStatus(err))
}

func errorStatus(err error) int {
	switch {
	case errors.IsNotFoundError(err):
		return http.StatusNotFound
	case errors.IsInvalidRequestError(err):
		return http.StatusBadRequest
	case errors.IsRejected(err), errors.Is(err, errors.ErrConflict):
		return http.StatusConflict
	case db.IsDatabaseClosed(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// readJSON decodes a JSON request body; an empty body leaves v untouched
func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, errors.Wrap(err, "invalid request body"), http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) methodNotAllowed(w http.ResponseWriter) {
	s.writeError(w, errors.New("method not allowed"), http.StatusMethodNotAllowed)
}

// pathID returns what follows prefix in the request path
func pathID(r *http.Request, prefix string) string {
	return strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
}

// checkOrigin validates a WebSocket or CORS origin against the configured
// allowed origins. Prefix matching allows any port.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.allowedOrigins() {
		if strings.HasPrefix(origin, allowed) {
			return true
		}
	}
	return false
}

func (s *Server) allowedOrigins() []string {
	if s.cfg == nil {
		return (&am.Config{}).GetServerAllowedOrigins()
	}
	return s.cfg.GetServerAllowedOrigins()
}

// requestLogger returns the server logger tagged with the request id
func (s *Server) requestLogger(r *http.Request) *zap.SugaredLogger {
	return logger.LoggerFromContext(r.Context(), s.logger)
}

// logRequest reports a finished request. Failures caused by the database
// closing during shutdown are expected and stay at debug level.
func (s *Server) logRequest(r *http.Request, rw *requestWriter, elapsed time.Duration) {
	log := s.requestLogger(r)
	kv := []interface{}{
		logger.FieldMethod, r.Method,
		logger.FieldPath, r.URL.Path,
		"status", rw.status,
		logger.FieldDurationMS, elapsed.Milliseconds(),
	}
	if rw.err != nil {
		kv = append(kv, logger.FieldError, rw.err.Error())
	}
	switch {
	case db.IsDatabaseClosed(rw.err):
		log.Debugw("Request hit closed database", kv...)
	case rw.status >= http.StatusInternalServerError:
		log.Errorw("Request failed", kv...)
	default:
		log.Debugw("Request handled", kv...)
	}
}

// cors tags the request with an id, adds CORS headers for allowed origins
// and answers preflight requests
func (s *Server) cors(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		ctx := logger.WithRequestID(r.Context(), requestID)
		r = r.WithContext(logger.WithComponent(ctx, "http"))
		w.Header().Set(RequestIDHeader, requestID)

		origin := r.Header.Get("Origin")
		if origin != "" && s.checkOrigin(r) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		rw := &requestWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next(rw, r)
		s.logRequest(r, rw, time.Since(start))
	}
}
