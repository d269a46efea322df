package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/amiskov/authgate/pkg/logger"
)

const requestIDHeader = "X-Request-ID"

type ctxKey string

const requestIDKey ctxKey = "requestID"

type IRequestObserver interface {
	ObserveRequest(method, route string, status int, duration time.Duration)
}

type Logging struct {
	log      *zap.SugaredLogger
	observer IRequestObserver
}

func NewLoggingMiddleware(l *zap.SugaredLogger, observer IRequestObserver) *Logging {
	return &Logging{log: l, observer: observer}
}

// SetupTracing gives every request an id, reusing the one sent by a proxy.
func (l *Logging) SetupTracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)
		ctx := contextWithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (l *Logging) SetupLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqLog := l.log.With(
			zap.String("request_id", RequestID(r.Context())),
		)
		ctx := logger.ContextWithLogger(r.Context(), reqLog)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (l *Logging) AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(recorder, r)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		logger.Log(r.Context()).Infow("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"remote_addr", r.RemoteAddr,
			"duration", elapsed,
		)
		if l.observer != nil {
			l.observer.ObserveRequest(r.Method, routeOf(r), status, elapsed)
		}
	})
}

// routeOf keeps the metrics label set bounded to registered routes.
func routeOf(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

// Flush keeps server-sent event streams working behind the recorder.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
