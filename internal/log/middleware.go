package log

import (
	"context"
	"log/slog"
	"net/http"
)

// RequestLogger logs the start and end of HTTP requests
type RequestLogger struct {
	logger *Logger
}

func NewRequestLogger(logger *Logger) *RequestLogger {
	if logger == nil {
		logger = FromContext(context.Background())
	}
	return &RequestLogger{logger: logger.WithComponent(ComponentHTTP)}
}

// Begin returns a context carrying a logger bound to requestID and logs
// the start of the request.
func (rl *RequestLogger) Begin(ctx context.Context, r *http.Request, requestID, clientIP string) context.Context {
	l := rl.logger.With(FieldRequestID, requestID)
	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent")).
		WithClientIP(clientIP)
	l.DebugContext(ctx, "HTTP request started", fields.ToSlice()...)
	return IntoContext(ctx, l)
}

// End logs completion at a level matching the status code
func (rl *RequestLogger) End(ctx context.Context, r *http.Request, statusCode int, durationMs int64, clientIP string) {
	level := slog.LevelInfo
	switch {
	case statusCode >= 500:
		level = slog.LevelError
	case statusCode >= 400:
		level = slog.LevelWarn
	}
	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, "", "").
		WithHTTPResponse(statusCode, durationMs).
		WithClientIP(clientIP)
	FromContext(ctx).Log(ctx, level, "HTTP request completed", fields.ToSlice()...)
}

// LogPaymentChange records a successful ledger mutation
func LogPaymentChange(ctx context.Context, op, store string, serial int, customer string, amountCents int64) {
	fields := NewFields().
		WithOperation(op).
		WithPayment(store, serial, customer, amountCents)
	FromContext(ctx).InfoContext(ctx, "Payment ledger changed", fields.ToSlice()...)
}

// LogOperationError records a failed ledger operation with its category
func LogOperationError(ctx context.Context, op, errorType string, err error) {
	fields := NewFields().WithOperation(op).WithError(err)
	fields[FieldErrorType] = errorType
	level := slog.LevelWarn
	if errorType == ErrorTypePersistence || errorType == ErrorTypeInternal {
		level = slog.LevelError
	}
	FromContext(ctx).Log(ctx, level, "Payment operation failed", fields.ToSlice()...)
}
