// Package http exposes the payment ledger as a JSON API.
package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"payments/internal/cache"
	"payments/internal/core"
	"payments/internal/ledger"
	"payments/internal/log"
	"payments/internal/services"
)

// Config holds server settings. Zero values select defaults.
type Config struct {
	Addr         string
	PageSize     int
	Identity     ledger.Identity
	RateLimit    int // mutating requests per client per minute
	CacheTTL     time.Duration
	CacheEntries int
	Clock        func() time.Time
	Logger       *log.Logger
}

type Server struct {
	http.Server
	service       *services.PaymentService
	cfg           Config
	rateLimiter   *rateLimiter
	metrics       *securityMetrics
	requestLogger *log.RequestLogger

	customerCache *cache.LRUCache[[]core.CustomerTotal]
	methodCache   *cache.LRUCache[[]core.MethodTotal]
	summaryCache  *cache.LRUCache[core.Summary]
	cacheManager  *cache.Manager

	shutdownOnce sync.Once
}

// NewServer configures routes, returning a ready-to-run http.Server.
func NewServer(cfg Config, service *services.PaymentService) *Server {
	if cfg.PageSize < 1 {
		cfg.PageSize = ledger.DefaultPageSize
	}
	if cfg.RateLimit < 1 {
		cfg.RateLimit = 60
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.CacheEntries < 1 {
		cfg.CacheEntries = 64
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              cfg.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		service:       service,
		cfg:           cfg,
		rateLimiter:   newRateLimiter(cfg.RateLimit, time.Minute),
		metrics:       &securityMetrics{},
		requestLogger: log.NewRequestLogger(cfg.Logger),
		customerCache: cache.NewLRUCache[[]core.CustomerTotal](cfg.CacheEntries, cfg.CacheTTL),
		methodCache:   cache.NewLRUCache[[]core.MethodTotal](cfg.CacheEntries, cfg.CacheTTL),
		summaryCache:  cache.NewLRUCache[core.Summary](cfg.CacheEntries, cfg.CacheTTL),
		cacheManager:  cache.NewManager(),
	}
	s.cacheManager.Register(s.customerCache)
	s.cacheManager.Register(s.methodCache)
	s.cacheManager.Register(s.summaryCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /payments", s.wrap(s.handleCreate))
	mux.HandleFunc("GET /payments", s.wrap(s.handleList(ledger.Payments)))
	mux.HandleFunc("GET /payments/{key}", s.wrap(s.handleGet(ledger.Payments)))
	mux.HandleFunc("PUT /payments/{key}", s.wrap(s.handleUpdate))
	mux.HandleFunc("PATCH /payments/{key}/transfer", s.wrap(s.handleTransferStatus))
	mux.HandleFunc("DELETE /payments/{key}", s.wrap(s.handleDelete))
	mux.HandleFunc("POST /payments/{key}/bad-debt", s.wrap(s.handleBadDebt))

	mux.HandleFunc("GET /bad-debts", s.wrap(s.handleList(ledger.BadDebts)))
	mux.HandleFunc("GET /bad-debts/{key}", s.wrap(s.handleGet(ledger.BadDebts)))

	mux.HandleFunc("GET /reports/customers", s.wrap(s.handleCustomerReport))
	mux.HandleFunc("GET /reports/methods", s.wrap(s.handleMethodReport))
	mux.HandleFunc("GET /reports/summary", s.wrap(s.handleSummary))

	mux.HandleFunc("POST /admin/flush", s.wrap(s.handleFlush))

	return s
}

// Shutdown stops background cleanup and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// wrap adds request ids, request logging, rate limiting on mutating
// methods and security headers.
func (s *Server) wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)
		requestID := generateRequestID()

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		ctx = s.requestLogger.Begin(ctx, r, requestID, clientIP)
		r = r.WithContext(ctx)

		if detectSuspiciousRequest(r, s.metrics) {
			log.FromContext(ctx).WithComponent(log.ComponentSecurity).WarnContext(ctx, "Suspicious request",
				log.FieldClientIP, clientIP,
				log.FieldPath, r.URL.Path,
				log.FieldUserAgent, r.Header.Get("User-Agent"))
		}

		setSecurityHeaders(w.Header())
		w.Header().Set("X-Request-ID", requestID)
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		if r.Method != http.MethodGet && r.Method != http.MethodHead && !s.rateLimiter.allow(clientIP, s.metrics) {
			log.FromContext(ctx).WithComponent(log.ComponentRateLimit).WarnContext(ctx, "Rate limit exceeded",
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path)
			NewResponse().Status(http.StatusTooManyRequests).Header("Retry-After", "60").
				Body(errorJSON{Error: "rate limit exceeded", Kind: "rate_limited", RequestID: requestID}).Send(rw)
		} else {
			next(rw, r)
		}

		s.requestLogger.End(ctx, r, rw.statusCode, time.Since(start).Milliseconds(), clientIP)
	}
}

// responseWriter captures the status code for logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) ledger() *ledger.Ledger { return s.service.Ledger() }

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	in, err := s.readInput(r)
	if err != nil {
		ErrorResponse(r, log.OpCreate, err, nil).Send(w)
		return
	}
	rec, err := s.service.Create(r.Context(), in)
	s.respondChange(w, r, log.OpCreate, ledger.Payments, http.StatusCreated, rec, err)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	key, err := parseKey(r, s.cfg.Identity)
	if err != nil {
		ErrorResponse(r, log.OpUpdate, err, nil).Send(w)
		return
	}
	in, err := s.readInput(r)
	if err != nil {
		ErrorResponse(r, log.OpUpdate, err, nil).Send(w)
		return
	}
	rec, err := s.service.Update(r.Context(), key, in)
	s.respondChange(w, r, log.OpUpdate, ledger.Payments, http.StatusOK, rec, err)
}

func (s *Server) handleTransferStatus(w http.ResponseWriter, r *http.Request) {
	key, err := parseKey(r, s.cfg.Identity)
	if err != nil {
		ErrorResponse(r, log.OpTransferStatus, err, nil).Send(w)
		return
	}
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		ErrorResponse(r, log.OpTransferStatus, invalid("malformed body: %v", err), nil).Send(w)
		return
	}
	if !p.Has("transferred_to_bank") {
		ErrorResponse(r, log.OpTransferStatus, invalid("transferred_to_bank is required"), nil).Send(w)
		return
	}
	transferred, err := parseBool(p.Get("transferred_to_bank"))
	if err != nil {
		ErrorResponse(r, log.OpTransferStatus, err, nil).Send(w)
		return
	}
	rec, err := s.service.SetTransferStatus(r.Context(), key, transferred)
	s.respondChange(w, r, log.OpTransferStatus, ledger.Payments, http.StatusOK, rec, err)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key, err := parseKey(r, s.cfg.Identity)
	if err != nil {
		ErrorResponse(r, log.OpDelete, err, nil).Send(w)
		return
	}
	rec, err := s.service.Delete(r.Context(), key)
	s.respondChange(w, r, log.OpDelete, ledger.Payments, http.StatusOK, rec, err)
}

func (s *Server) handleBadDebt(w http.ResponseWriter, r *http.Request) {
	key, err := parseKey(r, s.cfg.Identity)
	if err != nil {
		ErrorResponse(r, log.OpBadDebt, err, nil).Send(w)
		return
	}
	rec, err := s.service.TransferToBadDebt(r.Context(), key)
	s.respondChange(w, r, log.OpBadDebt, ledger.BadDebts, http.StatusOK, rec, err)
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Flush(r.Context()); err != nil {
		ErrorResponse(r, log.OpFlush, err, nil).Send(w)
		return
	}
	NewResponse().Body(map[string]any{"dirty": false, "revision": s.ledger().Revision()}).Send(w)
}

func (s *Server) readInput(r *http.Request) (core.PaymentInput, error) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		return core.PaymentInput{}, invalid("malformed body: %v", err)
	}
	return parsePaymentInput(p, s.cfg.Clock())
}

// respondChange reports the outcome of a mutation. A persistence failure
// is logged and answered with 503 alongside the record as applied.
func (s *Server) respondChange(w http.ResponseWriter, r *http.Request, op string, kind ledger.Kind, status int, rec core.PaymentRecord, err error) {
	if err != nil {
		ErrorResponse(r, op, err, &rec).Send(w)
		return
	}
	log.LogPaymentChange(r.Context(), op, string(kind), rec.SerialNumber, rec.CustomerName, rec.Amount.Cents)
	NewResponse().Status(status).Body(toPaymentJSON(rec)).Send(w)
}

func (s *Server) handleList(kind ledger.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := parseQuery(r.URL.Query(), s.cfg.PageSize)
		if err != nil {
			ErrorResponse(r, log.OpList, err, nil).Send(w)
			return
		}
		NewResponse().Body(toPageJSON(kind, s.ledger().Query(kind, q))).Send(w)
	}
}

func (s *Server) handleGet(kind ledger.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := parseKey(r, s.cfg.Identity)
		if err != nil {
			ErrorResponse(r, log.OpList, err, nil).Send(w)
			return
		}
		rec, err := s.ledger().Get(kind, key)
		if err != nil {
			ErrorResponse(r, log.OpList, err, nil).Send(w)
			return
		}
		NewResponse().Body(toPaymentJSON(rec)).Send(w)
	}
}

// reportKind reads the ?store= parameter and the cache key for it. Keys
// change with every ledger revision and with the date, since days and the
// overdue count depend on it.
func (s *Server) reportKind(r *http.Request) (ledger.Kind, string, error) {
	kind, err := ledger.ParseKind(r.URL.Query().Get("store"))
	if err != nil {
		return "", "", err
	}
	key := fmt.Sprintf("%s:%d:%s", kind, s.ledger().Revision(), core.DateOf(s.cfg.Clock()))
	return kind, key, nil
}

func (s *Server) handleCustomerReport(w http.ResponseWriter, r *http.Request) {
	kind, key, err := s.reportKind(r)
	if err != nil {
		ErrorResponse(r, log.OpReport, err, nil).Send(w)
		return
	}
	totals, _ := s.customerCache.GetOrLoad(key, func() ([]core.CustomerTotal, error) {
		return s.ledger().CustomerReport(kind), nil
	})
	NewResponse().Body(map[string]any{"store": kind, "customers": toCustomerTotalsJSON(totals)}).Send(w)
}

func (s *Server) handleMethodReport(w http.ResponseWriter, r *http.Request) {
	kind, key, err := s.reportKind(r)
	if err != nil {
		ErrorResponse(r, log.OpReport, err, nil).Send(w)
		return
	}
	totals, _ := s.methodCache.GetOrLoad(key, func() ([]core.MethodTotal, error) {
		return s.ledger().MethodReport(kind), nil
	})
	NewResponse().Body(map[string]any{"store": kind, "methods": toMethodTotalsJSON(totals)}).Send(w)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	kind, key, err := s.reportKind(r)
	if err != nil {
		ErrorResponse(r, log.OpReport, err, nil).Send(w)
		return
	}
	sum, _ := s.summaryCache.GetOrLoad(key, func() (core.Summary, error) {
		return s.ledger().Summary(kind), nil
	})
	NewResponse().Body(toSummaryJSON(kind, sum)).Send(w)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady reports whether all changes are saved. Pending writes are
// reported but do not fail the probe; they are retried in the background.
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	dirty := s.ledger().Dirty()
	state := "ready"
	if dirty {
		state = "pending_writes"
	}
	NewResponse().Body(map[string]any{
		"status":              state,
		"dirty":               dirty,
		"revision":            s.ledger().Revision(),
		"rate_limit_hits":     atomic.LoadInt64(&s.metrics.rateLimitHits),
		"suspicious_requests": atomic.LoadInt64(&s.metrics.suspiciousRequests),
	}).Send(w)
}
