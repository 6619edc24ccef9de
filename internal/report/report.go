// Package report is the diagnostic sink of the catalog pipeline. Callers
// report against a scope (PRODUCT_LOAD, CSV_PARSE, ...) and never see errors
// themselves; what happens to a report is up to the Reporter.
package report

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	ScopeProductLoad = "PRODUCT_LOAD"
	ScopeImageLoad   = "IMAGE_LOAD"
	ScopeNetwork     = "NETWORK_ERROR"
	ScopeCSVParse    = "CSV_PARSE"
	ScopeUnknown     = "UNKNOWN"
)

const (
	defaultErrorBurst = 10
	defaultErrorEvery = 6 * time.Second
)

type Reporter interface {
	Error(scope string, err error, fields ...zap.Field)
	Warn(scope, msg string, fields ...zap.Field)
	Info(scope, msg string, fields ...zap.Field)
}

var userMessages = map[string]string{
	ScopeProductLoad: "Failed to load products. Please wait a moment and try again.",
	ScopeImageLoad:   "Failed to load the image.",
	ScopeNetwork:     "A network error occurred. Please check your connection.",
	ScopeCSVParse:    "Failed to read the product data.",
	ScopeUnknown:     "An unexpected error occurred.",
}

// UserMessage returns shopper-facing text for a scope.
func UserMessage(scope string) string {
	if m, ok := userMessages[scope]; ok {
		return m
	}
	return userMessages[ScopeUnknown]
}

// Handler writes reports to a zap logger. Warn and Info are only emitted in
// debug mode. Errors are always emitted, but throttled so a failing feed
// cannot flood the log; suppressed errors are counted and summarised on the
// next error that gets through.
type Handler struct {
	log   *zap.Logger
	debug bool

	mu         sync.Mutex
	limiter    *rate.Limiter
	suppressed int
}

func NewHandler(log *zap.Logger, debug bool) *Handler {
	return &Handler{
		log:     log,
		debug:   debug,
		limiter: newLimiter(),
	}
}

func newLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(defaultErrorEvery), defaultErrorBurst)
}

func (h *Handler) Error(scope string, err error, fields ...zap.Field) {
	h.mu.Lock()
	if !h.limiter.Allow() {
		h.suppressed++
		h.mu.Unlock()
		return
	}
	suppressed := h.suppressed
	h.suppressed = 0
	h.mu.Unlock()

	fields = append(fields, zap.String("scope", scope), zap.Error(err))
	if suppressed > 0 {
		fields = append(fields, zap.Int("suppressed", suppressed))
	}
	h.log.Error(scope, fields...)
}

func (h *Handler) Warn(scope, msg string, fields ...zap.Field) {
	if !h.debug {
		return
	}
	h.log.Warn(msg, append(fields, zap.String("scope", scope))...)
}

func (h *Handler) Info(scope, msg string, fields ...zap.Field) {
	if !h.debug {
		return
	}
	h.log.Info(msg, append(fields, zap.String("scope", scope))...)
}

// TooManyErrors reports whether errors are currently being dropped.
func (h *Handler) TooManyErrors() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.suppressed > 0
}

func (h *Handler) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.limiter = newLimiter()
	h.suppressed = 0
}

type nop struct{}

func (nop) Error(string, error, ...zap.Field) {}
func (nop) Warn(string, string, ...zap.Field) {}
func (nop) Info(string, string, ...zap.Field) {}

// Nop discards every report.
func Nop() Reporter { return nop{} }
