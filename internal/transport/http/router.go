// Package httptransport is the thin HTTP edge. Handlers delegate to the
// exchange, verification, and wallet services without embedding business
// logic, so the transport can stay boring.
package httptransport

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rxchange/internal/exchange"
	"rxchange/internal/platform/health"
	"rxchange/internal/platform/metrics"
	"rxchange/internal/platform/middleware"
	"rxchange/internal/verify"
	"rxchange/internal/wallet"
	"rxchange/pkg/platform/clock"
)

// Handler bundles the domain services behind the HTTP surface.
type Handler struct {
	issuer *exchange.IssuerService
	holder *exchange.HolderService
	wallet *wallet.Service
	logger *slog.Logger

	// pending holds verification reports between scan and decision, keyed by
	// credential ID. A pharmacy terminal scans, reviews, then decides; the
	// report must survive across those two requests.
	mu      sync.Mutex
	pending map[string]*verify.Report
}

// NewHandler wires the HTTP surface over the domain services.
func NewHandler(issuer *exchange.IssuerService, holder *exchange.HolderService, w *wallet.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		issuer:  issuer,
		holder:  holder,
		wallet:  w,
		logger:  logger,
		pending: make(map[string]*verify.Report),
	}
}

// NewRouter wires all endpoints with the middleware stack. httpMetrics and
// healthHandler may be nil, which skips the corresponding wiring; metric
// registration is process-global, so tests pass nil.
func NewRouter(h *Handler, logger *slog.Logger, httpMetrics *metrics.HTTP, healthHandler *health.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(clock.Middleware)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.ContentTypeJSON)
	if httpMetrics != nil {
		r.Use(httpMetrics.Middleware)
	}

	if healthHandler != nil {
		healthHandler.Register(r)
	}
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Issuer side: offer lifecycle.
		r.Post("/offers", h.handleCreateOffer)
		r.Get("/offers", h.handleListOffers)
		r.Get("/offers/{offerID}", h.handleGetOffer)
		r.Post("/offers/{offerID}/sign", h.handleSignOffer)
		r.Post("/offers/{offerID}/qr", h.handleGenerateQR)
		r.Post("/offers/{offerID}/given", h.handleMarkGiven)

		// Holder side: scan, verify, decide.
		r.Post("/scan", h.handleScan)
		r.Post("/verify", h.handleVerify)
		r.Post("/decisions", h.handleDecide)

		// Wallet queries and dispensing.
		r.Get("/wallet", h.handleListWallet)
		r.Get("/wallet/{credentialID}", h.handleGetWalletEntry)
		r.Get("/wallet/{credentialID}/repeat-eligibility", h.handleRepeatEligibility)
		r.Post("/wallet/{credentialID}/dispenses", h.handleRecordDispense)
	})

	return r
}

func (h *Handler) storePending(report *verify.Report) {
	if report == nil || report.CredentialID == "" {
		return
	}
	h.mu.Lock()
	h.pending[report.CredentialID] = report
	h.mu.Unlock()
}

func (h *Handler) takePending(credentialID string) (*verify.Report, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	report, ok := h.pending[credentialID]
	if ok {
		delete(h.pending, credentialID)
	}
	return report, ok
}
