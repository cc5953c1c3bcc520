package rest

import (
	"context"
	"net/http"
	"time"

	"pawedaran/internal/domain"
	"pawedaran/internal/repository"
	"pawedaran/internal/service"
	"pawedaran/internal/transport/auth"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
)

type PromoAPI interface {
	Evaluate(ctx context.Context, code string, subtotal decimal.Decimal) (service.EvaluationResult, error)
	Create(ctx context.Context, in service.PromoInput, requester domain.Requester) (*domain.Promo, error)
	Update(ctx context.Context, id string, in service.PromoInput, requester domain.Requester) (*domain.Promo, error)
	Delete(ctx context.Context, id string, requester domain.Requester) error
	Get(ctx context.Context, id string, requester domain.Requester) (*domain.Promo, error)
	List(ctx context.Context, f repository.PromosFilter, requester domain.Requester) ([]domain.Promo, error)
	Redeem(ctx context.Context, code string, requester domain.Requester) (*domain.Promo, error)
}

type DebtAPI interface {
	ApplyPayment(ctx context.Context, in service.PaymentInput, requester domain.Requester) (*service.PaymentResult, error)
	GetDebt(ctx context.Context, id string, requester domain.Requester) (*domain.Debt, error)
	ListDebts(ctx context.Context, requester domain.Requester) ([]domain.Debt, error)
	ListPayments(ctx context.Context, debtID string, requester domain.Requester) ([]domain.DebtPayment, error)
	StartLedgerExport(ctx context.Context, debtID string, requester domain.Requester) (string, error)
}

type ExportAPI interface {
	List(ctx context.Context, requester domain.Requester) ([]service.ExportStatus, error)
	Get(ctx context.Context, exportID string, requester domain.Requester) (*service.ExportStatus, error)
}

type WebSocketHub interface {
	HandleWebSocket(w http.ResponseWriter, r *http.Request, requester domain.Requester)
}

type Handler struct {
	promos  PromoAPI
	debts   DebtAPI
	exports ExportAPI
	proofs  service.FileStorage
	hub     WebSocketHub
}

// NewHandler wires the HTTP surface. proofs and hub may be nil, which disables proof
// uploads and the websocket endpoint.
func NewHandler(promos PromoAPI, debts DebtAPI, exports ExportAPI, proofs service.FileStorage, hub WebSocketHub) *Handler {
	return &Handler{
		promos:  promos,
		debts:   debts,
		exports: exports,
		proofs:  proofs,
		hub:     hub,
	}
}

func (h *Handler) InitRouter() *chi.Mux {
	return h.InitRouterWithAuth(nil)
}

// InitRouterWithAuth protects every route except /health with authMiddleware.
func (h *Handler) InitRouterWithAuth(authMiddleware func(http.Handler) http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
	)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		Success(w, "ok", nil)
	})

	r.Group(func(r chi.Router) {
		if authMiddleware != nil {
			r.Use(authMiddleware)
		}

		if h.hub != nil {
			r.Get("/ws", h.serveWebSocket)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Route("/promos", func(r chi.Router) {
				r.Post("/evaluate", h.evaluatePromo)
				r.Get("/", h.listPromos)
				r.Post("/", h.createPromo)
				// {id} doubles as the promo code here; chi needs one param name per segment
				r.Post("/{id}/redeem", h.redeemPromo)
				r.Get("/{id}", h.getPromo)
				r.Put("/{id}", h.updatePromo)
				r.Delete("/{id}", h.deletePromo)
			})

			r.Route("/debts", func(r chi.Router) {
				r.Get("/", h.listDebts)
				r.Get("/{id}", h.getDebt)
				r.Get("/{id}/payments", h.listPayments)
				r.Post("/{id}/payments", h.applyPayment)
				r.Post("/{id}/payments/export", h.exportPayments)
			})

			r.Post("/uploads/payment-proof", h.uploadProof)

			r.Route("/exports", func(r chi.Router) {
				r.Get("/", h.listExports)
				r.Get("/{export_id}", h.getExport)
			})
		})
	})

	return r
}

func requesterFrom(w http.ResponseWriter, r *http.Request) (domain.Requester, bool) {
	requester, err := auth.GetRequester(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return domain.Requester{}, false
	}
	return requester, true
}

func (h *Handler) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	requester, ok := requesterFrom(w, r)
	if !ok {
		return
	}
	h.hub.HandleWebSocket(w, r, requester)
}
