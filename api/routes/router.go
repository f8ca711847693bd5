package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fabzclean/fabzclean-backend/api/controllers"
	auditcontrollers "github.com/fabzclean/fabzclean-backend/api/controllers/audit"
	creditcontrollers "github.com/fabzclean/fabzclean-backend/api/controllers/credits"
	ordercontrollers "github.com/fabzclean/fabzclean-backend/api/controllers/orders"
	"github.com/fabzclean/fabzclean-backend/api/middleware"
	"github.com/fabzclean/fabzclean-backend/internal/audit"
	"github.com/fabzclean/fabzclean-backend/internal/credits"
	"github.com/fabzclean/fabzclean-backend/internal/orders"
	"github.com/fabzclean/fabzclean-backend/pkg/config"
	"github.com/fabzclean/fabzclean-backend/pkg/db"
	"github.com/fabzclean/fabzclean-backend/pkg/enums"
	"github.com/fabzclean/fabzclean-backend/pkg/logger"
	"github.com/fabzclean/fabzclean-backend/pkg/redis"
)

// redisClient is the slice of the redis client the router needs: readiness
// pings and the idempotency store.
type redisClient interface {
	redis.Pinger
	redis.IdempotencyStore
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient redisClient,
	metricsHandler http.Handler,
	creditsService credits.Service,
	ordersService orders.Service,
	auditService audit.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Recoverer(logg),
		middleware.Logging(logg),
		middleware.SecurityHeaders(cfg.App.IsProd()),
		middleware.CORS(cfg.HTTP.AllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    dbP,
			"redis": redisClient,
		}))
	})
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RateLimit(cfg.HTTP.RateLimit, cfg.HTTP.RateLimitWindow, logg))
		r.Use(middleware.Idempotency(redisClient, cfg.HTTP.IdempotencyTTL, logg))

		managerOnly := middleware.RequireRole(enums.RoleFranchiseManager, logg)
		adminOnly := middleware.RequireRole(enums.RoleAdmin, logg)

		r.Route("/credits", func(r chi.Router) {
			r.With(managerOnly).Get("/report/outstanding", creditcontrollers.Outstanding(creditsService, logg))

			r.Route("/{customerId}", func(r chi.Router) {
				r.Get("/", creditcontrollers.Summary(creditsService, logg))

				r.Group(func(r chi.Router) {
					r.Use(managerOnly)
					r.Get("/transactions", creditcontrollers.History(creditsService, logg))
					r.Post("/add", creditcontrollers.IssueCredit(creditsService, logg))
					r.Post("/payment", creditcontrollers.RecordPayment(creditsService, logg))
					r.Post("/refund", creditcontrollers.Refund(creditsService, logg))
					r.Post("/wallet/topup", creditcontrollers.TopUpWallet(creditsService, logg))
				})

				r.Group(func(r chi.Router) {
					r.Use(adminOnly)
					r.Post("/adjust", creditcontrollers.Adjust(creditsService, logg))
					r.Get("/reconcile", creditcontrollers.Reconcile(creditsService, logg))
				})
			})
		})

		r.Route("/orders/{orderId}", func(r chi.Router) {
			r.Get("/payment", ordercontrollers.PaymentSummary(ordersService, logg))
			r.With(managerOnly).Patch("/settle", ordercontrollers.Settle(ordersService, logg))
			r.With(managerOnly).Patch("/status", ordercontrollers.UpdateStatus(ordersService, logg))
		})

		r.With(managerOnly).Get("/audit/logs", auditcontrollers.List(auditService, logg))
	})

	return r
}
