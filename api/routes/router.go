package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/campuseats/settlement-backend/api/controllers"
	"github.com/campuseats/settlement-backend/api/middleware"
	"github.com/campuseats/settlement-backend/internal/notifications"
	"github.com/campuseats/settlement-backend/internal/orders"
	"github.com/campuseats/settlement-backend/internal/payments"
	"github.com/campuseats/settlement-backend/pkg/config"
	"github.com/campuseats/settlement-backend/pkg/db"
	"github.com/campuseats/settlement-backend/pkg/logger"
	"github.com/campuseats/settlement-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	ordersService orders.Service,
	paymentsService payments.Service,
	notificationsService notifications.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Gateway verification callbacks authenticate out of band, not with user
	// tokens.
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payments/verify", controllers.VerifyPayment(paymentsService, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/payments", func(r chi.Router) {
			r.Post("/", controllers.InitiatePayment(paymentsService, logg))
			r.Get("/{paymentId}", controllers.GetPayment(paymentsService, logg))
			r.Post("/{paymentId}/retry", controllers.RetryPayment(paymentsService, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.CreateOrder(ordersService, logg))
			r.Get("/{orderId}", controllers.GetOrder(ordersService, logg))
			r.Post("/{orderId}/status", controllers.UpdateOrderStatus(ordersService, logg))
			r.Post("/{orderId}/cancel", controllers.CancelOrder(ordersService, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(notificationsService, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(notificationsService, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(notificationsService, logg))
		})
	})

	return r
}
