package server

import (
	"net/http"

	"github.com/cloo-solutions/supportdesk/internal/api"
	"github.com/cloo-solutions/supportdesk/internal/api/handlers"
	"github.com/cloo-solutions/supportdesk/internal/api/middleware"
	"github.com/cloo-solutions/supportdesk/internal/logger"
	"github.com/go-chi/chi/v5"
)

type RouterConfig struct {
	TokenValidator   middleware.TokenValidator
	Logger           *logger.Logger
	KnowledgeHandler *handlers.KnowledgeHandler
	CampaignHandler  *handlers.CampaignHandler
	WebhookHandler   *handlers.WebhookHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog(log))
	r.Use(middleware.SentryMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/webhook", cfg.WebhookHandler.Verify)
	r.Post("/webhook", cfg.WebhookHandler.Receive)

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.TokenValidator))

		r.With(middleware.MaxBodyBytes(handlers.MaxUploadBytes)).Post("/knowledge/upload", cfg.KnowledgeHandler.Upload)

		r.Group(func(r chi.Router) {
			r.Use(middleware.MaxBodyBytes(middleware.DefaultJSONBodyLimit))

			r.Post("/knowledge/connect", cfg.KnowledgeHandler.Connect)
			r.Post("/knowledge/search", cfg.KnowledgeHandler.Search)
			r.Delete("/knowledge", cfg.KnowledgeHandler.Clear)

			r.Post("/campaigns/send", cfg.CampaignHandler.Send)
			r.Get("/campaigns", cfg.CampaignHandler.List)
			r.Get("/campaigns/{id}", cfg.CampaignHandler.Get)

			r.Get("/dashboard/stats", cfg.CampaignHandler.DashboardStats)
		})
	})

	return r
}
