package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func Router(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("delivery-tracker"))
	})

	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/health", h.Health)

		v1.Get("/scheduler/status", h.SchedulerStatus)
		v1.Post("/scheduler/start", h.SchedulerStart)
		v1.Post("/scheduler/stop", h.SchedulerStop)

		v1.Post("/conversations/{conversationID}/messages", h.SendMessage)
		v1.Get("/conversations/{conversationID}/messages", h.ListMessages)
		v1.Get("/messages/{messageID}/delivery", h.GetDelivery)
		v1.Get("/delivery/stats", h.DeliveryStats)

		v1.Post("/webhooks/delivery-status", h.DeliveryWebhook)
	})

	return r
}
