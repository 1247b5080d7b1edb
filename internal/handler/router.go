package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/kelevkef/kelevkef-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса KelevKef.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		// Публичные маршруты: страница поиска исполнителей и просмотр анкет.
		r.Get("/get-executors", h.GetExecutors)
		r.Get("/get-profile", h.GetProfile)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/create-order", h.CreateOrder)
			r.Put("/update-order-status", h.UpdateOrderStatus)
			r.Put("/update-order-rating", h.UpdateOrderRating)
			r.Get("/get-client-orders", h.GetClientOrders)
			r.Get("/get-executor-orders", h.GetExecutorOrders)

			r.Get("/client/spending", h.GetClientSpending)
			r.Get("/executor/earnings", h.GetExecutorEarnings)

			r.Get("/get-chat-messages", h.GetChatMessages)
			r.Post("/post-chat-message", h.PostChatMessage)

			r.Post("/create-profile", h.SaveProfile)
			r.Put("/update-profile", h.SaveProfile)

			r.Post("/create-pet", h.CreatePet)
			r.Get("/get-pets", h.GetPets)
			r.Put("/update-pet", h.UpdatePet)
			r.Delete("/delete-pet", h.DeletePet)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Страница не найдена")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Метод не поддерживается")
	})

	return r
}
