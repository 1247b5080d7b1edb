// Package handler содержит HTTP-обработчики API сервиса KelevKef.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kelevkef/kelevkef-system/internal/authz"
	"github.com/kelevkef/kelevkef-system/internal/middleware"
	"github.com/kelevkef/kelevkef-system/internal/model"
	"github.com/kelevkef/kelevkef-system/internal/repository"
	"github.com/kelevkef/kelevkef-system/internal/service"
	"github.com/kelevkef/kelevkef-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreateOrder(ctx context.Context, clientID string, in service.CreateOrderInput) (*model.Order, error)
	UpdateOrderStatus(ctx context.Context, actorID, orderID string, newStatus model.OrderStatus) (*model.Order, error)
	UpdateOrderRating(ctx context.Context, actorID, orderID string, rating int) (*model.Order, error)
	ClientOrders(ctx context.Context, clientID string) ([]model.Order, error)
	ExecutorOrders(ctx context.Context, executorID string) ([]model.Order, error)
	ClientSpending(ctx context.Context, clientID string) (float64, []model.Order, error)
	ExecutorEarnings(ctx context.Context, executorID string) (float64, []model.Order, error)
	PostOrderMessage(ctx context.Context, actorID, orderID, message string) (*model.OrderMessage, error)
	OrderMessages(ctx context.Context, actorID, orderID string) ([]model.OrderMessage, error)
	SaveProfile(ctx context.Context, userID string, in service.ProfileInput) (*model.Profile, error)
	Profile(ctx context.Context, userID string) (*model.Profile, error)
	ListExecutors(ctx context.Context) ([]model.Profile, error)
	CreatePet(ctx context.Context, ownerID string, in service.PetInput) (*model.Pet, error)
	Pets(ctx context.Context, ownerID string) ([]model.Pet, error)
	UpdatePet(ctx context.Context, actorID, petID string, in service.PetInput) (*model.Pet, error)
	DeletePet(ctx context.Context, actorID, petID string) error
}

// Handler реализует HTTP-обработчики API сервиса KelevKef.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError единообразно переводит ошибки бизнес-логики в HTTP-ответы.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "Заказ не найден")
	case errors.Is(err, repository.ErrPetNotFound):
		writeError(w, http.StatusNotFound, "Питомец не найден")
	case errors.Is(err, repository.ErrProfileNotFound):
		writeError(w, http.StatusNotFound, "Профиль не найден")
	case errors.Is(err, authz.ErrForbidden):
		writeError(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, model.ErrInvalidTransition):
		writeError(w, http.StatusBadRequest, "Статус нельзя изменить")
	case errors.Is(err, service.ErrRatingNotAllowed):
		writeError(w, http.StatusBadRequest, "Оценивать можно только подтверждённые заказы")
	default:
		h.logger.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Не авторизован")
		return "", false
	}
	return id, true
}

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04"}

// parseDate принимает дату услуги в ISO-формате, в том числе без секунд и зоны,
// как присылает форма создания заказа.
func parseDate(value string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func toCents(price *float64) *int64 {
	if price == nil {
		return nil
	}
	cents := int64(math.Round(*price * 100))
	return &cents
}

func fromCents(cents *int64) *float64 {
	if cents == nil {
		return nil
	}
	v := float64(*cents) / 100
	return &v
}

type orderResponse struct {
	ID          string   `json:"id"`
	ClientID    string   `json:"client_id"`
	ExecutorID  string   `json:"executor_id"`
	PetID       *string  `json:"pet_id,omitempty"`
	ServiceType string   `json:"service_type,omitempty"`
	Date        string   `json:"date"`
	Address     string   `json:"address"`
	Details     string   `json:"details"`
	Status      string   `json:"status"`
	Price       *float64 `json:"price,omitempty"`
	Rating      *int     `json:"rating,omitempty"`
	InsertedAt  string   `json:"inserted_at"`
}

func toOrderResponse(o *model.Order) orderResponse {
	return orderResponse{
		ID:          o.ID,
		ClientID:    o.ClientID,
		ExecutorID:  o.ExecutorID,
		PetID:       o.PetID,
		ServiceType: o.ServiceType,
		Date:        o.Date.Format(time.RFC3339),
		Address:     o.Address,
		Details:     o.Details,
		Status:      string(o.Status),
		Price:       fromCents(o.PriceCents),
		Rating:      o.Rating,
		InsertedAt:  o.InsertedAt.Format(time.RFC3339),
	}
}

func toOrderResponses(orders []model.Order) []orderResponse {
	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toOrderResponse(&orders[i]))
	}
	return resp
}

type createOrderRequest struct {
	ExecutorID  string   `json:"executorId"`
	PetID       *string  `json:"petId"`
	ServiceType string   `json:"serviceType"`
	Date        string   `json:"date"`
	Address     string   `json:"address"`
	Details     string   `json:"details"`
	Price       *float64 `json:"price"`
}

// CreateOrder создаёт заказ от имени текущего пользователя.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	clientID, ok := userID(w, r)
	if !ok {
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Некорректное тело запроса")
		return
	}

	if !validation.IsValidID(req.ExecutorID) || req.Date == "" || req.Address == "" {
		writeError(w, http.StatusBadRequest, "executorId, date и address обязательны")
		return
	}
	if req.PetID != nil && !validation.IsValidID(*req.PetID) {
		writeError(w, http.StatusBadRequest, "Некорректный petId")
		return
	}

	date, ok := parseDate(req.Date)
	if !ok {
		writeError(w, http.StatusBadRequest, "Некорректный формат даты")
		return
	}

	order, err := h.service.CreateOrder(r.Context(), clientID, service.CreateOrderInput{
		ExecutorID:  req.ExecutorID,
		PetID:       req.PetID,
		ServiceType: req.ServiceType,
		Date:        date,
		Address:     req.Address,
		Details:     req.Details,
		PriceCents:  toCents(req.Price),
	})
	if err != nil {
		h.writeServiceError(w, err, "Не удалось создать заказ")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]orderResponse{"order": toOrderResponse(order)})
}

type updateOrderStatusRequest struct {
	OrderID   string `json:"orderId"`
	NewStatus string `json:"newStatus"`
}

// UpdateOrderStatus подтверждает или отклоняет заказ от имени исполнителя.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	executorID, ok := userID(w, r)
	if !ok {
		return
	}

	var req updateOrderStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Некорректное тело запроса")
		return
	}

	if !validation.IsValidID(req.OrderID) || !validation.IsValidNewStatus(req.NewStatus) {
		writeError(w, http.StatusBadRequest, "orderId и newStatus обязательны и корректны")
		return
	}

	order, err := h.service.UpdateOrderStatus(r.Context(), executorID, req.OrderID, model.OrderStatus(req.NewStatus))
	if err != nil {
		h.writeServiceError(w, err, "Не удалось обновить статус")
		return
	}

	writeJSON(w, http.StatusOK, map[string]orderResponse{"order": toOrderResponse(order)})
}

type updateOrderRatingRequest struct {
	OrderID string `json:"orderId"`
	Rating  int    `json:"rating"`
}

// UpdateOrderRating сохраняет оценку подтверждённого заказа от имени клиента.
func (h *Handler) UpdateOrderRating(w http.ResponseWriter, r *http.Request) {
	clientID, ok := userID(w, r)
	if !ok {
		return
	}

	var req updateOrderRatingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Некорректное тело запроса")
		return
	}

	if !validation.IsValidID(req.OrderID) || !validation.IsValidRating(req.Rating) {
		writeError(w, http.StatusBadRequest, "orderId и корректный rating обязательны")
		return
	}

	order, err := h.service.UpdateOrderRating(r.Context(), clientID, req.OrderID, req.Rating)
	if err != nil {
		h.writeServiceError(w, err, "Не удалось сохранить рейтинг")
		return
	}

	writeJSON(w, http.StatusOK, map[string]orderResponse{"order": toOrderResponse(order)})
}

// GetClientOrders возвращает заказы текущего пользователя как клиента.
func (h *Handler) GetClientOrders(w http.ResponseWriter, r *http.Request) {
	clientID, ok := userID(w, r)
	if !ok {
		return
	}

	orders, err := h.service.ClientOrders(r.Context(), clientID)
	if err != nil {
		h.writeServiceError(w, err, "Не удалось получить заказы")
		return
	}

	writeJSON(w, http.StatusOK, map[string][]orderResponse{"orders": toOrderResponses(orders)})
}

// GetExecutorOrders возвращает заказы текущего пользователя как исполнителя.
func (h *Handler) GetExecutorOrders(w http.ResponseWriter, r *http.Request) {
	executorID, ok := userID(w, r)
	if !ok {
		return
	}

	orders, err := h.service.ExecutorOrders(r.Context(), executorID)
	if err != nil {
		h.writeServiceError(w, err, "Не удалось получить заказы")
		return
	}

	writeJSON(w, http.StatusOK, map[string][]orderResponse{"orders": toOrderResponses(orders)})
}

// GetClientSpending возвращает сумму расходов клиента по подтверждённым заказам.
func (h *Handler) GetClientSpending(w http.ResponseWriter, r *http.Request) {
	clientID, ok := userID(w, r)
	if !ok {
		return
	}

	total, orders, err := h.service.ClientSpending(r.Context(), clientID)
	if err != nil {
		h.writeServiceError(w, err, "Не удалось получить заказы клиента")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"totalSpent": total,
		"orders":     toOrderResponses(orders),
	})
}

// GetExecutorEarnings возвращает заработок исполнителя по подтверждённым заказам.
func (h *Handler) GetExecutorEarnings(w http.ResponseWriter, r *http.Request) {
	executorID, ok := userID(w, r)
	if !ok {
		return
	}

	total, orders, err := h.service.ExecutorEarnings(r.Context(), executorID)
	if err != nil {
		h.writeServiceError(w, err, "Не удалось получить заказы исполнителя")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"totalEarned": total,
		"orders":      toOrderResponses(orders),
	})
}

type messageResponse struct {
	ID         string `json:"id"`
	OrderID    string `json:"order_id"`
	SenderID   string `json:"sender_id"`
	Message    string `json:"message"`
	InsertedAt string `json:"inserted_at"`
}

func toMessageResponse(m *model.OrderMessage) messageResponse {
	return messageResponse{
		ID:         m.ID,
		OrderID:    m.OrderID,
		SenderID:   m.SenderID,
		Message:    m.Message,
		InsertedAt: m.InsertedAt.Format(time.RFC3339),
	}
}

// GetChatMessages возвращает сообщения чата заказа участнику заказа.
func (h *Handler) GetChatMessages(w http.ResponseWriter, r *http.Request) {
	callerID, ok := userID(w, r)
	if !ok {
		return
	}

	orderID := r.URL.Query().Get("orderId")
	if !validation.IsValidID(orderID) {
		writeError(w, http.StatusBadRequest, "orderId обязателен")
		return
	}

	messages, err := h.service.OrderMessages(r.Context(), callerID, orderID)
	if err != nil {
		h.writeServiceError(w, err, "Не удалось загрузить сообщения")
		return
	}

	resp := make([]messageResponse, 0, len(messages))
	for i := range messages {
		resp = append(resp, toMessageResponse(&messages[i]))
	}

	writeJSON(w, http.StatusOK, map[string][]messageResponse{"messages": resp})
}

type postChatMessageRequest struct {
	OrderID string `json:"orderId"`
	Message string `json:"message"`
}

// PostChatMessage добавляет сообщение в чат заказа от имени участника.
func (h *Handler) PostChatMessage(w http.ResponseWriter, r *http.Request) {
	senderID, ok := userID(w, r)
	if !ok {
		return
	}

	var req postChatMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Некорректное тело запроса")
		return
	}

	if !validation.IsValidID(req.OrderID) || req.Message == "" {
		writeError(w, http.StatusBadRequest, "orderId и message обязательны")
		return
	}

	msg, err := h.service.PostOrderMessage(r.Context(), senderID, req.OrderID, req.Message)
	if err != nil {
		h.writeServiceError(w, err, "Не удалось отправить сообщение")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]messageResponse{"message": toMessageResponse(msg)})
}

type profileResponse struct {
	ID           string   `json:"id"`
	FullName     string   `json:"full_name"`
	City         string   `json:"city"`
	About        string   `json:"about"`
	PricePerWalk *float64 `json:"price_per_walk,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	AvatarURL    *string  `json:"avatar_url,omitempty"`
	Rating       *float64 `json:"rating,omitempty"`
}

func toProfileResponse(p *model.Profile) profileResponse {
	return profileResponse{
		ID:           p.UserID,
		FullName:     p.FullName,
		City:         p.City,
		About:        p.About,
		PricePerWalk: fromCents(p.PricePerWalkCents),
		Latitude:     p.Latitude,
		Longitude:    p.Longitude,
		AvatarURL:    p.AvatarURL,
		Rating:       p.Rating,
	}
}

type saveProfileRequest struct {
	FullName     string   `json:"fullName"`
	City         string   `json:"city"`
	About        string   `json:"about"`
	PricePerWalk *float64 `json:"pricePerWalk"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	AvatarURL    *string  `json:"avatarUrl"`
}

// SaveProfile создаёт или обновляет анкету текущего пользователя.
// Используется и для создания, и для редактирования: запись одна на пользователя.
func (h *Handler) SaveProfile(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var req saveProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Некорректное тело запроса")
		return
	}

	profile, err := h.service.SaveProfile(r.Context(), uid, service.ProfileInput{
		FullName:          req.FullName,
		City:              req.City,
		About:             req.About,
		PricePerWalkCents: toCents(req.PricePerWalk),
		Latitude:          req.Latitude,
		Longitude:         req.Longitude,
		AvatarURL:         req.AvatarURL,
	})
	if err != nil {
		h.writeServiceError(w, err, "Не удалось создать или обновить профиль")
		return
	}

	writeJSON(w, http.StatusOK, map[string]profileResponse{"profile": toProfileResponse(profile)})
}

// GetProfile возвращает публичную анкету пользователя по идентификатору.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	uid := r.URL.Query().Get("userId")
	if !validation.IsValidID(uid) {
		writeError(w, http.StatusBadRequest, "userId обязателен")
		return
	}

	profile, err := h.service.Profile(r.Context(), uid)
	if err != nil {
		h.writeServiceError(w, err, "Не удалось загрузить профиль")
		return
	}

	writeJSON(w, http.StatusOK, map[string]profileResponse{"profile": toProfileResponse(profile)})
}

// GetExecutors возвращает все анкеты для страницы поиска исполнителей.
func (h *Handler) GetExecutors(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.service.ListExecutors(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "Не удалось получить профили")
		return
	}

	resp := make([]profileResponse, 0, len(profiles))
	for i := range profiles {
		resp = append(resp, toProfileResponse(&profiles[i]))
	}

	writeJSON(w, http.StatusOK, map[string][]profileResponse{"profiles": resp})
}

type petResponse struct {
	ID          string  `json:"id"`
	OwnerID     string  `json:"owner_id"`
	PetType     string  `json:"pet_type"`
	Name        string  `json:"name"`
	Age         int     `json:"age"`
	Description string  `json:"description"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
	InsertedAt  string  `json:"inserted_at"`
}

func toPetResponse(p *model.Pet) petResponse {
	return petResponse{
		ID:          p.ID,
		OwnerID:     p.OwnerID,
		PetType:     p.PetType,
		Name:        p.Name,
		Age:         p.Age,
		Description: p.Description,
		AvatarURL:   p.AvatarURL,
		InsertedAt:  p.InsertedAt.Format(time.RFC3339),
	}
}

type createPetRequest struct {
	PetType     string  `json:"petType"`
	Name        string  `json:"name"`
	Age         int     `json:"age"`
	Description string  `json:"description"`
	AvatarURL   *string `json:"avatarUrl"`
}

// CreatePet создаёт запись о питомце текущего пользователя.
func (h *Handler) CreatePet(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := userID(w, r)
	if !ok {
		return
	}

	var req createPetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Некорректное тело запроса")
		return
	}

	if req.PetType == "" || req.Name == "" || req.Age < 0 {
		writeError(w, http.StatusBadRequest, "petType, name и корректный age обязательны")
		return
	}

	pet, err := h.service.CreatePet(r.Context(), ownerID, service.PetInput{
		PetType:     req.PetType,
		Name:        req.Name,
		Age:         req.Age,
		Description: req.Description,
		AvatarURL:   req.AvatarURL,
	})
	if err != nil {
		h.writeServiceError(w, err, "Не удалось создать питомца")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]petResponse{"pet": toPetResponse(pet)})
}

// GetPets возвращает питомцев текущего пользователя.
func (h *Handler) GetPets(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := userID(w, r)
	if !ok {
		return
	}

	pets, err := h.service.Pets(r.Context(), ownerID)
	if err != nil {
		h.writeServiceError(w, err, "Не удалось получить питомцев")
		return
	}

	resp := make([]petResponse, 0, len(pets))
	for i := range pets {
		resp = append(resp, toPetResponse(&pets[i]))
	}

	writeJSON(w, http.StatusOK, map[string][]petResponse{"pets": resp})
}

type updatePetRequest struct {
	PetID       string `json:"petId"`
	PetType     string `json:"petType"`
	Name        string `json:"name"`
	Age         int    `json:"age"`
	Description string `json:"description"`
}

// UpdatePet обновляет запись о питомце текущего пользователя.
func (h *Handler) UpdatePet(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userID(w, r)
	if !ok {
		return
	}

	var req updatePetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Некорректное тело запроса")
		return
	}

	if !validation.IsValidID(req.PetID) || req.PetType == "" || req.Name == "" || req.Age < 0 {
		writeError(w, http.StatusBadRequest, "petId, petType, name и корректный age обязательны")
		return
	}

	pet, err := h.service.UpdatePet(r.Context(), actorID, req.PetID, service.PetInput{
		PetType:     req.PetType,
		Name:        req.Name,
		Age:         req.Age,
		Description: req.Description,
	})
	if err != nil {
		h.writeServiceError(w, err, "Не удалось обновить питомца")
		return
	}

	writeJSON(w, http.StatusOK, map[string]petResponse{"pet": toPetResponse(pet)})
}

// DeletePet удаляет питомца текущего пользователя.
func (h *Handler) DeletePet(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userID(w, r)
	if !ok {
		return
	}

	petID := r.URL.Query().Get("petId")
	if !validation.IsValidID(petID) {
		writeError(w, http.StatusBadRequest, "petId обязателен")
		return
	}

	if err := h.service.DeletePet(r.Context(), actorID, petID); err != nil {
		h.writeServiceError(w, err, "Не удалось удалить питомца")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
