package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kelevkef/kelevkef-system/internal/authz"
	"github.com/kelevkef/kelevkef-system/internal/middleware"
	"github.com/kelevkef/kelevkef-system/internal/model"
	"github.com/kelevkef/kelevkef-system/internal/repository"
	"github.com/kelevkef/kelevkef-system/internal/service"
)

const (
	testClientID   = "11111111-1111-1111-1111-111111111111"
	testExecutorID = "22222222-2222-2222-2222-222222222222"
	testOrderID    = "33333333-3333-3333-3333-333333333333"
	testPetID      = "44444444-4444-4444-4444-444444444444"
)

type stubService struct {
	createOrderResp *model.Order
	createOrderErr  error

	updateStatusResp *model.Order
	updateStatusErr  error

	updateRatingResp *model.Order
	updateRatingErr  error

	ordersResp []model.Order
	ordersErr  error

	spendingTotal float64
	spendingResp  []model.Order
	spendingErr   error

	messagesResp []model.OrderMessage
	messagesErr  error

	postMessageResp *model.OrderMessage
	postMessageErr  error

	profileResp *model.Profile
	profileErr  error

	profilesResp []model.Profile

	petResp *model.Pet
	petErr  error

	petsResp []model.Pet

	deletePetErr    error
	deletePetCalled bool
}

func (s *stubService) CreateOrder(ctx context.Context, clientID string, in service.CreateOrderInput) (*model.Order, error) {
	return s.createOrderResp, s.createOrderErr
}

func (s *stubService) UpdateOrderStatus(ctx context.Context, actorID, orderID string, newStatus model.OrderStatus) (*model.Order, error) {
	return s.updateStatusResp, s.updateStatusErr
}

func (s *stubService) UpdateOrderRating(ctx context.Context, actorID, orderID string, rating int) (*model.Order, error) {
	return s.updateRatingResp, s.updateRatingErr
}

func (s *stubService) ClientOrders(ctx context.Context, clientID string) ([]model.Order, error) {
	return s.ordersResp, s.ordersErr
}

func (s *stubService) ExecutorOrders(ctx context.Context, executorID string) ([]model.Order, error) {
	return s.ordersResp, s.ordersErr
}

func (s *stubService) ClientSpending(ctx context.Context, clientID string) (float64, []model.Order, error) {
	return s.spendingTotal, s.spendingResp, s.spendingErr
}

func (s *stubService) ExecutorEarnings(ctx context.Context, executorID string) (float64, []model.Order, error) {
	return s.spendingTotal, s.spendingResp, s.spendingErr
}

func (s *stubService) PostOrderMessage(ctx context.Context, actorID, orderID, message string) (*model.OrderMessage, error) {
	return s.postMessageResp, s.postMessageErr
}

func (s *stubService) OrderMessages(ctx context.Context, actorID, orderID string) ([]model.OrderMessage, error) {
	return s.messagesResp, s.messagesErr
}

func (s *stubService) SaveProfile(ctx context.Context, userID string, in service.ProfileInput) (*model.Profile, error) {
	return s.profileResp, s.profileErr
}

func (s *stubService) Profile(ctx context.Context, userID string) (*model.Profile, error) {
	return s.profileResp, s.profileErr
}

func (s *stubService) ListExecutors(ctx context.Context) ([]model.Profile, error) {
	return s.profilesResp, nil
}

func (s *stubService) CreatePet(ctx context.Context, ownerID string, in service.PetInput) (*model.Pet, error) {
	return s.petResp, s.petErr
}

func (s *stubService) Pets(ctx context.Context, ownerID string) ([]model.Pet, error) {
	return s.petsResp, s.petErr
}

func (s *stubService) UpdatePet(ctx context.Context, actorID, petID string, in service.PetInput) (*model.Pet, error) {
	return s.petResp, s.petErr
}

func (s *stubService) DeletePet(ctx context.Context, actorID, petID string) error {
	if s.deletePetErr == nil {
		s.deletePetCalled = true
	}
	return s.deletePetErr
}

type stubVerifier struct {
	userID string
}

func (s *stubVerifier) VerifySession(ctx context.Context, token string) (string, error) {
	return s.userID, nil
}

func newTestRouter(t *testing.T, svc Service, callerID string) http.Handler {
	t.Helper()

	logger := zap.NewNop()
	auth := middleware.NewAuthMiddleware(&stubVerifier{userID: callerID}, logger)

	return NewHandler(svc, logger, auth).SetupRouter()
}

func doRequest(t *testing.T, router http.Handler, method, path string, body any, withSession bool) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if withSession {
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "session-token"})
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestCreateOrder_Created(t *testing.T) {
	svc := &stubService{
		createOrderResp: &model.Order{
			ID:         testOrderID,
			ClientID:   testClientID,
			ExecutorID: testExecutorID,
			Status:     model.OrderStatusPending,
			Date:       time.Now(),
			Address:    "ул. Дизенгоф, 1",
		},
	}
	router := newTestRouter(t, svc, testClientID)

	rec := doRequest(t, router, http.MethodPost, "/api/create-order", map[string]any{
		"executorId": testExecutorID,
		"date":       "2025-06-10T14:00",
		"address":    "ул. Дизенгоф, 1",
	}, true)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}

	var resp struct {
		Order struct {
			Status string `json:"status"`
		} `json:"order"`
	}
	decodeBody(t, rec, &resp)
	if resp.Order.Status != "pending" {
		t.Fatalf("order status = %q, want pending", resp.Order.Status)
	}
}

func TestCreateOrder_MissingFields(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(t, svc, testClientID)

	rec := doRequest(t, router, http.MethodPost, "/api/create-order", map[string]any{
		"date": "2025-06-10T14:00",
	}, true)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestUpdateOrderStatus_Confirmed(t *testing.T) {
	svc := &stubService{
		updateStatusResp: &model.Order{
			ID:         testOrderID,
			ClientID:   testClientID,
			ExecutorID: testExecutorID,
			Status:     model.OrderStatusConfirmed,
		},
	}
	router := newTestRouter(t, svc, testExecutorID)

	rec := doRequest(t, router, http.MethodPut, "/api/update-order-status", map[string]any{
		"orderId":   testOrderID,
		"newStatus": "confirmed",
	}, true)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp struct {
		Order struct {
			Status string `json:"status"`
		} `json:"order"`
	}
	decodeBody(t, rec, &resp)
	if resp.Order.Status != "confirmed" {
		t.Fatalf("order status = %q, want confirmed", resp.Order.Status)
	}
}

func TestUpdateOrderStatus_InvalidStatusValue(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(t, svc, testExecutorID)

	rec := doRequest(t, router, http.MethodPut, "/api/update-order-status", map[string]any{
		"orderId":   testOrderID,
		"newStatus": "accepted",
	}, true)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestUpdateOrderStatus_Forbidden(t *testing.T) {
	svc := &stubService{updateStatusErr: authz.ErrForbidden}
	router := newTestRouter(t, svc, testClientID)

	rec := doRequest(t, router, http.MethodPut, "/api/update-order-status", map[string]any{
		"orderId":   testOrderID,
		"newStatus": "declined",
	}, true)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestUpdateOrderStatus_TerminalIsLocked(t *testing.T) {
	svc := &stubService{updateStatusErr: model.ErrInvalidTransition}
	router := newTestRouter(t, svc, testExecutorID)

	rec := doRequest(t, router, http.MethodPut, "/api/update-order-status", map[string]any{
		"orderId":   testOrderID,
		"newStatus": "declined",
	}, true)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestUpdateOrderRating_OK(t *testing.T) {
	rating := 5
	svc := &stubService{
		updateRatingResp: &model.Order{
			ID:         testOrderID,
			ClientID:   testClientID,
			ExecutorID: testExecutorID,
			Status:     model.OrderStatusConfirmed,
			Rating:     &rating,
		},
	}
	router := newTestRouter(t, svc, testClientID)

	rec := doRequest(t, router, http.MethodPut, "/api/update-order-rating", map[string]any{
		"orderId": testOrderID,
		"rating":  5,
	}, true)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp struct {
		Order struct {
			Rating *int `json:"rating"`
		} `json:"order"`
	}
	decodeBody(t, rec, &resp)
	if resp.Order.Rating == nil || *resp.Order.Rating != 5 {
		t.Fatalf("order rating = %v, want 5", resp.Order.Rating)
	}
}

func TestUpdateOrderRating_OutOfRange(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(t, svc, testClientID)

	rec := doRequest(t, router, http.MethodPut, "/api/update-order-rating", map[string]any{
		"orderId": testOrderID,
		"rating":  6,
	}, true)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestUpdateOrderRating_PendingRejected(t *testing.T) {
	svc := &stubService{updateRatingErr: service.ErrRatingNotAllowed}
	router := newTestRouter(t, svc, testClientID)

	rec := doRequest(t, router, http.MethodPut, "/api/update-order-rating", map[string]any{
		"orderId": testOrderID,
		"rating":  4,
	}, true)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestGetClientOrders_Unauthenticated(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(t, svc, testClientID)

	rec := doRequest(t, router, http.MethodGet, "/api/get-client-orders", nil, false)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	var resp map[string]string
	decodeBody(t, rec, &resp)
	if resp["error"] == "" {
		t.Fatalf("expected error body, got %v", resp)
	}
}

func TestGetClientSpending_Total(t *testing.T) {
	cents := int64(5000)
	svc := &stubService{
		spendingTotal: 80,
		spendingResp: []model.Order{
			{ID: testOrderID, Status: model.OrderStatusConfirmed, PriceCents: &cents},
		},
	}
	router := newTestRouter(t, svc, testClientID)

	rec := doRequest(t, router, http.MethodGet, "/api/client/spending", nil, true)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp struct {
		TotalSpent float64 `json:"totalSpent"`
		Orders     []struct {
			Price *float64 `json:"price"`
		} `json:"orders"`
	}
	decodeBody(t, rec, &resp)
	if resp.TotalSpent != 80 {
		t.Fatalf("totalSpent = %v, want 80", resp.TotalSpent)
	}
	if len(resp.Orders) != 1 || resp.Orders[0].Price == nil || *resp.Orders[0].Price != 50 {
		t.Fatalf("unexpected orders: %+v", resp.Orders)
	}
}

func TestGetChatMessages_ThirdPartyForbidden(t *testing.T) {
	svc := &stubService{messagesErr: authz.ErrForbidden}
	router := newTestRouter(t, svc, "55555555-5555-5555-5555-555555555555")

	rec := doRequest(t, router, http.MethodGet, "/api/get-chat-messages?orderId="+testOrderID, nil, true)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestGetChatMessages_MissingOrderID(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(t, svc, testClientID)

	rec := doRequest(t, router, http.MethodGet, "/api/get-chat-messages", nil, true)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestPostChatMessage_Created(t *testing.T) {
	svc := &stubService{
		postMessageResp: &model.OrderMessage{
			ID:       "66666666-6666-6666-6666-666666666666",
			OrderID:  testOrderID,
			SenderID: testClientID,
			Message:  "Здравствуйте!",
		},
	}
	router := newTestRouter(t, svc, testClientID)

	rec := doRequest(t, router, http.MethodPost, "/api/post-chat-message", map[string]any{
		"orderId": testOrderID,
		"message": "Здравствуйте!",
	}, true)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
}

func TestPostChatMessage_OrderNotFound(t *testing.T) {
	svc := &stubService{postMessageErr: repository.ErrOrderNotFound}
	router := newTestRouter(t, svc, testClientID)

	rec := doRequest(t, router, http.MethodPost, "/api/post-chat-message", map[string]any{
		"orderId": testOrderID,
		"message": "Кто здесь?",
	}, true)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestDeletePet_ForeignOwnerForbidden(t *testing.T) {
	svc := &stubService{deletePetErr: authz.ErrForbidden}
	router := newTestRouter(t, svc, testClientID)

	rec := doRequest(t, router, http.MethodDelete, "/api/delete-pet?petId="+testPetID, nil, true)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if svc.deletePetCalled {
		t.Fatalf("pet must not be deleted")
	}
}

func TestDeletePet_OK(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(t, svc, testClientID)

	rec := doRequest(t, router, http.MethodDelete, "/api/delete-pet?petId="+testPetID, nil, true)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp map[string]bool
	decodeBody(t, rec, &resp)
	if !resp["success"] {
		t.Fatalf("expected success body, got %v", resp)
	}
}

func TestGetExecutors_Public(t *testing.T) {
	svc := &stubService{
		profilesResp: []model.Profile{{UserID: testExecutorID, FullName: "Анна", City: "Хайфа"}},
	}
	router := newTestRouter(t, svc, testClientID)

	// Без cookie сессии: маршрут публичный.
	rec := doRequest(t, router, http.MethodGet, "/api/get-executors", nil, false)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp struct {
		Profiles []struct {
			FullName string `json:"full_name"`
		} `json:"profiles"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Profiles) != 1 || resp.Profiles[0].FullName != "Анна" {
		t.Fatalf("unexpected profiles: %+v", resp.Profiles)
	}
}

func TestUpdatePet_MissingFields(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(t, svc, testClientID)

	rec := doRequest(t, router, http.MethodPut, "/api/update-pet", map[string]any{
		"petId": testPetID,
		"name":  "Рекс",
	}, true)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
