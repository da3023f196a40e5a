package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/services"
)

type stubOrderService struct {
	createFn    func(context.Context, services.CreateOrderCommand) (services.Order, error)
	getFn       func(context.Context, string, services.Actor) (services.Order, error)
	listMineFn  func(context.Context, services.Actor) ([]services.Order, error)
	listAllFn   func(context.Context, services.Actor) ([]services.Order, error)
	confirmFn   func(context.Context, services.ConfirmPaymentCommand) (services.Order, error)
	updateFn    func(context.Context, services.UpdateOrderStatusCommand) (services.Order, error)
	invoiceFn   func(context.Context, string, services.Actor) (services.InvoiceDocument, error)
	createCalls int
}

func (s *stubOrderService) Create(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	s.createCalls++
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Get(ctx context.Context, orderID string, actor services.Actor) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID, actor)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) ListMine(ctx context.Context, actor services.Actor) ([]services.Order, error) {
	if s.listMineFn != nil {
		return s.listMineFn(ctx, actor)
	}
	return nil, nil
}

func (s *stubOrderService) ListAll(ctx context.Context, actor services.Actor) ([]services.Order, error) {
	if s.listAllFn != nil {
		return s.listAllFn(ctx, actor)
	}
	return nil, nil
}

func (s *stubOrderService) ConfirmPayment(ctx context.Context, cmd services.ConfirmPaymentCommand) (services.Order, error) {
	if s.confirmFn != nil {
		return s.confirmFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Invoice(ctx context.Context, orderID string, actor services.Actor) (services.InvoiceDocument, error) {
	if s.invoiceFn != nil {
		return s.invoiceFn(ctx, orderID, actor)
	}
	return services.InvoiceDocument{}, errors.New("not implemented")
}

var _ services.OrderService = (*stubOrderService)(nil)

// withIdentity stands in for the Firebase middleware.
func withIdentity(identity *auth.Identity) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if identity != nil {
				r = r.WithContext(auth.WithIdentity(r.Context(), identity))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func mountRoutes(prefix string, identity *auth.Identity, registrar RouteRegistrar) http.Handler {
	router := chi.NewRouter()
	router.Use(withIdentity(identity))
	router.Route(prefix, func(r chi.Router) { registrar(r) })
	return router
}

func customer() *auth.Identity {
	return &auth.Identity{UID: "user-1", Email: "buyer@example.com", Name: "Buyer", Roles: []string{auth.RoleUser}}
}

func staff() *auth.Identity {
	return &auth.Identity{UID: "admin-1", Email: "ops@example.com", Roles: []string{auth.RoleAdmin}}
}

func sampleOrder() services.Order {
	created := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	return services.Order{
		ID:          "ord_1",
		OrderNumber: "ORD-2026-000001",
		UserID:      "user-1",
		Customer:    domain.OrderCustomer{Name: "Buyer", Email: "buyer@example.com"},
		Items: []domain.OrderItem{
			{ProductID: "mug", Name: "Mug", Image: "/img/mug.png", Price: 2500, Quantity: 1},
			{ProductID: "pen", Name: "Pen", Price: 1000, Quantity: 2},
		},
		ShippingAddress: services.ShippingAddress{Street: "1 Main St", City: "Springfield", State: "IL", ZipCode: "62701", Country: "US"},
		PaymentMethod:   domain.PaymentMethodStripe,
		Pricing:         domain.OrderPricing{ItemsPrice: 4500, TaxPrice: 360, ShippingPrice: 1000, TotalPrice: 5860},
		Status:          domain.OrderStatusPending,
		CreatedAt:       created,
		UpdatedAt:       created,
	}
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
	return body
}

const createOrderBody = `{
	"orderItems": [{"product": " mug ", "quantity": 1}, {"product": "pen", "quantity": 2}],
	"shippingAddress": {"street": "1 Main St", "city": "Springfield", "state": "IL", "zipCode": "62701", "country": "US"},
	"paymentMethod": "stripe"
}`

func TestOrderHandlersCreateOrder(t *testing.T) {
	var captured services.CreateOrderCommand
	svc := &stubOrderService{
		createFn: func(_ context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
			captured = cmd
			return sampleOrder(), nil
		},
	}
	handler := mountRoutes("/orders", customer(), NewOrderHandlers(nil, svc).Routes)

	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(createOrderBody))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Actor.UserID != "user-1" || captured.Actor.Email != "buyer@example.com" || captured.Actor.IsAdmin {
		t.Fatalf("unexpected actor %+v", captured.Actor)
	}
	if len(captured.Items) != 2 || captured.Items[0].ProductID != "mug" || captured.Items[1].Quantity != 2 {
		t.Fatalf("unexpected items %+v", captured.Items)
	}
	if captured.ShippingAddress.ZipCode != "62701" || captured.PaymentMethod != "stripe" {
		t.Fatalf("unexpected command %+v", captured)
	}

	body := decodeBody(t, rr)
	if body["orderNumber"] != "ORD-2026-000001" || body["status"] != "pending" {
		t.Fatalf("unexpected payload %v", body)
	}
	if body["totalPrice"] != 58.6 || body["taxPrice"] != 3.6 || body["shippingPrice"] != float64(10) {
		t.Fatalf("expected decimal prices, got %v", body)
	}
	items := body["orderItems"].([]any)
	first := items[0].(map[string]any)
	if first["product"] != "mug" || first["price"] != float64(25) {
		t.Fatalf("unexpected item payload %v", first)
	}
	if _, ok := body["paidAt"]; ok {
		t.Fatalf("unpaid order must omit paidAt")
	}
}

func TestOrderHandlersCreateOrderRejectsUnknownFields(t *testing.T) {
	svc := &stubOrderService{}
	handler := mountRoutes("/orders", customer(), NewOrderHandlers(nil, svc).Routes)

	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"orderItems":[],"totalPrice":1}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if svc.createCalls != 0 {
		t.Fatalf("service must not be called for malformed bodies")
	}
}

func TestOrderHandlersCreateOrderRequiresIdentity(t *testing.T) {
	svc := &stubOrderService{}
	handler := mountRoutes("/orders", nil, NewOrderHandlers(nil, svc).Routes)

	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(createOrderBody))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestOrderHandlersCreateOrderRateLimited(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	svc := &stubOrderService{
		createFn: func(context.Context, services.CreateOrderCommand) (services.Order, error) {
			return sampleOrder(), nil
		},
	}
	handler := mountRoutes("/orders", customer(), NewOrderHandlers(nil, svc,
		WithOrderCreateRateLimit(2, func() time.Time { return now }),
	).Routes)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(createOrderBody)))
		codes = append(codes, rr.Code)
	}
	if codes[0] != http.StatusCreated || codes[1] != http.StatusCreated || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}
	if svc.createCalls != 2 {
		t.Fatalf("expected 2 service calls, got %d", svc.createCalls)
	}
}

func TestOrderHandlersCreateOrderUsesIdempotencyMiddleware(t *testing.T) {
	wrapped := false
	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped = true
			next.ServeHTTP(w, r)
		})
	}
	svc := &stubOrderService{
		createFn: func(context.Context, services.CreateOrderCommand) (services.Order, error) {
			return sampleOrder(), nil
		},
	}
	handler := mountRoutes("/orders", customer(), NewOrderHandlers(nil, svc, WithOrderIdempotency(mw)).Routes)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders", nil))
	if wrapped {
		t.Fatalf("idempotency must not wrap reads")
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(createOrderBody)))
	if !wrapped || rr.Code != http.StatusCreated {
		t.Fatalf("expected wrapped create, got wrapped=%v status=%d", wrapped, rr.Code)
	}
}

func TestOrderHandlersErrorMapping(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"invalid", fmt.Errorf("%w: Insufficient stock for Mug. Available: 1", services.ErrOrderInvalidInput), http.StatusBadRequest, "invalid_request", "Insufficient stock for Mug. Available: 1"},
		{"product", fmt.Errorf("%w: Product mug not found", services.ErrProductNotFound), http.StatusNotFound, "product_not_found", "Product mug not found"},
		{"order", fmt.Errorf("%w: Order not found", services.ErrOrderNotFound), http.StatusNotFound, "order_not_found", "Order not found"},
		{"forbidden", fmt.Errorf("%w: Not authorized", services.ErrOrderForbidden), http.StatusForbidden, "forbidden", "Not authorized"},
		{"paid", fmt.Errorf("%w: Order already paid", services.ErrOrderAlreadyPaid), http.StatusBadRequest, "order_already_paid", "Order already paid"},
		{"conflict", fmt.Errorf("%w: order ord_1 already exists", services.ErrOrderConflict), http.StatusConflict, "order_conflict", "Order was modified concurrently, please retry"},
		{"internal", errors.New("firestore: deadline exceeded for projects/p/databases"), http.StatusInternalServerError, "internal_error", "Server error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubOrderService{
				getFn: func(context.Context, string, services.Actor) (services.Order, error) {
					return services.Order{}, tc.err
				},
			}
			handler := mountRoutes("/orders", customer(), NewOrderHandlers(nil, svc).Routes)

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders/ord_1", nil))

			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			body := decodeBody(t, rr)
			if body["error"] != tc.code || body["message"] != tc.message {
				t.Fatalf("unexpected envelope %v", body)
			}
		})
	}
}

func TestOrderHandlersGetOrderPassesActor(t *testing.T) {
	var gotID string
	var gotActor services.Actor
	svc := &stubOrderService{
		getFn: func(_ context.Context, orderID string, actor services.Actor) (services.Order, error) {
			gotID, gotActor = orderID, actor
			order := sampleOrder()
			paidAt := order.CreatedAt.Add(time.Hour)
			order.IsPaid = true
			order.PaidAt = &paidAt
			order.PaymentResult = &domain.PaymentResult{ID: "pi_1", Status: "succeeded", UpdateTime: "2026-03-14T10:30:00Z", EmailAddress: "buyer@example.com"}
			return order, nil
		},
	}
	handler := mountRoutes("/orders", staff(), NewOrderHandlers(nil, svc).Routes)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders/ord_1", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if gotID != "ord_1" || !gotActor.IsAdmin || gotActor.UserID != "admin-1" {
		t.Fatalf("unexpected call id=%q actor=%+v", gotID, gotActor)
	}
	body := decodeBody(t, rr)
	if body["paidAt"] != "2026-03-14T10:30:00Z" {
		t.Fatalf("unexpected paidAt %v", body["paidAt"])
	}
	result := body["paymentResult"].(map[string]any)
	if result["id"] != "pi_1" || result["update_time"] != "2026-03-14T10:30:00Z" || result["email_address"] != "buyer@example.com" {
		t.Fatalf("unexpected payment result %v", result)
	}
}

func TestOrderHandlersListOrders(t *testing.T) {
	svc := &stubOrderService{
		listMineFn: func(_ context.Context, actor services.Actor) ([]services.Order, error) {
			if actor.UserID != "user-1" {
				t.Fatalf("unexpected actor %+v", actor)
			}
			return []services.Order{sampleOrder()}, nil
		},
	}
	handler := mountRoutes("/orders", customer(), NewOrderHandlers(nil, svc).Routes)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(body) != 1 || body[0]["id"] != "ord_1" {
		t.Fatalf("unexpected list %v", body)
	}
}

func TestOrderHandlersListOrdersEmptyIsArray(t *testing.T) {
	handler := mountRoutes("/orders", customer(), NewOrderHandlers(nil, &stubOrderService{}).Routes)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders", nil))

	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("expected empty JSON array, got %q", rr.Body.String())
	}
}

func TestOrderHandlersPayOrder(t *testing.T) {
	var captured services.ConfirmPaymentCommand
	svc := &stubOrderService{
		confirmFn: func(_ context.Context, cmd services.ConfirmPaymentCommand) (services.Order, error) {
			captured = cmd
			order := sampleOrder()
			order.IsPaid = true
			order.Status = domain.OrderStatusConfirmed
			return order, nil
		},
	}
	handler := mountRoutes("/orders", customer(), NewOrderHandlers(nil, svc).Routes)

	body := `{"id":"pi_1","status":"succeeded","update_time":"2026-03-14T10:00:00Z","email_address":"buyer@example.com"}`
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/orders/ord_1/pay", strings.NewReader(body)))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_1" || captured.Receipt.ID != "pi_1" || captured.Receipt.EmailAddress != "buyer@example.com" {
		t.Fatalf("unexpected command %+v", captured)
	}
	if decodeBody(t, rr)["status"] != "confirmed" {
		t.Fatalf("expected confirmed status")
	}
}

func TestOrderHandlersUpdateStatusRequiresAdmin(t *testing.T) {
	svc := &stubOrderService{
		updateFn: func(context.Context, services.UpdateOrderStatusCommand) (services.Order, error) {
			t.Fatalf("service must not be reached")
			return services.Order{}, nil
		},
	}
	handler := mountRoutes("/orders", customer(), NewOrderHandlers(nil, svc).Routes)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/orders/ord_1/status", strings.NewReader(`{"status":"shipped"}`)))

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if decodeBody(t, rr)["message"] != "Not authorized as an admin" {
		t.Fatalf("unexpected message %s", rr.Body.String())
	}
}

func TestOrderHandlersUpdateStatus(t *testing.T) {
	var captured services.UpdateOrderStatusCommand
	delivered := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	svc := &stubOrderService{
		updateFn: func(_ context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
			captured = cmd
			order := sampleOrder()
			order.Status = domain.OrderStatusDelivered
			order.IsDelivered = true
			order.DeliveredAt = &delivered
			order.TrackingNumber = "1Z999"
			return order, nil
		},
	}
	handler := mountRoutes("/orders", staff(), NewOrderHandlers(nil, svc).Routes)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/orders/ord_1/status", strings.NewReader(`{"status":"delivered","trackingNumber":"1Z999"}`)))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Status != "delivered" || captured.TrackingNumber == nil || *captured.TrackingNumber != "1Z999" || captured.Notes != nil {
		t.Fatalf("unexpected command %+v", captured)
	}
	body := decodeBody(t, rr)
	if body["isDelivered"] != true || body["deliveredAt"] != "2026-03-20T12:00:00Z" {
		t.Fatalf("unexpected payload %v", body)
	}
}

func TestOrderHandlersInvoice(t *testing.T) {
	svc := &stubOrderService{
		invoiceFn: func(_ context.Context, orderID string, _ services.Actor) (services.InvoiceDocument, error) {
			return services.InvoiceDocument{InvoiceNumber: "INV-ORD-2026-000001", OrderID: orderID, Currency: "USD"}, nil
		},
	}
	handler := mountRoutes("/orders", customer(), NewOrderHandlers(nil, svc).Routes)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders/ord_1/invoice", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["invoiceNumber"] != "INV-ORD-2026-000001" || body["orderId"] != "ord_1" {
		t.Fatalf("unexpected invoice %v", body)
	}
}

func TestAdminHandlersListOrders(t *testing.T) {
	svc := &stubOrderService{
		listAllFn: func(_ context.Context, actor services.Actor) ([]services.Order, error) {
			if !actor.IsAdmin {
				t.Fatalf("expected admin actor")
			}
			return []services.Order{sampleOrder(), sampleOrder()}, nil
		},
	}

	t.Run("admin", func(t *testing.T) {
		handler := mountRoutes("/admin", staff(), NewAdminHandlers(nil, svc).Routes)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/orders", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		var body []map[string]any
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil || len(body) != 2 {
			t.Fatalf("unexpected list %s (%v)", rr.Body.String(), err)
		}
	})

	t.Run("customer", func(t *testing.T) {
		handler := mountRoutes("/admin", customer(), NewAdminHandlers(nil, svc).Routes)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/orders", nil))
		if rr.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rr.Code)
		}
	})
}
