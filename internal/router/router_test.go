package router_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/zap/zaptest"

	"github.com/iliyamo/circle-registration/internal/handler"
	"github.com/iliyamo/circle-registration/internal/model"
	"github.com/iliyamo/circle-registration/internal/notify"
	"github.com/iliyamo/circle-registration/internal/publicid"
	"github.com/iliyamo/circle-registration/internal/registration"
	"github.com/iliyamo/circle-registration/internal/repository"
	"github.com/iliyamo/circle-registration/internal/router"
	"github.com/iliyamo/circle-registration/internal/testdb"
)

const (
	jwtSecret     = "test-jwt-secret"
	webhookSecret = "whsec_test"
)

type recordingEvents struct {
	got []stripe.Event
	err error
}

func (r *recordingEvents) Handle(_ context.Context, ev stripe.Event) error {
	r.got = append(r.got, ev)
	return r.err
}

type api struct {
	e       *echo.Echo
	events  *recordingEvents
	userID  uint64
	eventID uint64
	spaceID uint64
	storeID uint64
	typeID  uint64
}

func newAPI(t *testing.T) *api {
	t.Helper()
	db := testdb.Open(t)
	log := zaptest.NewLogger(t)

	a := &api{events: &recordingEvents{}}
	a.userID = testdb.User(t, db, "circle@example.com")
	a.eventID, a.spaceID = testdb.Event(t, db, testdb.EventOpts{Price: 0})
	a.storeID, a.typeID = testdb.Store(t, db, testdb.StoreOpts{OrganizationID: 4, Price: 500, ProductRef: "prod_ticket"})

	svc := registration.New(log, registration.Deps{
		Events:       repository.NewEventRepo(db),
		Stores:       repository.NewStoreRepo(db),
		Applications: repository.NewApplicationRepo(db),
		Tickets:      repository.NewTicketRepo(db),
		PublicIDs:    repository.NewPublicIDRepo(db),
		Payments:     repository.NewPaymentRepo(db),
		Vouchers:     repository.NewVoucherRepo(db),
		Users:        repository.NewUserRepo(db),
		Notifier:     notify.NewDispatcher(log, nil),
		IDs:          publicid.New("salt"),
	}, time.UTC, 3)
	svc.Now = func() time.Time { return testdb.Now }

	a.e = router.New(log)
	router.RegisterRoutes(a.e, db)
	passthrough := func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	router.RegisterRegistration(a.e, handler.NewRegistrationHandler(svc, log), jwtSecret, passthrough)
	router.RegisterWebhooks(a.e, &handler.StripeWebhookHandler{Events: a.events, Secret: webhookSecret, MaxBody: 1 << 16, Log: log})
	return a
}

func token(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	claims["exp"] = time.Now().Add(time.Hour).Unix()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return s
}

func (a *api) do(t *testing.T, method, path, tok string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func errorReason(t *testing.T, body map[string]any) string {
	t.Helper()
	e, ok := body["error"].(map[string]any)
	require.True(t, ok, "error envelope: %v", body)
	return e["reason"].(string)
}

func TestHealth(t *testing.T) {
	a := newAPI(t)
	rec, _ := a.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCreateApplicationEndpoint(t *testing.T) {
	a := newAPI(t)
	customer := token(t, jwt.MapClaims{"sub": strconv.FormatUint(a.userID, 10), "role": "CUSTOMER"})
	body := map[string]any{
		"event_id": a.eventID, "space_type_id": a.spaceID,
		"circle_name": "Night Owls", "payment_method": "online",
	}

	rec, _ := a.do(t, http.MethodPost, "/v1/applications", "", body)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, out := a.do(t, http.MethodPost, "/v1/applications", customer, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Regexp(t, `^\d{17}-[0-9a-f]{20}$`, out["public_id"])
	require.Nil(t, out["checkout_url"])
	require.NotContains(t, out, "retry_checkout")

	rec, out = a.do(t, http.MethodPost, "/v1/applications", customer, body)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "duplicate_registration", errorReason(t, out))

	body["payment_method"] = "cash"
	rec, out = a.do(t, http.MethodPost, "/v1/applications", customer, body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_field", errorReason(t, out))
}

func TestCreateTicketEndpointMapsErrors(t *testing.T) {
	a := newAPI(t)
	customer := token(t, jwt.MapClaims{"sub": float64(a.userID), "role": "CUSTOMER"})

	rec, out := a.do(t, http.MethodPost, "/v1/tickets", customer, map[string]any{
		"store_id": a.storeID + 50, "type_id": a.typeID, "payment_method": "online",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "store_not_found", errorReason(t, out))
	require.Equal(t, "not_found", out["error"].(map[string]any)["kind"])

	rec, out = a.do(t, http.MethodPost, "/v1/registrations/unknown-id/checkout", customer, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "registration_not_found", errorReason(t, out))
}

func TestAdminTicketEndpoint(t *testing.T) {
	a := newAPI(t)
	path := "/v1/admin/stores/" + strconv.FormatUint(a.storeID, 10) + "/tickets"
	body := map[string]any{"email": "guest@example.com", "type_id": a.typeID}

	customer := token(t, jwt.MapClaims{"sub": "1", "role": "CUSTOMER", "org": 4})
	rec, _ := a.do(t, http.MethodPost, path, customer, body)
	require.Equal(t, http.StatusForbidden, rec.Code)

	other := token(t, jwt.MapClaims{"sub": "1", "role": "ADMIN", "org": 5})
	rec, out := a.do(t, http.MethodPost, path, other, body)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "organization_mismatch", errorReason(t, out))

	admin := token(t, jwt.MapClaims{"sub": "1", "role": "ADMIN", "org": 4})
	rec, out = a.do(t, http.MethodPost, path, admin, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, "guest@example.com", out["email"])
	require.Equal(t, false, out["linked_user"])
	require.Equal(t, model.StatusConfirmed.String(), out["status"])
	require.NotContains(t, out, "id")
}

func signed(t *testing.T, payload []byte, secret string) string {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return sp.Header
}

func (a *api) postWebhook(t *testing.T, payload []byte, sig string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/stripe", strings.NewReader(string(payload)))
	req.Header.Set("Stripe-Signature", sig)
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func TestStripeWebhookEndpoint(t *testing.T) {
	a := newAPI(t)
	payload := []byte(`{"id":"evt_1","object":"event","type":"checkout.session.completed","api_version":"2020-08-27","data":{"object":{"id":"cs_1","object":"checkout.session"}}}`)

	rec := a.postWebhook(t, payload, signed(t, payload, webhookSecret))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Body.String())
	require.Len(t, a.events.got, 1)
	require.Equal(t, "evt_1", a.events.got[0].ID)
	require.Equal(t, stripe.EventTypeCheckoutSessionCompleted, a.events.got[0].Type)

	rec = a.postWebhook(t, payload, signed(t, payload, "whsec_other"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Len(t, a.events.got, 1)

	a.events.err = errors.New("database down")
	rec = a.postWebhook(t, payload, signed(t, payload, webhookSecret))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
