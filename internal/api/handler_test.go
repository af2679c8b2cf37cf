package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpu-booking-backend/config"
	"gpu-booking-backend/internal/booking"
	"gpu-booking-backend/internal/model"
	"gpu-booking-backend/internal/mw"
	"gpu-booking-backend/internal/store"
	"gpu-booking-backend/internal/testutil"
)

const (
	alice = "1104601@ntub.edu.tw"
	bob   = "1114602@ntub.edu.tw"
	boss  = "boss@ntub.edu.tw"
	mgr   = "mgr@ntub.edu.tw"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type apiFixture struct {
	router *gin.Engine
	store  store.Store
	svc    *booking.Service
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	loc := testutil.Taipei(t)
	clock := testutil.NewClock(time.Date(2025, 6, 1, 9, 0, 0, 0, loc))

	st := store.NewGormStore(testutil.NewDB(t))
	svc := booking.NewService(st, config.BookingConfig{Location: loc, HorizonDays: 60}, booking.WithClock(clock.Now))

	ctx := context.Background()
	for email, role := range map[string]model.Role{boss: model.RoleAdmin, mgr: model.RoleManager} {
		_, err := st.EnsureUser(ctx, email, "")
		require.NoError(t, err)
		require.NoError(t, st.UpdateUserRole(ctx, email, role))
	}

	cfg := config.ServerConfig{RateLimitPerSec: 1000, RateLimitBurst: 1000, CacheTTLSeconds: 60}
	return &apiFixture{router: NewRouter(cfg, svc, st, nil), store: st, svc: svc}
}

func (f *apiFixture) do(t *testing.T, method, target, email string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = strings.NewReader(string(raw))
	}

	req := httptest.NewRequest(method, target, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if email != "" {
		req.Header.Set(mw.UserEmailHeader, email)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (f *apiFixture) createMachine(t *testing.T, body map[string]any) int64 {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/admin/machines", boss, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[model.Machine](t, w).ID
}

func TestRouter_Identity(t *testing.T) {
	f := newAPI(t)

	w := f.do(t, http.MethodGet, "/api/machines", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, w.Header().Get(mw.RequestIDHeader))

	w = f.do(t, http.MethodPost, "/api/users", alice, map[string]string{"name": "王小明"})
	require.Equal(t, http.StatusOK, w.Code)
	u := decode[model.User](t, w)
	assert.Equal(t, alice, u.Email)
	assert.Equal(t, "王小明", u.Name)
	assert.Equal(t, model.RoleUser, u.Role)

	w = f.do(t, http.MethodPost, "/api/users", boss, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.RoleAdmin, decode[model.User](t, w).Role)

	w = f.do(t, http.MethodGet, "/api/machines", alice, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-cache, no-store, must-revalidate, max-age=0", w.Header().Get("Cache-Control"))
}

func TestRouter_BookingLifecycle(t *testing.T) {
	f := newAPI(t)
	id := f.createMachine(t, map[string]any{"name": "A100"})

	testCases := []struct {
		name     string
		email    string
		body     any
		wantCode int
		wantKind string
	}{
		{"invalid slot", alice, map[string]any{"machine_id": id, "time_slot": "2025-06-01-13:00"}, http.StatusBadRequest, "invalid_time_slot"},
		{"past slot", alice, map[string]any{"machine_id": id, "time_slot": "2025-06-01-08:00"}, http.StatusBadRequest, "past_time_slot"},
		{"beyond horizon", alice, map[string]any{"machine_id": id, "time_slot": "2025-07-31-00:00"}, http.StatusBadRequest, "outside_horizon"},
		{"unknown machine", alice, map[string]any{"machine_id": 999, "time_slot": "2025-06-01-12:00"}, http.StatusNotFound, "machine_not_found"},
		{"missing fields", alice, map[string]any{"machine_id": id}, http.StatusBadRequest, "validation"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/api/bookings", tc.email, tc.body)
			assert.Equal(t, tc.wantCode, w.Code)
			assert.Equal(t, tc.wantKind, decode[map[string]any](t, w)["error_type"])
		})
	}

	w := f.do(t, http.MethodPost, "/api/bookings", alice, map[string]any{"machine_id": id, "time_slot": "2025-06-01-12:00"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	b := decode[model.Booking](t, w)
	assert.Equal(t, "2025-06-01-12:00", b.Slot)
	assert.Equal(t, model.BookingActive, b.Status)

	w = f.do(t, http.MethodPost, "/api/bookings", bob, map[string]any{"machine_id": id, "time_slot": "2025-06-01-12:00"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error":"此時段已被110***@ntub.edu.tw預約","error_type":"time_slot_occupied"}`, w.Body.String())

	w = f.do(t, http.MethodGet, fmt.Sprintf("/api/machines/%d/schedule?from=2025-06-01&days=1", id), alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	sched := decode[booking.Schedule](t, w)
	require.Len(t, sched.Slots, 6)
	assert.Equal(t, "已過期", string(sched.Slots[2].Label))
	assert.Equal(t, "已預約(可取消)", string(sched.Slots[3].Label))
	assert.Equal(t, b.ID, sched.Slots[3].BookingID)

	w = f.do(t, http.MethodGet, fmt.Sprintf("/api/machines/%d/schedule?from=06/01", id), alice, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodDelete, fmt.Sprintf("/api/bookings/%d", b.ID), bob, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "permission_denied", decode[map[string]any](t, w)["error_type"])

	w = f.do(t, http.MethodGet, "/api/users/"+alice+"/bookings", bob, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodDelete, fmt.Sprintf("/api/bookings/%d", b.ID), alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.BookingCancelled, decode[model.Booking](t, w).Status)

	w = f.do(t, http.MethodDelete, fmt.Sprintf("/api/bookings/%d", b.ID), alice, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_status", decode[map[string]any](t, w)["error_type"])

	w = f.do(t, http.MethodGet, "/api/users/"+alice+"/bookings", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	views := decode[[]booking.BookingView](t, w)
	require.Len(t, views, 1)
	assert.Equal(t, "A100", views[0].MachineName)
	assert.EqualValues(t, "cancelled", views[0].State)

	w = f.do(t, http.MethodGet, "/api/users/"+alice+"/bookings", mgr, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodDelete, "/api/bookings/abc", alice, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_RestrictedMachine(t *testing.T) {
	f := newAPI(t)
	id := f.createMachine(t, map[string]any{"name": "H100", "restriction_status": "limited"})

	w := f.do(t, http.MethodPost, fmt.Sprintf("/api/admin/machines/%d/restrictions", id), boss, map[string]any{
		"restriction_type": "year_limit",
		"restriction_rule": map[string]any{"operator": "between", "target_year": 110},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "validation", body["error_type"])
	assert.Contains(t, body["fields"], "operator")

	w = f.do(t, http.MethodPost, fmt.Sprintf("/api/admin/machines/%d/restrictions", id), boss, map[string]any{
		"restriction_type": "year_limit",
		"restriction_rule": map[string]any{"operator": "lte", "target_year": 110},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodGet, fmt.Sprintf("/api/machines/%d/restrictions", id), alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]model.Restriction](t, w), 1)

	w = f.do(t, http.MethodGet, fmt.Sprintf("/api/machines/%d/check-access", id), alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[booking.AccessResult](t, w)
	assert.False(t, res.Allowed)
	assert.Equal(t, "限制民國110年以前入學的用戶使用", res.Reason)

	w = f.do(t, http.MethodGet, fmt.Sprintf("/api/machines/%d/check-access?slot=2025-06-02-00:00", id), bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[booking.AccessResult](t, w).Allowed)

	w = f.do(t, http.MethodGet, fmt.Sprintf("/api/machines/%d/check-access?slot=nope", id), bob, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, fmt.Sprintf("/api/machines/%d/check-access?slot=2025-06-01-08:00", id), bob, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"error_type":"past_time_slot"`)

	w = f.do(t, http.MethodPost, "/api/bookings", alice, map[string]any{"machine_id": id, "time_slot": "2025-06-02-00:00"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error":"限制民國110年以前入學的用戶使用","error_type":"machine_restricted","reasons":["限制民國110年以前入學的用戶使用"]}`, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/bookings", bob, map[string]any{"machine_id": id, "time_slot": "2025-06-02-00:00"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, http.MethodGet, fmt.Sprintf("/api/machines/%d/usage-status", id), bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[booking.UsageStatus](t, w).HasUsageLimit)
}

func TestRouter_AdminAccess(t *testing.T) {
	f := newAPI(t)

	w := f.do(t, http.MethodGet, "/api/admin/machines", alice, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPost, "/api/admin/machines", boss, map[string]any{"name": "<b>A100</b>", "description": "<script>x</script>80GB"})
	require.Equal(t, http.StatusCreated, w.Code)
	m := decode[model.Machine](t, w)
	assert.Equal(t, "A100", m.Name)
	assert.Equal(t, "80GB", m.Description)

	w = f.do(t, http.MethodPut, fmt.Sprintf("/api/admin/machines/%d", m.ID), mgr, map[string]any{"name": "A100", "status": "broken"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[map[string]any](t, w)["fields"], "status")

	w = f.do(t, http.MethodPut, fmt.Sprintf("/api/admin/machines/%d", m.ID), mgr, map[string]any{"name": "A100", "status": "maintenance"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.MachineMaintenance, decode[model.Machine](t, w).Status)

	w = f.do(t, http.MethodDelete, fmt.Sprintf("/api/admin/machines/%d", m.ID), mgr, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodDelete, fmt.Sprintf("/api/admin/machines/%d", m.ID), boss, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "A100", decode[store.MachineDeletion](t, w).Name)

	w = f.do(t, http.MethodGet, "/api/admin/bookings?status=done", boss, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_status", decode[map[string]any](t, w)["error_type"])

	_, err := f.store.EnsureUser(context.Background(), alice, "")
	require.NoError(t, err)

	testCases := []struct {
		name     string
		actor    string
		target   string
		role     model.Role
		wantCode int
	}{
		{"manager cannot grant admin", mgr, alice, model.RoleAdmin, http.StatusForbidden},
		{"manager cannot modify admin", mgr, boss, model.RoleUser, http.StatusForbidden},
		{"unknown role", boss, alice, "root", http.StatusBadRequest},
		{"unknown user", boss, "ghost@ntub.edu.tw", model.RoleManager, http.StatusNotFound},
		{"manager promotes user", mgr, alice, model.RoleManager, http.StatusOK},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(t, http.MethodPut, "/api/admin/users/role", tc.actor, map[string]any{"email": tc.target, "role": tc.role})
			assert.Equal(t, tc.wantCode, w.Code, w.Body.String())
		})
	}

	w = f.do(t, http.MethodGet, "/api/admin/users", alice, nil)
	assert.Equal(t, http.StatusOK, w.Code, "alice is a manager now")
}

func TestRouter_ActiveNotificationsCache(t *testing.T) {
	f := newAPI(t)

	w := f.do(t, http.MethodGet, "/api/notifications/active", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.Empty(t, decode[[]model.Notification](t, w))

	w = f.do(t, http.MethodGet, "/api/notifications/active", "", nil)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))

	w = f.do(t, http.MethodPost, "/api/admin/notifications", mgr, map[string]any{"content": "<p>週六停機維護</p>", "level": "高"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	n := decode[model.Notification](t, w)
	assert.Equal(t, "週六停機維護", n.Content)

	w = f.do(t, http.MethodGet, "/api/notifications/active", "", nil)
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	active := decode[[]model.Notification](t, w)
	require.Len(t, active, 1)
	assert.Equal(t, n.ID, active[0].ID)

	w = f.do(t, http.MethodDelete, fmt.Sprintf("/api/admin/notifications/%d", n.ID), mgr, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodGet, "/api/notifications/active", "", nil)
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.Empty(t, decode[[]model.Notification](t, w))
}

func TestRouter_Subscriptions(t *testing.T) {
	f := newAPI(t)
	id := f.createMachine(t, map[string]any{"name": "A100"})
	endpoint := "https://push.example/sub-1"

	w := f.do(t, http.MethodPut, "/api/subscriptions", alice, map[string]any{
		"endpoint": endpoint, "p256dh": "key", "auth": "secret", "subscribed_machines": []int64{id},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	subs, err := f.store.UserSubscriptions(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, subs, 1)

	w = f.do(t, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"subscribed_machines":[%d]}`, id), w.Body.String())

	w = f.do(t, http.MethodDelete, "/api/subscriptions", alice, map[string]any{"endpoint": endpoint})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, alice, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/api/vapid_public_key", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
