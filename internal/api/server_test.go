package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"courtbook/internal/availability"
	"courtbook/internal/catalog"
	"courtbook/internal/config"
	"courtbook/internal/database"
	"courtbook/internal/events"
	"courtbook/internal/export"
	"courtbook/internal/models"
	"courtbook/internal/repository"
	"courtbook/internal/service"
	"courtbook/internal/slots"
	"courtbook/internal/timeutil"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProvider() catalog.Provider {
	return catalog.NewStaticProvider(
		[]models.Court{
			{ID: 1, Name: "Center Court", Type: models.CourtIndoor, BaseRate: 500, Status: models.CourtActive},
			{ID: 2, Name: "Garden Court", Type: models.CourtOutdoor, BaseRate: 300, Status: models.CourtActive},
		},
		[]models.Equipment{
			{ID: 1, Name: "Racket", TotalQuantity: 3, Rate: 100, Status: models.EquipmentAvailable},
		},
		[]models.Coach{
			{ID: 1, Name: "Anna", HourlyRate: 800, Status: models.CoachActive, Availability: []models.WeeklyWindow{
				{DayOfWeek: 6, Start: "08:00", End: "20:00"},
			}},
		},
		[]models.PricingRule{
			{ID: 1, Name: "Peak Hours", Kind: models.RuleMultiplier, Value: 1.5, Priority: 100, Active: true,
				Conditions: models.RuleConditions{PeakStart: "17:00", PeakEnd: "21:00"}},
			{ID: 2, Name: "Weekend", Kind: models.RuleMultiplier, Value: 1.3, Priority: 90, Active: true,
				Conditions: models.RuleConditions{Weekend: true}},
			{ID: 3, Name: "Indoor Surcharge", Kind: models.RuleAddition, Value: 200, Priority: 50, Active: true,
				Conditions: models.RuleConditions{CourtType: models.CourtIndoor}},
		},
	)
}

func newTestServer(t *testing.T, authEnabled bool) *Server {
	t.Helper()

	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	provider := testProvider()
	checker := availability.NewChecker(provider, db)
	operating, err := timeutil.ParseWindow("06:00", "23:00")
	require.NoError(t, err)
	clock := timeutil.RealClock{}
	generator := slots.NewGenerator(checker, clock, 60, operating)

	svc, err := service.NewBookingService(db, provider, checker, generator, events.NewEventBus(),
		models.AtomicityTransactional, 30*time.Minute, clock, &logger)
	require.NoError(t, err)

	exporter := export.NewExporter(db, provider, t.TempDir())

	cfg := config.APIConfig{
		Port: 8080,
		Auth: config.APIAuthConfig{
			Enabled:      authEnabled,
			HeaderAPIKey: "x-api-key",
			APIKeys: []config.APIClientKey{
				{Key: "frontend-key", Name: "frontend"},
				{Key: "admin-key", Name: "backoffice", Permissions: []string{"admin"}},
			},
		},
		RateLimit: config.APIRateLimitConfig{RPS: 100, Burst: 200},
	}

	return NewServer(cfg, svc, provider, exporter, repository.NewMemoryRateLimitRepository(), false, &logger)
}

func doRequest(t *testing.T, s *Server, method, target string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// futureSaturday суббота минимум через неделю, чтобы тесты цен
// попадали на выходной детерминированно.
func futureSaturday(t *testing.T) string {
	t.Helper()
	d := time.Now().AddDate(0, 0, 7)
	for d.Weekday() != time.Saturday {
		d = d.AddDate(0, 0, 1)
	}
	return d.Format(timeutil.DateLayout)
}

func userHeaders(userID int64) map[string]string {
	return map[string]string{userIDHeader: fmt.Sprintf("%d", userID)}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, false)

	rec := doRequest(t, s, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestAPIKeyAuth(t *testing.T) {
	s := newTestServer(t, true)

	t.Run("missing key", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/api/v1/courts", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("invalid key", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/api/v1/courts", nil, map[string]string{"x-api-key": "wrong"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid key", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/api/v1/courts", nil, map[string]string{"x-api-key": "frontend-key"})
		require.Equal(t, http.StatusOK, rec.Code)
		courts, ok := decodeBody(t, rec)["courts"].([]interface{})
		require.True(t, ok)
		assert.Len(t, courts, 2)
	})
}

func TestAdminOnly(t *testing.T) {
	s := newTestServer(t, true)

	t.Run("regular client forbidden", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/api/v1/admin/export?start=2026-09-01&end=2026-09-07", nil,
			map[string]string{"x-api-key": "frontend-key"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin client passes", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/api/v1/admin/export?start=2026-09-01&end=2026-09-07", nil,
			map[string]string{"x-api-key": "admin-key"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")
	})

	t.Run("auth disabled treats caller as trusted", func(t *testing.T) {
		open := newTestServer(t, false)
		rec := doRequest(t, open, http.MethodGet, "/api/v1/admin/export?start=2026-09-01&end=2026-09-07", nil, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("inverted range rejected", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/api/v1/admin/export?start=2026-09-07&end=2026-09-01", nil,
			map[string]string{"x-api-key": "admin-key"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCreateBooking(t *testing.T) {
	s := newTestServer(t, false)
	date := futureSaturday(t)

	body := map[string]interface{}{
		"date":       date,
		"start_time": "10:00",
		"end_time":   "12:00",
		"court_id":   1,
	}

	t.Run("missing user header", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodPost, "/api/v1/bookings", body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid date", func(t *testing.T) {
		bad := map[string]interface{}{"date": "05.09.2026", "start_time": "10:00", "end_time": "11:00", "court_id": 1}
		rec := doRequest(t, s, http.MethodPost, "/api/v1/bookings", bad, userHeaders(1))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing required field", func(t *testing.T) {
		bad := map[string]interface{}{"date": date, "start_time": "10:00"}
		rec := doRequest(t, s, http.MethodPost, "/api/v1/bookings", bad, userHeaders(1))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("past date", func(t *testing.T) {
		bad := map[string]interface{}{"date": "2020-01-01", "start_time": "10:00", "end_time": "11:00", "court_id": 1}
		rec := doRequest(t, s, http.MethodPost, "/api/v1/bookings", bad, userHeaders(1))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("created", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodPost, "/api/v1/bookings", body, userHeaders(1))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var booking models.Booking
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &booking))
		assert.NotZero(t, booking.ID)
		assert.NotEmpty(t, booking.Reference)
		assert.Equal(t, models.StatusConfirmed, booking.Status)
		require.NotNil(t, booking.Pricing)
		assert.Greater(t, booking.Pricing.Total, 0.0)
	})

	t.Run("conflict is waitlist eligible", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodPost, "/api/v1/bookings", body, userHeaders(2))
		require.Equal(t, http.StatusConflict, rec.Code)

		resp := decodeBody(t, rec)
		assert.Equal(t, true, resp["waitlist_eligible"])
		conflicts, ok := resp["conflicts"].([]interface{})
		require.True(t, ok)
		assert.NotEmpty(t, conflicts)
	})
}

func TestGetAndCancelBooking(t *testing.T) {
	s := newTestServer(t, false)
	date := futureSaturday(t)

	body := map[string]interface{}{
		"date":       date,
		"start_time": "14:00",
		"end_time":   "15:00",
		"court_id":   1,
	}
	rec := doRequest(t, s, http.MethodPost, "/api/v1/bookings", body, userHeaders(1))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var booking models.Booking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &booking))

	t.Run("get by id", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, fmt.Sprintf("/api/v1/bookings/%d", booking.ID), nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unknown id", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/api/v1/bookings/9999", nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("list user bookings", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/api/v1/bookings", nil, userHeaders(1))
		require.Equal(t, http.StatusOK, rec.Code)
		bookings, ok := decodeBody(t, rec)["bookings"].([]interface{})
		require.True(t, ok)
		assert.Len(t, bookings, 1)
	})

	cancelPath := fmt.Sprintf("/api/v1/bookings/%d/cancel", booking.ID)

	t.Run("stranger cannot cancel", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodPost, cancelPath, nil, userHeaders(2))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("owner cancels", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodPost, cancelPath, nil, userHeaders(1))
		require.Equal(t, http.StatusOK, rec.Code)

		var cancelled models.Booking
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cancelled))
		assert.Equal(t, models.StatusCancelled, cancelled.Status)
	})

	t.Run("double cancel", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodPost, cancelPath, nil, userHeaders(1))
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestListSlots(t *testing.T) {
	s := newTestServer(t, false)
	date := futureSaturday(t)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/bookings", map[string]interface{}{
		"date":       date,
		"start_time": "10:00",
		"end_time":   "11:00",
		"court_id":   1,
	}, userHeaders(1))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	t.Run("marks busy slot", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/api/v1/slots?date="+date+"&court_id=1", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Date  string       `json:"date"`
			Slots []slots.Slot `json:"slots"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, date, resp.Date)
		require.Len(t, resp.Slots, 17)

		for _, slot := range resp.Slots {
			if slot.Start == "10:00" {
				assert.False(t, slot.Available)
				assert.True(t, slot.Reasons.Court)
			} else {
				assert.True(t, slot.Available, "slot %s", slot.Start)
			}
		}
	})

	t.Run("missing court_id", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/api/v1/slots?date="+date, nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("equipment filter parsed", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/api/v1/slots?date="+date+"&court_id=2&equipment=1:2", nil, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("malformed equipment filter", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/api/v1/slots?date="+date+"&court_id=2&equipment=abc", nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCheckAvailability(t *testing.T) {
	s := newTestServer(t, false)
	date := futureSaturday(t)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/bookings", map[string]interface{}{
		"date":       date,
		"start_time": "10:00",
		"end_time":   "12:00",
		"court_id":   1,
	}, userHeaders(1))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	t.Run("busy window reports conflicts", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet,
			"/api/v1/availability?date="+date+"&start=11:00&end=13:00&court_id=1", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var result availability.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.False(t, result.Available)
		require.NotEmpty(t, result.Conflicts)
		assert.Equal(t, "court", result.Conflicts[0].Kind)
	})

	t.Run("free window", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet,
			"/api/v1/availability?date="+date+"&start=12:00&end=13:00&court_id=1", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var result availability.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.True(t, result.Available)
	})

	t.Run("unknown court", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet,
			"/api/v1/availability?date="+date+"&start=12:00&end=13:00&court_id=99", nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestPricingPreview(t *testing.T) {
	s := newTestServer(t, false)
	date := futureSaturday(t)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/pricing/preview", map[string]interface{}{
		"date":       date,
		"start_time": "18:00",
		"end_time":   "20:00",
		"court_id":   1,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var breakdown models.Breakdown
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &breakdown))

	// суббота, пик, крытый корт: 1000 + 500 + 300 + 200
	assert.InDelta(t, 1000.0, breakdown.CourtCharge, 1e-9)
	assert.InDelta(t, 2000.0, breakdown.Total, 1e-9)
	assert.Len(t, breakdown.AppliedRules, 3)

	// превью ничего не бронирует
	rec = doRequest(t, s, http.MethodGet,
		"/api/v1/availability?date="+date+"&start=18:00&end=20:00&court_id=1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var result availability.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Available)
}

func TestWaitlistEndpoints(t *testing.T) {
	s := newTestServer(t, false)
	date := futureSaturday(t)

	body := map[string]interface{}{
		"date":       date,
		"start_time": "10:00",
		"end_time":   "11:00",
		"court_id":   1,
	}
	rec := doRequest(t, s, http.MethodPost, "/api/v1/bookings", body, userHeaders(1))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var entryID int64

	t.Run("join", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodPost, "/api/v1/waitlist", body, userHeaders(2))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var entry models.WaitlistEntry
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
		assert.Equal(t, 1, entry.Position)
		entryID = entry.ID
	})

	t.Run("list", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet,
			"/api/v1/waitlist?date="+date+"&court_id=1&start=10:00&end=11:00", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		entries, ok := decodeBody(t, rec)["entries"].([]interface{})
		require.True(t, ok)
		assert.Len(t, entries, 1)
	})

	t.Run("leave", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodDelete, fmt.Sprintf("/api/v1/waitlist/%d", entryID), nil, nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = doRequest(t, s, http.MethodDelete, fmt.Sprintf("/api/v1/waitlist/%d", entryID), nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

type denyRateLimit struct{}

func (denyRateLimit) CheckRateLimit(context.Context, string, int, time.Duration) (bool, error) {
	return false, nil
}

type brokenRateLimit struct{}

func (brokenRateLimit) CheckRateLimit(context.Context, string, int, time.Duration) (bool, error) {
	return false, errors.New("store unavailable")
}

func TestRateLimitMiddleware(t *testing.T) {
	logger := zerolog.Nop()
	gin.SetMode(gin.ReleaseMode)

	newEngine := func(repo repository.RateLimitRepository, cfg config.APIRateLimitConfig) *gin.Engine {
		engine := gin.New()
		engine.Use(RateLimit(repo, cfg, &logger))
		engine.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
		return engine
	}

	t.Run("over limit rejected", func(t *testing.T) {
		engine := newEngine(denyRateLimit{}, config.APIRateLimitConfig{RPS: 1, Burst: 10})
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})

	t.Run("store failure allows traffic", func(t *testing.T) {
		engine := newEngine(brokenRateLimit{}, config.APIRateLimitConfig{RPS: 1, Burst: 10})
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("burst guard rejects spikes", func(t *testing.T) {
		engine := newEngine(nil, config.APIRateLimitConfig{RPS: 1, Burst: 1})
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})

	t.Run("memory store counts per key", func(t *testing.T) {
		engine := newEngine(repository.NewMemoryRateLimitRepository(), config.APIRateLimitConfig{RPS: 1, Burst: 100})
		for i := 0; i < 60; i++ {
			rec := httptest.NewRecorder()
			engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
			require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
		}
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})
}

func TestRequestIDPropagation(t *testing.T) {
	s := newTestServer(t, false)

	t.Run("echoes provided id", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/health", nil, map[string]string{requestIDHeader: "req-123"})
		assert.Equal(t, "req-123", rec.Header().Get(requestIDHeader))
	})

	t.Run("generates id when absent", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/health", nil, nil)
		assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
	})
}
