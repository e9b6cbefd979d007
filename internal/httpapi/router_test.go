package httpapi_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"waterlog/internal/httpapi"
	"waterlog/internal/intake"
	"waterlog/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router  *httpapi.Router
	tracker *intake.Tracker
	clock   *testutil.StubClock
}

func newTestServer(t *testing.T, origins ...string) *testServer {
	t.Helper()
	clock := testutil.FixedClock()
	tracker, _ := testutil.NewTestTracker(t, clock)
	r := httpapi.NewRouter(tracker, httpapi.Options{AllowedOrigins: origins})
	t.Cleanup(r.Close)
	return &testServer{router: r, tracker: tracker, clock: clock}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", w.Body.String(), err)
	}
	return v
}

type todayBody struct {
	DailyGoal            int     `json:"daily_goal"`
	TodayTotal           int     `json:"today_total"`
	CompletionPercentage float64 `json:"completion_percentage"`
	Entries              []struct {
		ID        int64     `json:"id"`
		Amount    int       `json:"amount"`
		Timestamp time.Time `json:"timestamp"`
	} `json:"entries"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func TestAPI_ExampleDay(t *testing.T) {
	s := newTestServer(t)

	for _, amount := range []string{"150", "100", "200", "200"} {
		s.clock.Advance(time.Minute)
		w := s.do(t, http.MethodPost, "/api/v1/entries", `{"amount": `+amount+`}`)
		if w.Code != http.StatusCreated {
			t.Fatalf("POST /entries %s = %d %s", amount, w.Code, w.Body)
		}
	}

	w := s.do(t, http.MethodGet, "/api/v1/today", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /today = %d", w.Code)
	}
	today := decode[todayBody](t, w)
	if today.TodayTotal != 650 || today.DailyGoal != 2000 || today.CompletionPercentage != 0.325 {
		t.Errorf("today = %+v", today)
	}
	if len(today.Entries) != 4 || today.Entries[0].ID != 4 || today.Entries[3].Amount != 150 {
		t.Errorf("entries not newest-first: %+v", today.Entries)
	}

	w = s.do(t, http.MethodDelete, "/api/v1/entries/today", "")
	if w.Code != http.StatusOK {
		t.Fatalf("DELETE /entries/today = %d", w.Code)
	}
	if got := decode[map[string]int](t, w)["removed"]; got != 4 {
		t.Errorf("removed = %d, want 4", got)
	}

	today = decode[todayBody](t, s.do(t, http.MethodGet, "/api/v1/today", ""))
	if today.TodayTotal != 0 || today.Entries == nil || len(today.Entries) != 0 {
		t.Errorf("after reset today = %+v, want empty entries array", today)
	}
}

func TestAPI_AddEntryErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{name: "zero", body: `{"amount": 0}`, wantStatus: http.StatusBadRequest, wantCode: httpapi.ErrCodeInvalidAmount},
		{name: "negative", body: `{"amount": -50}`, wantStatus: http.StatusBadRequest, wantCode: httpapi.ErrCodeInvalidAmount},
		{name: "missing field", body: `{}`, wantStatus: http.StatusBadRequest, wantCode: httpapi.ErrCodeBadRequest},
		{name: "not json", body: `amount=5`, wantStatus: http.StatusBadRequest, wantCode: httpapi.ErrCodeBadRequest},
		{name: "wrong type", body: `{"amount": "lots"}`, wantStatus: http.StatusBadRequest, wantCode: httpapi.ErrCodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			w := s.do(t, http.MethodPost, "/api/v1/entries", tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := decode[errorBody](t, w); got.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", got.Code, tt.wantCode)
			}
			if s.tracker.TodayTotal() != 0 {
				t.Errorf("TodayTotal = %d after rejected add", s.tracker.TodayTotal())
			}
		})
	}
}

func TestAPI_ClockUnavailable(t *testing.T) {
	s := newTestServer(t)
	s.clock.Set(time.Time{})

	w := s.do(t, http.MethodPost, "/api/v1/entries", `{"amount": 250}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	if got := decode[errorBody](t, w); got.Code != httpapi.ErrCodeClockUnavailable {
		t.Errorf("code = %q", got.Code)
	}
}

func TestAPI_Goal(t *testing.T) {
	s := newTestServer(t)

	if got := decode[map[string]int](t, s.do(t, http.MethodGet, "/api/v1/goal", ""))["daily_goal"]; got != 2000 {
		t.Errorf("GET /goal = %d, want 2000", got)
	}

	w := s.do(t, http.MethodPut, "/api/v1/goal", `{"daily_goal": 2500}`)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT /goal = %d %s", w.Code, w.Body)
	}
	if got := decode[map[string]int](t, w)["daily_goal"]; got != 2500 {
		t.Errorf("PUT /goal response = %d, want 2500", got)
	}

	w = s.do(t, http.MethodPut, "/api/v1/goal", `{"daily_goal": 0}`)
	if w.Code != http.StatusBadRequest || decode[errorBody](t, w).Code != httpapi.ErrCodeInvalidGoal {
		t.Errorf("PUT /goal 0 = %d %s", w.Code, w.Body)
	}
	if s.tracker.DailyGoal() != 2500 {
		t.Errorf("DailyGoal = %d after rejected update", s.tracker.DailyGoal())
	}
}

func TestAPI_History(t *testing.T) {
	s := newTestServer(t)
	s.tracker.AddWater(300)
	s.clock.Advance(24 * time.Hour)
	s.tracker.AddWater(500)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantDays   int
	}{
		{name: "default", query: "", wantStatus: http.StatusOK, wantDays: 7},
		{name: "two days", query: "?days=2", wantStatus: http.StatusOK, wantDays: 2},
		{name: "zero", query: "?days=0", wantStatus: http.StatusBadRequest},
		{name: "too many", query: "?days=367", wantStatus: http.StatusBadRequest},
		{name: "not a number", query: "?days=week", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodGet, "/api/v1/history"+tt.query, "")
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			body := decode[struct {
				Days []struct {
					Date  string `json:"date"`
					Total int    `json:"total"`
				} `json:"days"`
			}](t, w)
			if len(body.Days) != tt.wantDays {
				t.Fatalf("len(days) = %d, want %d", len(body.Days), tt.wantDays)
			}
			last := body.Days[len(body.Days)-1]
			prev := body.Days[len(body.Days)-2]
			if last.Date != "2024-01-16" || last.Total != 500 || prev.Total != 300 {
				t.Errorf("last two days = %+v, %+v", prev, last)
			}
		})
	}
}

func TestAPI_Fallbacks(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("GET /health = %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}

	w = s.do(t, http.MethodGet, "/nope", "")
	if w.Code != http.StatusNotFound || decode[errorBody](t, w).Code != httpapi.ErrCodeNotFound {
		t.Errorf("GET /nope = %d %s", w.Code, w.Body)
	}

	w = s.do(t, http.MethodPatch, "/api/v1/goal", `{}`)
	if w.Code != http.StatusMethodNotAllowed || decode[errorBody](t, w).Code != httpapi.ErrCodeMethodNotAllowed {
		t.Errorf("PATCH /goal = %d %s", w.Code, w.Body)
	}
}

func TestAPI_Metrics(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/v1/entries", `{"amount": 250}`)
	s.do(t, http.MethodPost, "/api/v1/entries", `{"amount": 100}`)

	w := s.do(t, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		"waterlog_intake_ml_total 350",
		"waterlog_entries_total 2",
		"waterlog_today_total_ml 350",
		`http_requests_total{method="POST",path="/api/v1/entries",status="201"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestAPI_CORS(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		origin  string
		want    string
	}{
		{name: "all origins", origins: nil, origin: "http://example.com", want: "*"},
		{name: "allowed origin", origins: []string{"http://localhost:3000"}, origin: "http://localhost:3000", want: "http://localhost:3000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.origins...)
			req := httptest.NewRequest(http.MethodGet, "/api/v1/today", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			s.router.ServeHTTP(w, req)
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.want)
			}
		})
	}
}
