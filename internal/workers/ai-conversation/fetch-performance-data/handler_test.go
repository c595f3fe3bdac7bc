// internal/workers/ai-conversation/fetch-performance-data/handler_test.go
package fetchperformancedata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"finlit-workers/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Logger Implementation
// ==========================

type TestLogger struct {
	t      *testing.T
	fields map[string]interface{}
}

func NewTestLogger(t *testing.T) *TestLogger {
	return &TestLogger{t: t, fields: make(map[string]interface{})}
}

func (l *TestLogger) Info(msg string, fields map[string]interface{}) {
	l.t.Logf("INFO: %s %v %v", msg, l.fields, fields)
}

func (l *TestLogger) Warn(msg string, fields map[string]interface{}) {
	l.t.Logf("WARN: %s %v %v", msg, l.fields, fields)
}

func (l *TestLogger) Error(msg string, fields map[string]interface{}) {
	l.t.Logf("ERROR: %s %v %v", msg, l.fields, fields)
}

func (l *TestLogger) With(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &TestLogger{t: l.t, fields: merged}
}

// ==========================
// Fake learning-data backend
// ==========================

type fakeBackend struct {
	mu       sync.Mutex
	calls    map[string]int
	queries  map[string]string
	auth     string
	handlers map[string]http.HandlerFunc
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		calls:    map[string]int{},
		queries:  map[string]string{},
		handlers: map[string]http.HandlerFunc{},
	}
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	b.mu.Lock()
	b.calls[kind]++
	b.queries[kind] = r.URL.RawQuery
	b.auth = r.Header.Get("Authorization")
	handler, ok := b.handlers[kind]
	b.mu.Unlock()

	if !ok {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"kind":"` + kind + `","score":80}`))
		return
	}
	handler(w, r)
}

func (b *fakeBackend) callCount(kind string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[kind]
}

func (b *fakeBackend) query(kind string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queries[kind]
}

func setup(t *testing.T, backend *fakeBackend) *Handler {
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	cfg := LoadConfig()
	cfg.BaseURL = server.URL + "/api"
	cfg.Token = "secret"
	cfg.CallTimeout = 2 * time.Second
	cfg.RetryInterval = time.Millisecond
	return NewHandler(cfg, NewTestLogger(t))
}

func TestFetch_ThemesScenario(t *testing.T) {
	backend := newFakeBackend()
	h := setup(t, backend)

	result := h.Fetch(context.Background(), models.APICallDetail{
		ChildID:  "adi_123",
		APITypes: models.StringList{"concept-performance"},
		Themes:   models.StringList{"Menabung", "Kejujuran"},
	})

	require.Len(t, result, 1)
	assert.JSONEq(t, `{"kind":"concept-performance","score":80}`, string(result["concept-performance"]))
	assert.Equal(t, 1, backend.callCount("concept-performance"))
	assert.Equal(t, "themes=Menabung,Kejujuran", backend.query("concept-performance"))
	assert.Equal(t, "Bearer secret", backend.auth)
}

func TestFetch_FanOutIsolation(t *testing.T) {
	backend := newFakeBackend()
	backend.handlers["performance-timeline"] = func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}
	backend.handlers["overall-statistics"] = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[1,2,3]`))
	}
	h := setup(t, backend)

	result := h.Fetch(context.Background(), models.APICallDetail{
		ChildID: "adi_123",
		APITypes: models.StringList{
			"concept-performance", "performance-timeline", "overall-statistics", "weekly-report", "mood",
		},
	})

	// 3 valid kinds + 2 unknown kinds
	require.Len(t, result, 5)
	assert.Contains(t, result, "concept-performance")
	assert.Contains(t, result, "performance-timeline_error")
	assert.Contains(t, result, "overall-statistics_error")
	assert.Contains(t, result, "weekly-report_error")
	assert.Contains(t, result, "mood_error")

	var timelineErr map[string]string
	require.NoError(t, json.Unmarshal(result["performance-timeline_error"], &timelineErr))
	assert.Equal(t, string(models.ErrKindHTTPStatus), timelineErr["error"])
	assert.Contains(t, timelineErr["detail"], "500")

	var statsErr map[string]string
	require.NoError(t, json.Unmarshal(result["overall-statistics_error"], &statsErr))
	assert.Equal(t, string(models.ErrKindDecode), statsErr["error"])

	var unknownErr map[string]string
	require.NoError(t, json.Unmarshal(result["mood_error"], &unknownErr))
	assert.Equal(t, string(models.ErrKindUnknownEndpoint), unknownErr["error"])

	assert.Equal(t, 3, backend.callCount("performance-timeline"), "one attempt plus two retries")
	assert.Equal(t, 0, backend.callCount("weekly-report"))
	assert.Equal(t, 0, backend.callCount("mood"))
}

func TestFetch_ClientErrorIsNotRetried(t *testing.T) {
	backend := newFakeBackend()
	backend.handlers["overall-statistics"] = func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such child", http.StatusNotFound)
	}
	h := setup(t, backend)

	result := h.Fetch(context.Background(), models.APICallDetail{
		ChildID:  "ghost",
		APITypes: models.StringList{"overall-statistics"},
	})

	assert.Contains(t, result, "overall-statistics_error")
	assert.Equal(t, 1, backend.callCount("overall-statistics"))
}

func TestFetch_Timeout(t *testing.T) {
	backend := newFakeBackend()
	backend.handlers["performance-timeline"] = func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}
	h := setup(t, backend)
	h.config.CallTimeout = 50 * time.Millisecond

	result := h.Fetch(context.Background(), models.APICallDetail{
		ChildID:  "adi_123",
		APITypes: models.StringList{"performance-timeline", "concept-performance"},
	})

	require.Len(t, result, 2)
	assert.Contains(t, result, "concept-performance")
	var timeoutErr map[string]string
	require.NoError(t, json.Unmarshal(result["performance-timeline_error"], &timeoutErr))
	assert.Equal(t, string(models.ErrKindTimeout), timeoutErr["error"])
}

func TestFetch_NoKinds(t *testing.T) {
	h := setup(t, newFakeBackend())

	result := h.Fetch(context.Background(), models.APICallDetail{ChildID: "adi_123"})
	assert.Equal(t, models.NoCallNeededResult(), result)
}

func TestFetch_DuplicateKindsCollapse(t *testing.T) {
	backend := newFakeBackend()
	h := setup(t, backend)

	result := h.Fetch(context.Background(), models.APICallDetail{
		ChildID:  "adi_123",
		APITypes: models.StringList{"overall-statistics", "overall-statistics"},
	})
	assert.Len(t, result, 1)
	assert.Equal(t, 1, backend.callCount("overall-statistics"))
}

func TestBuildURL(t *testing.T) {
	three, zero := 3, 0
	tests := []struct {
		name   string
		detail models.APICallDetail
		want   string
	}{
		{
			name:   "no filters",
			detail: models.APICallDetail{ChildID: "adi_123"},
			want:   "http://backend/api/child/adi_123/overall-statistics",
		},
		{
			name: "all filters",
			detail: models.APICallDetail{
				ChildID:    "adi_123",
				Themes:     models.StringList{"Kebutuhan vs Keinginan", "Menabung"},
				TimeUnit:   models.TimeUnitWeek,
				NumPeriods: &three,
				StartDate:  "2024-01-01",
				EndDate:    "2024-01-31",
			},
			want: "http://backend/api/child/adi_123/overall-statistics?themes=Kebutuhan+vs+Keinginan,Menabung&end_date=2024-01-31&num_periods=3&start_date=2024-01-01&time_unit=week",
		},
		{
			name: "invalid filters dropped",
			detail: models.APICallDetail{
				ChildID:    "adi_123",
				Themes:     models.StringList{"Astrologi"},
				TimeUnit:   "fortnight",
				NumPeriods: &zero,
				StartDate:  "01/02/2024",
			},
			want: "http://backend/api/child/adi_123/overall-statistics",
		},
		{
			name:   "child id is escaped",
			detail: models.APICallDetail{ChildID: "a b/c"},
			want:   "http://backend/api/child/a%20b%2Fc/overall-statistics",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildURL("http://backend/api/", "overall-statistics", tt.detail)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExecute(t *testing.T) {
	backend := newFakeBackend()
	h := setup(t, backend)

	t.Run("general intent skips the backend", func(t *testing.T) {
		out, err := h.Execute(context.Background(), &Input{Intent: models.EncodeIntent(models.GeneralIntent{})})
		require.NoError(t, err)
		assert.True(t, out.Skipped)
		assert.Equal(t, models.NoDataResult(), out.BackendData)
		assert.Equal(t, 0, backend.callCount("concept-performance"))
	})

	t.Run("performance intent fetches", func(t *testing.T) {
		out, err := h.Execute(context.Background(), &Input{Intent: models.EncodeIntent(models.PerformanceIntent{
			Detail: models.APICallDetail{ChildID: "adi_123", APITypes: models.StringList{"concept-performance"}},
		})})
		require.NoError(t, err)
		assert.False(t, out.Skipped)
		assert.Contains(t, out.BackendData, "concept-performance")
	})

	t.Run("missing intent", func(t *testing.T) {
		_, err := h.Execute(context.Background(), &Input{})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}
