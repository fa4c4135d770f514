package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"fleet-status-backend/config"
	"fleet-status-backend/internal/db"
	"fleet-status-backend/internal/opstatus"
	"fleet-status-backend/internal/store"
)

var (
	t0      = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	t1      = t0.Add(12 * time.Hour)
	t2      = t0.Add(24 * time.Hour)
	testNow = time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testReportConfig() config.ReportConfig {
	return config.ReportConfig{
		Location:            time.UTC,
		CompetenceCutoffDay: 26,
		MaxSpanDays:         731,
		DefaultLookbackDays: 90,
	}
}

// newTestRouter serves the full route table over a migrated in-memory database holding
// machine m-1: operating from t0, downtime (loss 1000) from t1, operating again from t2.
func newTestRouter(t *testing.T) (*gin.Engine, store.Store) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gormDB, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gormDB))
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	s := store.NewGormStore(gormDB)
	ctx := context.Background()
	item := store.ApiItem{ID: "m-1", Name: "PSV Atlântico", Fleet: "Apoio"}
	require.NoError(t, s.UpsertFleetsAndMachines(ctx, []store.ApiItem{item}))

	item.StatusParsed = opstatus.Operating
	_, err = s.UpdateStatus(ctx, t0, []store.ApiItem{item})
	require.NoError(t, err)
	item.StatusParsed, item.LossValue = opstatus.Downtime, 1000
	_, err = s.UpdateStatus(ctx, t1, []store.ApiItem{item})
	require.NoError(t, err)
	item.StatusParsed, item.LossValue = opstatus.Operating, 0
	_, err = s.UpdateStatus(ctx, t2, []store.ApiItem{item})
	require.NoError(t, err)

	h := NewHandler(s, nil, testReportConfig())
	h.now = func() time.Time { return testNow }
	r := newRouter(h, &config.ServerConfig{
		RateLimitPerSec: 1000,
		RateLimitBurst:  1000,
		CacheTTLSeconds: 60,
		AllowedOrigins:  []string{"https://ops.example"},
	})
	return r, s
}

func serve(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func newRequest(method, target string) *http.Request {
	return httptest.NewRequest(method, target, nil)
}

func record(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func idParam(v int64) string {
	return strconv.FormatInt(v, 10)
}
