package dependency

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"chatrelay/internal/config"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Auth.JWTSecret = "secret"
	cfg.Users = []string{"alice", "bob"}
	return &cfg
}

func TestNewWiresServer(t *testing.T) {
	c, err := New(testConfig())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, c.Close()) })

	require.NotNil(t, c.Server())
	require.NotNil(t, c.Janitor())

	rec := httptest.NewRecorder()
	c.Server().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestNewSeedsUsers(t *testing.T) {
	c, err := New(testConfig())
	require.NoError(t, err)

	ok, err := c.storage.Exists(context.Background(), "alice")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestNewReportsBadSchedule(t *testing.T) {
	cfg := testConfig()
	cfg.Signaling.SweepSchedule = "whenever"

	_, err := New(cfg)
	require.ErrorContains(t, err, "janitor schedule")
}

func TestNewReportsBadPattern(t *testing.T) {
	cfg := testConfig()
	cfg.Abuse.Patterns = []string{"("}

	_, err := New(cfg)
	require.Error(t, err)
}
