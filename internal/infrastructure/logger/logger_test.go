package logger

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"mail_assistant_client/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.LogConfig{LogPath: dir, Level: "debug"}

	lg, err := Init(cfg, "release")
	require.NoError(t, err)
	require.NotNil(t, lg)
	t.Cleanup(func() { zap.ReplaceGlobals(zap.NewNop()) })

	assert.Equal(t, filepath.Join(dir, "client.log"), cfg.FileName)
	assert.Equal(t, 100, cfg.MaxSize)
	assert.Same(t, lg, zap.L())
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	_, err := Init(&config.LogConfig{LogPath: t.TempDir(), Level: "loud"}, "release")
	assert.Error(t, err)

	_, err = Init(nil, "dev")
	assert.Error(t, err)
}

func TestGinRecoveryReturns500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinRecovery(false))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestIsBrokenPipeError(t *testing.T) {
	assert.True(t, isBrokenPipeError(errors.New("write: broken pipe")))
	assert.True(t, isBrokenPipeError(errors.New("read: Connection reset by peer")))
	assert.False(t, isBrokenPipeError(errors.New("timeout")))
	assert.False(t, isBrokenPipeError(nil))
}
