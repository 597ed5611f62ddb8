package v1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/davshaw/gengate/internal/gateway"
	"github.com/davshaw/gengate/internal/server/middleware"
	v1 "github.com/davshaw/gengate/internal/server/v1"
	"github.com/davshaw/gengate/internal/server/validator"
	"github.com/davshaw/gengate/internal/store"
	"github.com/davshaw/gengate/internal/store/model"
	"github.com/davshaw/gengate/internal/store/sqlite"
	"github.com/davshaw/gengate/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePool struct {
	status  gateway.PoolStatus
	reloads int
}

func (p *fakePool) Status() gateway.PoolStatus { return p.status }

func (p *fakePool) Reload(ctx context.Context) error {
	p.reloads++
	return nil
}

func setupAdminRouter(t *testing.T, pool v1.PoolManager) (*gin.Engine, store.Repository) {
	t.Helper()
	repo, err := sqlite.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	gin.SetMode(gin.TestMode)
	validator.Init()

	engine := gin.New()
	engine.Use(middleware.ErrorHandler())

	h := v1.NewAdminHandler(repo, pool)
	admin := engine.Group("/admin")
	admin.GET("/channels", h.ListChannels)
	admin.POST("/channels", h.CreateChannel)
	admin.PUT("/channels/:id", h.UpdateChannel)
	admin.DELETE("/channels/:id", h.DeleteChannel)
	admin.GET("/channels/:id/keys", h.ListChannelKeys)
	admin.POST("/channels/:id/keys", h.CreateChannelKey)
	admin.PUT("/models", h.UpsertModelMapping)
	admin.GET("/models", h.ListModelMappings)
	admin.DELETE("/models/:name", h.DeleteModelMapping)
	admin.POST("/tokens", h.CreateLegacyKey)
	admin.GET("/tokens", h.ListLegacyKeys)
	admin.POST("/accounts", h.CreateAccount)
	admin.GET("/accounts", h.ListAccounts)
	admin.PUT("/accounts/:id", h.UpdateAccount)
	admin.GET("/pool", h.PoolStatus)
	admin.POST("/pool/reload", h.ReloadPool)
	return engine, repo
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)
	return w
}

func TestChannelCRUD(t *testing.T) {
	engine, repo := setupAdminRouter(t, &fakePool{})

	w := doJSON(t, engine, http.MethodPost, "/admin/channels", api.ChannelRequest{
		Name:        "vidu-main",
		Provider:    "vidu",
		ChannelType: "official",
		BaseURL:     "https://api.vidu.com",
		StorageType: "oss",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created api.CreatedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotZero(t, created.ID)

	w = doJSON(t, engine, http.MethodGet, "/admin/channels", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var channels []model.Channel
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &channels))
	require.Len(t, channels, 1)
	assert.Equal(t, "vidu-main", channels[0].Name)

	w = doJSON(t, engine, http.MethodPut, "/admin/channels/1", api.ChannelRequest{
		Name:        "vidu-main",
		Provider:    "vidu",
		ChannelType: "proxy",
		BaseURL:     "https://relay.example.com",
		StorageType: "forward",
	})
	require.Equal(t, http.StatusNoContent, w.Code)

	channels, err := repo.Channels().ListChannels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "proxy", channels[0].ChannelType)

	w = doJSON(t, engine, http.MethodDelete, "/admin/channels/1", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	channels, err = repo.Channels().ListChannels(context.Background())
	require.NoError(t, err)
	assert.Empty(t, channels)
}

func TestChannelValidation(t *testing.T) {
	engine, _ := setupAdminRouter(t, &fakePool{})

	w := doJSON(t, engine, http.MethodPost, "/admin/channels", api.ChannelRequest{
		Name:        "bad",
		Provider:    "vidu",
		ChannelType: "weird",
		StorageType: "oss",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var problem map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
	errs, ok := problem["errors"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, errs["channel_type"], "must be one of")
}

func TestChannelKeyEndpoints(t *testing.T) {
	engine, _ := setupAdminRouter(t, &fakePool{})

	w := doJSON(t, engine, http.MethodPost, "/admin/channels", api.ChannelRequest{
		Name:        "vidu-main",
		Provider:    "vidu",
		ChannelType: "official",
		StorageType: "oss",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, engine, http.MethodPost, "/admin/channels/1/keys", api.ChannelKeyRequest{APIKey: "sk-1", Name: "primary"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, engine, http.MethodGet, "/admin/channels/1/keys", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var keys []model.ChannelKey
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &keys))
	require.Len(t, keys, 1)
	assert.Equal(t, "primary", keys[0].Name)
	// Raw keys never serialize
	assert.NotContains(t, w.Body.String(), "sk-1")
}

func TestModelMappingEndpoints(t *testing.T) {
	engine, repo := setupAdminRouter(t, &fakePool{})

	w := doJSON(t, engine, http.MethodPost, "/admin/channels", api.ChannelRequest{
		Name:        "vidu-main",
		Provider:    "vidu",
		ChannelType: "official",
		StorageType: "oss",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, engine, http.MethodPut, "/admin/models", api.ModelMappingRequest{
		ModelName:    "vidu-video",
		ChannelID:    1,
		TargetModels: []string{"viduq1"},
	})
	require.Equal(t, http.StatusNoContent, w.Code)

	mc, err := repo.Channels().GetModelChannel(context.Background(), "vidu-video")
	require.NoError(t, err)
	assert.JSONEq(t, `["viduq1"]`, mc.TargetModels)

	w = doJSON(t, engine, http.MethodDelete, "/admin/models/vidu-video", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	_, err = repo.Channels().GetModelChannel(context.Background(), "vidu-video")
	require.Error(t, err)
}

func TestLegacyKeyEndpoints(t *testing.T) {
	engine, _ := setupAdminRouter(t, &fakePool{})

	w := doJSON(t, engine, http.MethodPost, "/admin/tokens", api.LegacyKeyRequest{Provider: "minimax", APIKey: "mk-1"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, engine, http.MethodGet, "/admin/tokens", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var keys []model.LegacyAPIKey
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &keys))
	require.Len(t, keys, 1)
	assert.Equal(t, "minimax", keys[0].Provider)
}

func TestAccountEndpoints(t *testing.T) {
	engine, repo := setupAdminRouter(t, &fakePool{})

	w := doJSON(t, engine, http.MethodPost, "/admin/accounts", api.AccountRequest{
		Name:      "alpha",
		UserToken: "tok-1",
		GuildID:   "g1",
		ChannelID: "c1",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, engine, http.MethodGet, "/admin/accounts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "tok-1")

	inactive := false
	w = doJSON(t, engine, http.MethodPut, "/admin/accounts/1", api.AccountRequest{
		Name:      "alpha",
		UserToken: "tok-2",
		GuildID:   "g1",
		ChannelID: "c1",
		IsActive:  &inactive,
	})
	require.Equal(t, http.StatusNoContent, w.Code)

	acc, err := repo.Accounts().Get(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, acc.IsActive)
	assert.Equal(t, "tok-2", acc.UserToken)
}

func TestPoolEndpoints(t *testing.T) {
	pool := &fakePool{status: gateway.PoolStatus{Ready: true, Total: 2}}
	engine, _ := setupAdminRouter(t, pool)

	w := doJSON(t, engine, http.MethodGet, "/admin/pool", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var status gateway.PoolStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.True(t, status.Ready)
	assert.Equal(t, 2, status.Total)

	w = doJSON(t, engine, http.MethodPost, "/admin/pool/reload", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, pool.reloads)
}

func TestBadIDParam(t *testing.T) {
	engine, _ := setupAdminRouter(t, &fakePool{})

	w := doJSON(t, engine, http.MethodDelete, "/admin/channels/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
