package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/davshaw/gengate/internal/config"
	"github.com/davshaw/gengate/internal/core/domain"
	"github.com/davshaw/gengate/internal/core/services"
	"github.com/davshaw/gengate/internal/httpclient"
	"github.com/davshaw/gengate/internal/storage"
	"github.com/davshaw/gengate/internal/store"
	"github.com/davshaw/gengate/internal/store/model"
	"github.com/davshaw/gengate/internal/store/sqlite"
)

func newTestRepo(t *testing.T) store.Repository {
	t.Helper()
	repo, err := sqlite.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func seedRoute(t *testing.T, repo store.Repository, provider, modelName, targetModels, baseURL string) {
	t.Helper()
	ctx := context.Background()
	chID, err := repo.Channels().CreateChannel(ctx, &model.Channel{
		Name: modelName + "-chan", Provider: provider, ChannelType: model.ChannelTypeOfficial,
		BaseURL: baseURL, StorageType: model.StorageTypeForward, IsActive: true,
	})
	require.NoError(t, err)
	require.NoError(t, repo.Channels().UpsertModelChannel(ctx, &model.ModelChannel{
		ModelName: modelName, ChannelID: chID, TargetModels: targetModels, IsActive: true,
	}))
	_, err = repo.Channels().CreateKey(ctx, &model.ChannelKey{
		ChannelID: chID, APIKey: "sk-test", IsActive: true,
	})
	require.NoError(t, err)
}

func newService(t *testing.T, repo store.Repository) *Service {
	t.Helper()
	client := httpclient.New(5 * time.Second)
	resolver := storage.NewResolver(config.StorageConfig{
		LocalDir:      t.TempDir(),
		PublicBaseURL: "http://localhost:8080",
	}, client)
	cfg := config.ProvidersConfig{
		Vidu:     config.ProviderConfig{PollSeconds: 0, PollAttempts: 5},
		Seedance: config.ProviderConfig{PollSeconds: 0, PollAttempts: 5},
	}
	return NewService(
		services.NewRouterService(repo),
		services.NewLedgerService(repo),
		resolver,
		cfg,
		client,
	)
}

func TestGenerateViduEndToEnd(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/text2video":
			assert.Equal(t, "Token sk-test", r.Header.Get("Authorization"))
			var body map[string]interface{}
			_ = json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, "viduq1", body["model"])
			assert.Equal(t, "a drone shot of cliffs", body["prompt"])
			_ = json.NewEncoder(w).Encode(map[string]string{"task_id": "up-1", "state": "created"})
		case r.Method == http.MethodGet && r.URL.Path == "/tasks/up-1/creations":
			if polls.Add(1) < 3 {
				_ = json.NewEncoder(w).Encode(map[string]interface{}{"state": "processing"})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"state":     "success",
				"creations": []map[string]string{{"url": "https://cdn.vidu.example/out.mp4"}},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	repo := newTestRepo(t)
	seedRoute(t, repo, "vidu", "vidu-video", `["viduq1"]`, server.URL)
	svc := newService(t, repo)

	result, err := svc.Generate(context.Background(), "vidu-video", &GenerationRequest{Prompt: "a drone shot of cliffs"})
	require.NoError(t, err)

	assert.Equal(t, "up-1", result.UpstreamID)
	assert.Equal(t, "vidu", result.Provider)
	assert.Equal(t, "https://cdn.vidu.example/out.mp4", result.VideoURL)
	assert.Equal(t, int32(3), polls.Load())

	logs, err := repo.Requests().GetRecent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Success)
}

func TestGenerateSeedanceEndToEnd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/contents/generations/tasks":
			assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "ark-9"})
		case r.Method == http.MethodGet && r.URL.Path == "/contents/generations/tasks/ark-9":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"status":  "succeeded",
				"content": map[string]string{"video_url": "https://ark.example/v.mp4"},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	repo := newTestRepo(t)
	seedRoute(t, repo, "doubao", "seedance-pro", `["seedance-1-0-pro"]`, server.URL)
	svc := newService(t, repo)

	result, err := svc.Generate(context.Background(), "seedance-pro", &GenerationRequest{Prompt: "city timelapse"})
	require.NoError(t, err)
	assert.Equal(t, "https://ark.example/v.mp4", result.VideoURL)
}

func TestGenerateUpstreamFailureIsRecorded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			_ = json.NewEncoder(w).Encode(map[string]string{"task_id": "up-2"})
		default:
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"state":   "failed",
				"err_msg": "prompt rejected",
			})
		}
	}))
	defer server.Close()

	repo := newTestRepo(t)
	seedRoute(t, repo, "vidu", "vidu-video", `["viduq1"]`, server.URL)
	svc := newService(t, repo)

	_, err := svc.Generate(context.Background(), "vidu-video", &GenerationRequest{Prompt: "x"})
	require.Error(t, err)

	logs, logErr := repo.Requests().GetRecent(context.Background(), 5)
	require.NoError(t, logErr)
	require.Len(t, logs, 1)
	assert.False(t, logs[0].Success)
	assert.Contains(t, logs[0].ErrorText.String, "prompt rejected")
}

func TestGenerateTimesOutWhenNeverTerminal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_ = json.NewEncoder(w).Encode(map[string]string{"task_id": "up-3"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"state": "processing"})
	}))
	defer server.Close()

	repo := newTestRepo(t)
	seedRoute(t, repo, "vidu", "vidu-video", `["viduq1"]`, server.URL)
	svc := newService(t, repo)

	_, err := svc.Generate(context.Background(), "vidu-video", &GenerationRequest{Prompt: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPollTimeout)
}

func TestGenerateSubmitErrorBubblesStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"message":"quota exceeded"}`)
	}))
	defer server.Close()

	repo := newTestRepo(t)
	seedRoute(t, repo, "vidu", "vidu-video", `["viduq1"]`, server.URL)
	svc := newService(t, repo)

	_, err := svc.Generate(context.Background(), "vidu-video", &GenerationRequest{Prompt: "x"})
	require.Error(t, err)

	logs, logErr := repo.Requests().GetRecent(context.Background(), 5)
	require.NoError(t, logErr)
	require.Len(t, logs, 1)
	assert.Equal(t, http.StatusTooManyRequests, logs[0].StatusCode)
}

func TestGenerateNoCredential(t *testing.T) {
	repo := newTestRepo(t)
	svc := newService(t, repo)

	_, err := svc.Generate(context.Background(), "vidu-video", &GenerationRequest{Prompt: "x"})
	assert.ErrorIs(t, err, domain.ErrNoCredential)
}
