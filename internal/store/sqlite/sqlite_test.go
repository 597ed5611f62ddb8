package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/davshaw/gengate/internal/core/domain"
	"github.com/davshaw/gengate/internal/store"
	"github.com/davshaw/gengate/internal/store/model"
)

func newTestRepo(t *testing.T) store.Repository {
	t.Helper()
	repo, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func seedChannel(t *testing.T, repo store.Repository, name, modelName string) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := repo.Channels().CreateChannel(ctx, &model.Channel{
		Name:        name,
		Provider:    "vidu",
		ChannelType: model.ChannelTypeOfficial,
		BaseURL:     "https://api.example.com",
		StorageType: model.StorageTypeForward,
		IsActive:    true,
	})
	require.NoError(t, err)
	require.NoError(t, repo.Channels().UpsertModelChannel(ctx, &model.ModelChannel{
		ModelName:    modelName,
		ChannelID:    id,
		TargetModels: `["viduq1"]`,
		IsActive:     true,
	}))
	return id
}

func TestGetChannelForModel(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id := seedChannel(t, repo, "vidu-main", "vidu-video")

	ch, err := repo.Channels().GetChannelForModel(ctx, "vidu-video")
	require.NoError(t, err)
	assert.Equal(t, id, ch.ID)
	assert.Equal(t, "vidu-main", ch.Name)

	_, err = repo.Channels().GetChannelForModel(ctx, "unknown-model")
	assert.Error(t, err)
}

func TestGetActiveKeyForChannelPicksLeastUsed(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	chID := seedChannel(t, repo, "vidu-main", "vidu-video")

	k1, err := repo.Channels().CreateKey(ctx, &model.ChannelKey{ChannelID: chID, APIKey: "key-1", IsActive: true})
	require.NoError(t, err)
	k2, err := repo.Channels().CreateKey(ctx, &model.ChannelKey{ChannelID: chID, APIKey: "key-2", IsActive: true})
	require.NoError(t, err)

	// Ties break on lowest id
	key, err := repo.Channels().GetActiveKeyForChannel(ctx, chID)
	require.NoError(t, err)
	assert.Equal(t, k1, key.ID)

	require.NoError(t, repo.Channels().RecordKeyUsage(ctx, k1, true))

	key, err = repo.Channels().GetActiveKeyForChannel(ctx, chID)
	require.NoError(t, err)
	assert.Equal(t, k2, key.ID)
}

func TestRecordKeyUsageDeactivatesAfterConsecutiveFails(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	chID := seedChannel(t, repo, "vidu-main", "vidu-video")
	keyID, err := repo.Channels().CreateKey(ctx, &model.ChannelKey{ChannelID: chID, APIKey: "key-1", IsActive: true})
	require.NoError(t, err)

	for i := 0; i < maxConsecutiveFails-1; i++ {
		require.NoError(t, repo.Channels().RecordKeyUsage(ctx, keyID, false))
	}
	key, err := repo.Channels().GetActiveKeyForChannel(ctx, chID)
	require.NoError(t, err)
	assert.Equal(t, int64(maxConsecutiveFails-1), key.ConsecutiveFails)
	assert.True(t, key.IsActive)

	// A success resets the streak
	require.NoError(t, repo.Channels().RecordKeyUsage(ctx, keyID, true))
	key, err = repo.Channels().GetActiveKeyForChannel(ctx, chID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), key.ConsecutiveFails)

	// Five in a row pull the key out of rotation
	for i := 0; i < maxConsecutiveFails; i++ {
		require.NoError(t, repo.Channels().RecordKeyUsage(ctx, keyID, false))
	}
	_, err = repo.Channels().GetActiveKeyForChannel(ctx, chID)
	assert.Error(t, err)
}

func TestRecordChannelUsageCounters(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	chID := seedChannel(t, repo, "vidu-main", "vidu-video")

	require.NoError(t, repo.Channels().RecordChannelUsage(ctx, chID, true))
	require.NoError(t, repo.Channels().RecordChannelUsage(ctx, chID, false))

	channels, err := repo.Channels().ListChannels(ctx)
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Equal(t, int64(2), channels[0].UseCount)
	assert.Equal(t, int64(1), channels[0].SuccessCount)
	assert.Equal(t, int64(1), channels[0].FailCount)
}

func TestUpsertModelChannelReplacesMapping(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	chA := seedChannel(t, repo, "chan-a", "model-x")
	chB, err := repo.Channels().CreateChannel(ctx, &model.Channel{
		Name: "chan-b", Provider: "doubao", ChannelType: model.ChannelTypeProxy,
		StorageType: model.StorageTypeLocal, IsActive: true,
	})
	require.NoError(t, err)
	_ = chA

	require.NoError(t, repo.Channels().UpsertModelChannel(ctx, &model.ModelChannel{
		ModelName: "model-x", ChannelID: chB, TargetModels: `["doubao-pro"]`, IsActive: true,
	}))

	mc, err := repo.Channels().GetModelChannel(ctx, "model-x")
	require.NoError(t, err)
	assert.Equal(t, chB, mc.ChannelID)
	assert.Equal(t, `["doubao-pro"]`, mc.TargetModels)

	mcs, err := repo.Channels().ListModelChannels(ctx)
	require.NoError(t, err)
	assert.Len(t, mcs, 1)
}

func seedAccount(t *testing.T, repo store.Repository) int64 {
	t.Helper()
	id, err := repo.Accounts().Create(context.Background(), &model.BotAccount{
		Name: "acct-1", UserToken: "tok", GuildID: "g1", ChannelID: "c1", IsActive: true,
	})
	require.NoError(t, err)
	return id
}

func TestTaskLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	accID := seedAccount(t, repo)

	task := &model.GenerationTask{
		TaskID:    "task-1",
		UserID:    "user-1",
		AccountID: accID,
		Prompt:    "a lighthouse at dusk",
		Action:    "imagine",
		Status:    model.TaskStatusSubmitted,
		Progress:  "0",
	}
	require.NoError(t, repo.Tasks().Create(ctx, task))

	got, err := repo.Tasks().Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusSubmitted, got.Status)

	status := model.TaskStatusInProgress
	msgID := "msg-100"
	progress := "31%"
	require.NoError(t, repo.Tasks().Update(ctx, "task-1", &model.TaskPatch{
		Status:    &status,
		MessageID: &msgID,
		Progress:  &progress,
	}))

	got, err = repo.Tasks().Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusInProgress, got.Status)
	assert.Equal(t, "msg-100", got.MessageID.String)
	assert.Equal(t, "31%", got.Progress)

	byMsg, err := repo.Tasks().GetByMessageID(ctx, accID, "msg-100")
	require.NoError(t, err)
	assert.Equal(t, "task-1", byMsg.TaskID)
}

func TestTaskUpdateUnknownID(t *testing.T) {
	repo := newTestRepo(t)
	status := model.TaskStatusSuccess
	err := repo.Tasks().Update(context.Background(), "missing", &model.TaskPatch{Status: &status})
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}

func TestGetPendingExcludesTerminal(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	accID := seedAccount(t, repo)

	for _, tc := range []struct {
		id     string
		status string
	}{
		{"t-sub", model.TaskStatusSubmitted},
		{"t-prog", model.TaskStatusInProgress},
		{"t-done", model.TaskStatusSuccess},
		{"t-fail", model.TaskStatusFailure},
	} {
		require.NoError(t, repo.Tasks().Create(ctx, &model.GenerationTask{
			TaskID: tc.id, AccountID: accID, Status: model.TaskStatusSubmitted, Progress: "0",
		}))
		if tc.status != model.TaskStatusSubmitted {
			s := tc.status
			require.NoError(t, repo.Tasks().Update(ctx, tc.id, &model.TaskPatch{Status: &s}))
		}
	}

	pending, err := repo.Tasks().GetPending(ctx, accID)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	ids := []string{pending[0].TaskID, pending[1].TaskID}
	assert.ElementsMatch(t, []string{"t-sub", "t-prog"}, ids)
}

func TestGetPendingNewestFirstWithinSameSecond(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	accID := seedAccount(t, repo)

	// CURRENT_TIMESTAMP has one-second resolution, so back-to-back
	// inserts share a created_at and must still come back newest first.
	for _, id := range []string{"t-1", "t-2", "t-3"} {
		require.NoError(t, repo.Tasks().Create(ctx, &model.GenerationTask{
			TaskID: id, AccountID: accID, Status: model.TaskStatusSubmitted, Progress: "0",
		}))
	}

	pending, err := repo.Tasks().GetPending(ctx, accID)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "t-3", pending[0].TaskID)
	assert.Equal(t, "t-2", pending[1].TaskID)
	assert.Equal(t, "t-1", pending[2].TaskID)
}

func TestAccountIncrementUsage(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	accID := seedAccount(t, repo)

	require.NoError(t, repo.Accounts().IncrementUsage(ctx, accID, true))
	require.NoError(t, repo.Accounts().IncrementUsage(ctx, accID, false))

	acc, err := repo.Accounts().Get(ctx, accID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), acc.RequestCount)
	assert.Equal(t, int64(1), acc.ErrorCount)
}

func TestConfigRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Config().Set(ctx, "pool.size", "3"))
	require.NoError(t, repo.Config().Set(ctx, "pool.size", "5"))

	val, err := repo.Config().Get(ctx, "pool.size")
	require.NoError(t, err)
	assert.Equal(t, "5", val)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	err := repo.WithTx(ctx, func(txRepo store.Repository) error {
		if _, err := txRepo.Channels().CreateChannel(ctx, &model.Channel{
			Name: "tx-chan", Provider: "vidu", ChannelType: model.ChannelTypeOfficial,
			StorageType: model.StorageTypeForward, IsActive: true,
		}); err != nil {
			return err
		}
		return assert.AnError
	})
	require.Error(t, err)

	channels, err := repo.Channels().ListChannels(ctx)
	require.NoError(t, err)
	assert.Empty(t, channels)
}
