package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/davshaw/gengate/internal/core/domain"
	"github.com/davshaw/gengate/internal/store"
	"github.com/davshaw/gengate/internal/store/model"
)

// Keys are pulled out of rotation after this many failures in a row.
const maxConsecutiveFails = 5

// DB defines the interface for database operations (satisfied by *sqlx.DB and *sqlx.Tx)
type DB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SqliteRepository implements store.Repository
type SqliteRepository struct {
	db       *sqlx.DB // Required for starting new transactions
	executor DB       // Used for actual queries (can be *sqlx.DB or *sqlx.Tx)
}

func NewSqliteRepository(db *sqlx.DB) *SqliteRepository {
	return &SqliteRepository{
		db:       db,
		executor: db,
	}
}

func (r *SqliteRepository) Close() error {
	return r.db.Close()
}

func (r *SqliteRepository) WithTx(ctx context.Context, fn func(repo store.Repository) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	// Create a repository instance that uses the transaction
	txRepo := &SqliteRepository{
		db:       r.db, // Keep the original DB handle
		executor: tx,
	}

	if err := fn(txRepo); err != nil {
		// attempt rollback, but prioritize original error
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

func (r *SqliteRepository) Channels() store.ChannelRepository {
	return &channelRepo{db: r.executor}
}

func (r *SqliteRepository) Tasks() store.TaskRepository {
	return &taskRepo{db: r.executor}
}

func (r *SqliteRepository) Accounts() store.AccountRepository {
	return &accountRepo{db: r.executor}
}

func (r *SqliteRepository) Requests() store.RequestRepository {
	return &requestRepo{db: r.executor}
}

func (r *SqliteRepository) Config() store.ConfigRepository {
	return &configRepo{db: r.executor}
}

type channelRepo struct {
	db DB
}

func (r *channelRepo) GetChannelForModel(ctx context.Context, modelName string) (*model.Channel, error) {
	var ch model.Channel
	query := `
	SELECT c.* FROM channels c
	JOIN model_channels mc ON mc.channel_id = c.id
	WHERE mc.model_name = ? AND mc.is_active = 1 AND c.is_active = 1
	ORDER BY c.use_count ASC, c.id ASC LIMIT 1`
	if err := r.db.GetContext(ctx, &ch, query, modelName); err != nil {
		return nil, err
	}
	return &ch, nil
}

func (r *channelRepo) GetModelChannel(ctx context.Context, modelName string) (*model.ModelChannel, error) {
	var mc model.ModelChannel
	err := r.db.GetContext(ctx, &mc, `SELECT * FROM model_channels WHERE model_name = ? AND is_active = 1`, modelName)
	if err != nil {
		return nil, err
	}
	return &mc, nil
}

func (r *channelRepo) GetActiveKeyForChannel(ctx context.Context, channelID int64) (*model.ChannelKey, error) {
	var key model.ChannelKey
	query := `
	SELECT * FROM channel_keys
	WHERE channel_id = ? AND is_active = 1
	ORDER BY use_count ASC, id ASC LIMIT 1`
	if err := r.db.GetContext(ctx, &key, query, channelID); err != nil {
		return nil, err
	}
	return &key, nil
}

func (r *channelRepo) GetActiveLegacyKey(ctx context.Context, provider string) (*model.LegacyAPIKey, error) {
	var key model.LegacyAPIKey
	query := `
	SELECT * FROM api_keys
	WHERE provider = ? AND is_active = 1
	ORDER BY use_count ASC, id ASC LIMIT 1`
	if err := r.db.GetContext(ctx, &key, query, provider); err != nil {
		return nil, err
	}
	return &key, nil
}

func (r *channelRepo) RecordChannelUsage(ctx context.Context, channelID int64, success bool) error {
	query := `
	UPDATE channels SET
		use_count = use_count + 1,
		success_count = success_count + ?,
		fail_count = fail_count + ?,
		updated_at = CURRENT_TIMESTAMP
	WHERE id = ?`
	succ, fail := 0, 1
	if success {
		succ, fail = 1, 0
	}
	_, err := r.db.ExecContext(ctx, query, succ, fail, channelID)
	return err
}

func (r *channelRepo) RecordKeyUsage(ctx context.Context, keyID int64, success bool) error {
	if success {
		query := `
		UPDATE channel_keys SET
			use_count = use_count + 1,
			success_count = success_count + 1,
			consecutive_fails = 0,
			last_used_at = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`
		_, err := r.db.ExecContext(ctx, query, time.Now(), keyID)
		return err
	}

	query := `
	UPDATE channel_keys SET
		use_count = use_count + 1,
		fail_count = fail_count + 1,
		consecutive_fails = consecutive_fails + 1,
		is_active = CASE WHEN consecutive_fails + 1 >= ? THEN 0 ELSE is_active END,
		last_used_at = ?,
		updated_at = CURRENT_TIMESTAMP
	WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, maxConsecutiveFails, time.Now(), keyID)
	return err
}

func (r *channelRepo) RecordLegacyKeyUsage(ctx context.Context, keyID int64) error {
	query := `UPDATE api_keys SET use_count = use_count + 1, last_used_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, time.Now(), keyID)
	return err
}

func (r *channelRepo) ListLegacyKeys(ctx context.Context) ([]model.LegacyAPIKey, error) {
	var keys []model.LegacyAPIKey
	err := r.db.SelectContext(ctx, &keys, `SELECT * FROM api_keys ORDER BY id`)
	return keys, err
}

func (r *channelRepo) CreateLegacyKey(ctx context.Context, key *model.LegacyAPIKey) (int64, error) {
	query := `INSERT INTO api_keys (provider, api_key, is_active) VALUES (:provider, :api_key, :is_active)`
	res, err := r.db.NamedExecContext(ctx, query, key)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *channelRepo) DeleteLegacyKey(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = ?`, id)
	return err
}

func (r *channelRepo) ListChannels(ctx context.Context) ([]model.Channel, error) {
	var channels []model.Channel
	err := r.db.SelectContext(ctx, &channels, `SELECT * FROM channels ORDER BY id`)
	return channels, err
}

func (r *channelRepo) CreateChannel(ctx context.Context, ch *model.Channel) (int64, error) {
	query := `
	INSERT INTO channels (name, provider, channel_type, base_url, storage_type, is_active)
	VALUES (:name, :provider, :channel_type, :base_url, :storage_type, :is_active)`
	res, err := r.db.NamedExecContext(ctx, query, ch)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *channelRepo) UpdateChannel(ctx context.Context, ch *model.Channel) error {
	query := `
	UPDATE channels SET
		name = :name,
		provider = :provider,
		channel_type = :channel_type,
		base_url = :base_url,
		storage_type = :storage_type,
		is_active = :is_active,
		updated_at = CURRENT_TIMESTAMP
	WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, ch)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *channelRepo) DeleteChannel(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM channels WHERE id = ?`, id)
	return err
}

func (r *channelRepo) ListKeys(ctx context.Context, channelID int64) ([]model.ChannelKey, error) {
	var keys []model.ChannelKey
	err := r.db.SelectContext(ctx, &keys, `SELECT * FROM channel_keys WHERE channel_id = ? ORDER BY id`, channelID)
	return keys, err
}

func (r *channelRepo) CreateKey(ctx context.Context, key *model.ChannelKey) (int64, error) {
	query := `
	INSERT INTO channel_keys (channel_id, api_key, name, is_active)
	VALUES (:channel_id, :api_key, :name, :is_active)`
	res, err := r.db.NamedExecContext(ctx, query, key)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *channelRepo) DeleteKey(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM channel_keys WHERE id = ?`, id)
	return err
}

func (r *channelRepo) ListModelChannels(ctx context.Context) ([]model.ModelChannel, error) {
	var mcs []model.ModelChannel
	err := r.db.SelectContext(ctx, &mcs, `SELECT * FROM model_channels ORDER BY model_name`)
	return mcs, err
}

func (r *channelRepo) UpsertModelChannel(ctx context.Context, mc *model.ModelChannel) error {
	query := `
	INSERT INTO model_channels (model_name, channel_id, target_models, is_active)
	VALUES (:model_name, :channel_id, :target_models, :is_active)
	ON CONFLICT(model_name) DO UPDATE SET
		channel_id = excluded.channel_id,
		target_models = excluded.target_models,
		is_active = excluded.is_active,
		updated_at = CURRENT_TIMESTAMP`
	_, err := r.db.NamedExecContext(ctx, query, mc)
	return err
}

func (r *channelRepo) DeleteModelChannel(ctx context.Context, modelName string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM model_channels WHERE model_name = ?`, modelName)
	return err
}

type taskRepo struct {
	db DB
}

func (r *taskRepo) Create(ctx context.Context, task *model.GenerationTask) error {
	query := `
	INSERT INTO gen_tasks (task_id, user_id, account_id, prompt, action, status, progress)
	VALUES (:task_id, :user_id, :account_id, :prompt, :action, :status, :progress)`
	_, err := r.db.NamedExecContext(ctx, query, task)
	return err
}

func (r *taskRepo) Get(ctx context.Context, taskID string) (*model.GenerationTask, error) {
	var task model.GenerationTask
	err := r.db.GetContext(ctx, &task, `SELECT * FROM gen_tasks WHERE task_id = ?`, taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *taskRepo) GetByMessageID(ctx context.Context, accountID int64, messageID string) (*model.GenerationTask, error) {
	var task model.GenerationTask
	query := `
	SELECT * FROM gen_tasks
	WHERE account_id = ? AND message_id = ? AND status IN ('SUBMITTED', 'IN_PROGRESS')
	LIMIT 1`
	err := r.db.GetContext(ctx, &task, query, accountID, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *taskRepo) GetPending(ctx context.Context, accountID int64) ([]model.GenerationTask, error) {
	var tasks []model.GenerationTask
	query := `
	SELECT * FROM gen_tasks
	WHERE account_id = ? AND status IN ('SUBMITTED', 'IN_PROGRESS')
	ORDER BY created_at DESC, rowid DESC`
	err := r.db.SelectContext(ctx, &tasks, query, accountID)
	return tasks, err
}

func (r *taskRepo) Update(ctx context.Context, taskID string, patch *model.TaskPatch) error {
	sets := []string{"updated_at = CURRENT_TIMESTAMP"}
	args := []interface{}{}

	add := func(column string, value *string) {
		if value != nil {
			sets = append(sets, column+" = ?")
			args = append(args, *value)
		}
	}
	add("status", patch.Status)
	add("message_id", patch.MessageID)
	add("message_hash", patch.MessageHash)
	add("image_url", patch.ImageURL)
	add("stored_url", patch.StoredURL)
	add("progress", patch.Progress)
	add("buttons", patch.Buttons)
	add("fail_reason", patch.FailReason)

	args = append(args, taskID)
	query := `UPDATE gen_tasks SET ` + strings.Join(sets, ", ") + ` WHERE task_id = ?`
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

func (r *taskRepo) List(ctx context.Context, limit int) ([]model.GenerationTask, error) {
	var tasks []model.GenerationTask
	err := r.db.SelectContext(ctx, &tasks, `SELECT * FROM gen_tasks ORDER BY created_at DESC LIMIT ?`, limit)
	return tasks, err
}

type accountRepo struct {
	db DB
}

func (r *accountRepo) Get(ctx context.Context, id int64) (*model.BotAccount, error) {
	var acc model.BotAccount
	err := r.db.GetContext(ctx, &acc, `SELECT * FROM bot_accounts WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (r *accountRepo) ListActive(ctx context.Context) ([]model.BotAccount, error) {
	var accs []model.BotAccount
	err := r.db.SelectContext(ctx, &accs, `SELECT * FROM bot_accounts WHERE is_active = 1 ORDER BY id`)
	return accs, err
}

func (r *accountRepo) List(ctx context.Context) ([]model.BotAccount, error) {
	var accs []model.BotAccount
	err := r.db.SelectContext(ctx, &accs, `SELECT * FROM bot_accounts ORDER BY id`)
	return accs, err
}

func (r *accountRepo) Create(ctx context.Context, acc *model.BotAccount) (int64, error) {
	query := `
	INSERT INTO bot_accounts (name, user_token, guild_id, channel_id, is_active)
	VALUES (:name, :user_token, :guild_id, :channel_id, :is_active)`
	res, err := r.db.NamedExecContext(ctx, query, acc)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *accountRepo) Update(ctx context.Context, id int64, patch *model.AccountPatch) error {
	sets := []string{"updated_at = CURRENT_TIMESTAMP"}
	args := []interface{}{}

	if patch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *patch.Name)
	}
	if patch.UserToken != nil {
		sets = append(sets, "user_token = ?")
		args = append(args, *patch.UserToken)
	}
	if patch.GuildID != nil {
		sets = append(sets, "guild_id = ?")
		args = append(args, *patch.GuildID)
	}
	if patch.ChannelID != nil {
		sets = append(sets, "channel_id = ?")
		args = append(args, *patch.ChannelID)
	}
	if patch.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, *patch.IsActive)
	}
	if patch.LastError != nil {
		sets = append(sets, "last_error = ?")
		args = append(args, *patch.LastError)
	}

	args = append(args, id)
	query := `UPDATE bot_accounts SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *accountRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM bot_accounts WHERE id = ?`, id)
	return err
}

func (r *accountRepo) IncrementUsage(ctx context.Context, id int64, success bool) error {
	query := `
	UPDATE bot_accounts SET
		request_count = request_count + 1,
		error_count = error_count + ?,
		updated_at = CURRENT_TIMESTAMP
	WHERE id = ?`
	fail := 1
	if success {
		fail = 0
	}
	_, err := r.db.ExecContext(ctx, query, fail, id)
	return err
}

type requestRepo struct {
	db DB
}

func (r *requestRepo) Log(ctx context.Context, log *model.RequestLog) error {
	query := `
	INSERT INTO request_logs (model_name, provider, channel_id, key_id, success, latency_ms, status_code, error_text)
	VALUES (:model_name, :provider, :channel_id, :key_id, :success, :latency_ms, :status_code, :error_text)`
	_, err := r.db.NamedExecContext(ctx, query, log)
	return err
}

func (r *requestRepo) GetRecent(ctx context.Context, limit int) ([]model.RequestLog, error) {
	var logs []model.RequestLog
	err := r.db.SelectContext(ctx, &logs, `SELECT * FROM request_logs ORDER BY created_at DESC LIMIT ?`, limit)
	return logs, err
}

type configRepo struct {
	db DB
}

func (r *configRepo) Get(ctx context.Context, key string) (string, error) {
	var cfg model.SystemConfig
	if err := r.db.GetContext(ctx, &cfg, `SELECT * FROM system_config WHERE key = ?`, key); err != nil {
		return "", err
	}
	return cfg.Value, nil
}

func (r *configRepo) Set(ctx context.Context, key, value string) error {
	query := `
	INSERT INTO system_config (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`
	_, err := r.db.ExecContext(ctx, query, key, value)
	return err
}
