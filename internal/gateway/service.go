package gateway

import (
	"context"

	"github.com/google/uuid"
	"github.com/davshaw/gengate/internal/core/domain"
	"github.com/davshaw/gengate/internal/platform/logger"
	"github.com/davshaw/gengate/internal/store"
	"github.com/davshaw/gengate/internal/store/model"
	"go.uber.org/zap"
)

// TaskService submits generation work through the pool and tracks it
// in the task table. Completion arrives asynchronously through the
// correlator.
type TaskService struct {
	repo      store.Repository
	pool      *Pool
	commander *Commander
}

func NewTaskService(repo store.Repository, pool *Pool, commander *Commander) *TaskService {
	return &TaskService{repo: repo, pool: pool, commander: commander}
}

// Imagine submits a prompt and returns the new task id. The task id
// doubles as the interaction nonce.
func (s *TaskService) Imagine(ctx context.Context, userID, prompt string) (string, error) {
	conn, err := s.pool.Next()
	if err != nil {
		return "", err
	}
	account := conn.Account()

	taskID := uuid.NewString()
	task := &model.GenerationTask{
		TaskID:    taskID,
		UserID:    userID,
		AccountID: account.ID,
		Prompt:    prompt,
		Action:    "imagine",
		Status:    model.TaskStatusSubmitted,
		Progress:  "0",
	}
	if err := s.repo.Tasks().Create(ctx, task); err != nil {
		return "", err
	}

	if err := s.commander.SubmitImagine(ctx, account, conn.SessionID(), taskID, prompt); err != nil {
		s.failTask(ctx, account, taskID, err)
		return "", domain.ProviderError("imagine submission failed", err)
	}
	return taskID, nil
}

// Action clicks a button from a completed task's component set. The
// click must run on the account that produced the source message, and
// the new task inherits the source prompt.
func (s *TaskService) Action(ctx context.Context, userID, sourceTaskID, customID string) (string, error) {
	source, err := s.repo.Tasks().Get(ctx, sourceTaskID)
	if err != nil {
		return "", err
	}
	if !source.MessageID.Valid {
		return "", domain.NotFoundError("source task has no bound message")
	}

	conn, err := s.pool.ConnectionFor(source.AccountID)
	if err != nil {
		return "", err
	}
	account := conn.Account()

	taskID := uuid.NewString()
	task := &model.GenerationTask{
		TaskID:    taskID,
		UserID:    userID,
		AccountID: account.ID,
		Prompt:    source.Prompt,
		Action:    "action",
		Status:    model.TaskStatusSubmitted,
		Progress:  "0",
	}
	if err := s.repo.Tasks().Create(ctx, task); err != nil {
		return "", err
	}

	if err := s.commander.SubmitAction(ctx, account, conn.SessionID(), taskID, source.MessageID.String, customID); err != nil {
		s.failTask(ctx, account, taskID, err)
		return "", domain.ProviderError("action submission failed", err)
	}
	return taskID, nil
}

// Get returns the task for status polling.
func (s *TaskService) Get(ctx context.Context, taskID string) (*model.GenerationTask, error) {
	return s.repo.Tasks().Get(ctx, taskID)
}

func (s *TaskService) failTask(ctx context.Context, account *model.BotAccount, taskID string, cause error) {
	status := model.TaskStatusFailure
	reason := cause.Error()
	if err := s.repo.Tasks().Update(ctx, taskID, &model.TaskPatch{
		Status:     &status,
		FailReason: &reason,
	}); err != nil {
		logger.Warn("Failed to mark task failed",
			zap.String("task_id", taskID),
			zap.Error(err),
		)
	}

	if err := s.repo.Accounts().IncrementUsage(ctx, account.ID, false); err != nil {
		logger.Warn("Failed to bump account error count",
			zap.Int64("account_id", account.ID),
			zap.Error(err),
		)
	}
	_ = s.repo.Accounts().Update(ctx, account.ID, &model.AccountPatch{LastError: &reason})
}
