package gateway

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/davshaw/gengate/internal/platform/logger"
	"github.com/davshaw/gengate/internal/storage"
	"github.com/davshaw/gengate/internal/store"
	"github.com/davshaw/gengate/internal/store/model"
	"go.uber.org/zap"
)

var progressPattern = regexp.MustCompile(`\((\d+)%\)`)

// messageHashPattern pulls the generation hash out of an attachment
// filename like prompt_a1b2c3d4-....png.
var messageHashPattern = regexp.MustCompile(`(?i)_([a-f0-9-]+)\.`)

// promptPrefixLen bounds the prompt substring used for fallback
// matching against message content.
const promptPrefixLen = 20

const (
	defaultRecoveryDelay = 2500 * time.Millisecond
	recoveryFetchLimit   = 5
)

// Correlator binds bot messages back to pending generation tasks and
// walks them through IN_PROGRESS to a terminal state.
type Correlator struct {
	repo      store.Repository
	resolver  *storage.Resolver
	commander *Commander

	// StorageType controls how completed assets are re-hosted.
	StorageType string
	// RecoveryDelay is the pause before re-fetching after a delete.
	RecoveryDelay time.Duration
}

func NewCorrelator(repo store.Repository, resolver *storage.Resolver, commander *Commander) *Correlator {
	return &Correlator{
		repo:          repo,
		resolver:      resolver,
		commander:     commander,
		StorageType:   model.StorageTypeOSS,
		RecoveryDelay: defaultRecoveryDelay,
	}
}

func (c *Correlator) OnMessageCreate(ctx context.Context, account *model.BotAccount, msg *Message) {
	if !msg.Author.Bot {
		return
	}
	c.correlate(ctx, account, msg, true)
}

func (c *Correlator) OnMessageUpdate(ctx context.Context, account *model.BotAccount, msg *Message) {
	if !msg.Author.Bot {
		return
	}
	c.correlate(ctx, account, msg, false)
}

// correlate finds the pending task a message belongs to. Precedence:
// bound message id, nonce (create only), the single pending task, then
// a prompt-prefix match over pending tasks newest first.
func (c *Correlator) correlate(ctx context.Context, account *model.BotAccount, msg *Message, isCreate bool) {
	task := c.findTask(ctx, account, msg, isCreate)
	if task == nil {
		return
	}

	if isCompleted(msg) {
		c.completeTask(ctx, account, task, msg)
		return
	}
	c.recordProgress(ctx, task, msg)
}

func (c *Correlator) findTask(ctx context.Context, account *model.BotAccount, msg *Message, isCreate bool) *model.GenerationTask {
	tasks := c.repo.Tasks()

	if task, err := tasks.GetByMessageID(ctx, account.ID, msg.ID); err == nil {
		return task
	}

	if isCreate && msg.Nonce != "" {
		if task, err := tasks.Get(ctx, msg.Nonce); err == nil &&
			task.AccountID == account.ID && isPending(task.Status) {
			return task
		}
	}

	pending, err := tasks.GetPending(ctx, account.ID)
	if err != nil || len(pending) == 0 {
		return nil
	}
	if len(pending) == 1 {
		return &pending[0]
	}

	content := strings.ToLower(msg.Content)
	for i := range pending {
		prefix := promptPrefix(pending[i].Prompt)
		if prefix != "" && strings.Contains(content, prefix) {
			return &pending[i]
		}
	}
	return nil
}

func isPending(status string) bool {
	return status == model.TaskStatusSubmitted || status == model.TaskStatusInProgress
}

// promptPrefix truncates on rune boundaries so multibyte prompts
// still produce a substring the platform will echo back.
func promptPrefix(prompt string) string {
	p := strings.ToLower(strings.TrimSpace(prompt))
	if runes := []rune(p); len(runes) > promptPrefixLen {
		p = string(runes[:promptPrefixLen])
	}
	return p
}

// isCompleted decides whether a message is the final render. Buttons
// mean done; otherwise an attachment without a progress marker and not
// still queued counts as done.
func isCompleted(msg *Message) bool {
	if len(msg.Attachments) == 0 {
		return false
	}
	if len(msg.Components) > 0 {
		return true
	}
	return !progressPattern.MatchString(msg.Content) &&
		!strings.Contains(msg.Content, "Waiting to start")
}

func (c *Correlator) recordProgress(ctx context.Context, task *model.GenerationTask, msg *Message) {
	status := model.TaskStatusInProgress
	patch := &model.TaskPatch{
		Status:    &status,
		MessageID: &msg.ID,
	}
	if m := progressPattern.FindStringSubmatch(msg.Content); m != nil {
		progress := m[1] + "%"
		patch.Progress = &progress
	}

	if err := c.repo.Tasks().Update(ctx, task.TaskID, patch); err != nil {
		logger.Warn("Failed to record task progress",
			zap.String("task_id", task.TaskID),
			zap.Error(err),
		)
	}
}

func (c *Correlator) completeTask(ctx context.Context, account *model.BotAccount, task *model.GenerationTask, msg *Message) {
	attachment := msg.Attachments[0]

	status := model.TaskStatusSuccess
	progress := "100"
	patch := &model.TaskPatch{
		Status:    &status,
		Progress:  &progress,
		MessageID: &msg.ID,
		ImageURL:  &attachment.URL,
	}

	if m := messageHashPattern.FindStringSubmatch(attachment.Filename); m != nil {
		patch.MessageHash = &m[1]
	}

	if buttons := flattenButtons(msg.Components); len(buttons) > 0 {
		if encoded, err := json.Marshal(buttons); err == nil {
			s := string(encoded)
			patch.Buttons = &s
		}
	}

	// Re-hosting is best effort; the upstream URL survives a failure.
	if stored := c.resolver.Resolve(ctx, c.StorageType, attachment.URL); stored != attachment.URL {
		patch.StoredURL = &stored
	}

	if err := c.repo.Tasks().Update(ctx, task.TaskID, patch); err != nil {
		logger.Error("Failed to complete task",
			zap.String("task_id", task.TaskID),
			zap.Error(err),
		)
		return
	}

	if err := c.repo.Accounts().IncrementUsage(ctx, account.ID, true); err != nil {
		logger.Warn("Failed to bump account usage",
			zap.Int64("account_id", account.ID),
			zap.Error(err),
		)
	}

	logger.Info("Task completed",
		zap.String("task_id", task.TaskID),
		zap.String("message_id", msg.ID),
	)
}

func flattenButtons(rows []ComponentRow) []model.TaskButton {
	var buttons []model.TaskButton
	for _, row := range rows {
		for _, comp := range row.Components {
			if comp.Type != componentTypeButton {
				continue
			}
			b := model.TaskButton{CustomID: comp.CustomID, Label: comp.Label}
			if comp.Emoji != nil {
				b.Emoji = comp.Emoji.Name
			}
			buttons = append(buttons, b)
		}
	}
	return buttons
}

// OnMessageDelete handles the platform deleting a progress message
// right before posting the final one. After a short pause the channel
// is re-fetched; a completed-looking bot message finishes the task,
// otherwise it stays IN_PROGRESS for a later event.
func (c *Correlator) OnMessageDelete(ctx context.Context, account *model.BotAccount, del *MessageDelete) {
	task, err := c.repo.Tasks().GetByMessageID(ctx, account.ID, del.ID)
	if err != nil || task.Status != model.TaskStatusInProgress {
		return
	}

	select {
	case <-ctx.Done():
		return
	case <-time.After(c.RecoveryDelay):
	}

	messages, err := c.commander.FetchMessagesAfter(ctx, account, del.ID, recoveryFetchLimit)
	if err != nil {
		logger.Warn("Recovery fetch failed",
			zap.String("task_id", task.TaskID),
			zap.Error(err),
		)
		return
	}

	for i := range messages {
		msg := &messages[i]
		if !msg.Author.Bot || len(msg.Attachments) == 0 {
			continue
		}
		if len(msg.Components) > 0 || !progressPattern.MatchString(msg.Content) {
			c.completeTask(ctx, account, task, msg)
			return
		}
	}
}
