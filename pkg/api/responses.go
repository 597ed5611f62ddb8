package api

import "time"

type ErrorResponse struct {
	Message string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	return e.Message
}

// SubmitResponse acknowledges an accepted asynchronous task.
type SubmitResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// TaskButton is one interactive component attached to a finished task.
type TaskButton struct {
	CustomID string `json:"custom_id"`
	Label    string `json:"label"`
	Emoji    string `json:"emoji,omitempty"`
}

// TaskResponse is the public view of a generation task.
type TaskResponse struct {
	TaskID     string       `json:"task_id"`
	Status     string       `json:"status"`
	Action     string       `json:"action"`
	Prompt     string       `json:"prompt"`
	Progress   string       `json:"progress"`
	ImageURL   string       `json:"image_url,omitempty"`
	Buttons    []TaskButton `json:"buttons,omitempty"`
	FailReason string       `json:"fail_reason,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// CreatedResponse acknowledges an admin insert.
type CreatedResponse struct {
	ID int64 `json:"id"`
}
