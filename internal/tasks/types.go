package tasks

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/go-identity/internal/mail"
	"github.com/hugh/go-identity/pkg/queue"
)

// Task type names
const (
	TypeSendMail    = "mail:send"
	TypeSweepTokens = "tokens:sweep"
)

// SendMailPayload carries one rendered message. The body may hold a reset link, so it is never logged.
type SendMailPayload struct {
	Message mail.Message `json:"message"`
}

func NewSendMailTask(msg mail.Message) (*asynq.Task, error) {
	data, err := json.Marshal(SendMailPayload{Message: msg})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeSendMail, data,
		asynq.Queue(queue.QueueCritical),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	), nil
}

// SweepTokensPayload is empty; the sweep removes every expired token.
type SweepTokensPayload struct{}

func NewSweepTokensTask() *asynq.Task {
	return asynq.NewTask(TypeSweepTokens, nil, asynq.Queue(queue.QueueLow), asynq.MaxRetry(1))
}
