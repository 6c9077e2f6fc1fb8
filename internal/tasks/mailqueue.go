package tasks

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/hugh/go-identity/internal/mail"
)

// Enqueuer is the part of *asynq.Client used here.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// MailQueue hands messages to the worker instead of calling the mail service inline.
type MailQueue struct {
	client Enqueuer
}

func NewMailQueue(client Enqueuer) *MailQueue {
	return &MailQueue{client: client}
}

func (q *MailQueue) Send(ctx context.Context, msg mail.Message) error {
	task, err := NewSendMailTask(msg)
	if err != nil {
		return fmt.Errorf("building mail task: %w", err)
	}
	if _, err := q.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueueing mail: %w", err)
	}
	return nil
}

var _ mail.Sender = (*MailQueue)(nil)
