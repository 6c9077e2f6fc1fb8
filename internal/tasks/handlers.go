package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/go-identity/internal/mail"
	"github.com/hugh/go-identity/internal/obs"
)

// Sweeper removes stored tokens that expired before now.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (int64, error)
}

type Handler struct {
	sender  mail.Sender
	sweeper Sweeper
	logger  *slog.Logger
	now     func() time.Time
}

func NewHandler(sender mail.Sender, sweeper Sweeper, logger *slog.Logger) *Handler {
	return &Handler{
		sender:  sender,
		sweeper: sweeper,
		logger:  logger,
		now:     time.Now,
	}
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeSendMail, h.HandleSendMail)
	mux.HandleFunc(TypeSweepTokens, h.HandleSweepTokens)
}

func (h *Handler) HandleSendMail(ctx context.Context, t *asynq.Task) error {
	var payload SendMailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	msg := payload.Message
	if msg.To == "" {
		return fmt.Errorf("mail without recipient: %w", asynq.SkipRetry)
	}

	if err := h.sender.Send(ctx, msg); err != nil {
		h.logger.Warn("mail delivery failed", "type", msg.EmailType, "error", err)
		return err
	}

	h.logger.Info("mail delivered", "type", msg.EmailType, "subject", msg.Subject)
	return nil
}

func (h *Handler) HandleSweepTokens(ctx context.Context, _ *asynq.Task) error {
	n, err := h.sweeper.Sweep(ctx, h.now())
	if err != nil {
		return err
	}

	obs.TokensSwept.Add(float64(n))
	if n > 0 {
		h.logger.Info("expired tokens swept", "count", n)
	}
	return nil
}
