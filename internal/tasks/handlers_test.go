package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/go-identity/internal/credentials"
	"github.com/hugh/go-identity/internal/database/models"
	"github.com/hugh/go-identity/internal/mail"
	"github.com/hugh/go-identity/internal/obs"
	"github.com/hugh/go-identity/internal/testutil"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

type noopSweeper struct{}

func (noopSweeper) Sweep(context.Context, time.Time) (int64, error) { return 0, nil }

func TestNewSendMailTask(t *testing.T) {
	msg := mail.Message{To: "a@example.com", Subject: "Hi", EmailType: mail.TypeInvitation, HTML: "<p>x</p>"}

	task, err := NewSendMailTask(msg)
	require.NoError(t, err)
	assert.Equal(t, TypeSendMail, task.Type())

	var payload SendMailPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, msg, payload.Message)
}

func TestMailQueue_Send(t *testing.T) {
	enq := &fakeEnqueuer{}
	q := NewMailQueue(enq)

	msg, err := mail.Invitation("new@example.com", "https://app.example.com/start")
	require.NoError(t, err)
	require.NoError(t, q.Send(context.Background(), msg))

	require.Len(t, enq.tasks, 1)
	assert.Equal(t, TypeSendMail, enq.tasks[0].Type())

	enq.err = errors.New("redis down")
	err = q.Send(context.Background(), msg)
	assert.ErrorContains(t, err, "enqueueing mail")
}

func TestHandleSendMail(t *testing.T) {
	recorder := &testutil.MailRecorder{}
	handler := NewHandler(recorder, noopSweeper{}, testutil.DiscardLogger())

	t.Run("delivers", func(t *testing.T) {
		msg := mail.Message{To: "a@example.com", Subject: "Reset", EmailType: mail.TypePasswordReset}
		task, err := NewSendMailTask(msg)
		require.NoError(t, err)

		require.NoError(t, handler.HandleSendMail(context.Background(), task))
		require.Len(t, recorder.Messages, 1)
		assert.Equal(t, msg, recorder.Messages[0])
	})

	t.Run("invalid payload is not retried", func(t *testing.T) {
		task := asynq.NewTask(TypeSendMail, []byte("invalid json"))

		err := handler.HandleSendMail(context.Background(), task)
		assert.ErrorIs(t, err, asynq.SkipRetry)
		assert.Contains(t, err.Error(), "unmarshal payload")
	})

	t.Run("missing recipient is not retried", func(t *testing.T) {
		task, err := NewSendMailTask(mail.Message{Subject: "x"})
		require.NoError(t, err)

		assert.ErrorIs(t, handler.HandleSendMail(context.Background(), task), asynq.SkipRetry)
	})

	t.Run("delivery failure is retried", func(t *testing.T) {
		failing := &testutil.MailRecorder{Err: errors.New("502 from mail service")}
		h := NewHandler(failing, noopSweeper{}, testutil.DiscardLogger())
		task, err := NewSendMailTask(mail.Message{To: "a@example.com"})
		require.NoError(t, err)

		err = h.HandleSendMail(context.Background(), task)
		require.Error(t, err)
		assert.NotErrorIs(t, err, asynq.SkipRetry)
	})
}

func TestHandleSweepTokens(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := testutil.TestContext(t)
	store := credentials.NewGormStore(db)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		user := testutil.CreateTestUser(t, db, "", models.RoleUser)
		require.NoError(t, store.Put(ctx, user.ID, "tok", now.Add(-time.Minute)))
	}
	live := testutil.CreateTestUser(t, db, "", models.RoleUser)
	require.NoError(t, store.Put(ctx, live.ID, "tok", now.Add(time.Hour)))

	handler := NewHandler(&testutil.MailRecorder{}, store, testutil.DiscardLogger())
	handler.now = func() time.Time { return now }

	before := promtest.ToFloat64(obs.TokensSwept)
	require.NoError(t, handler.HandleSweepTokens(ctx, NewSweepTokensTask()))
	assert.Equal(t, before+3, promtest.ToFloat64(obs.TokensSwept))

	_, err := store.Get(ctx, live.ID)
	assert.NoError(t, err)
}

func TestRegisterHandlers(t *testing.T) {
	mux := asynq.NewServeMux()
	recorder := &testutil.MailRecorder{}
	NewHandler(recorder, noopSweeper{}, testutil.DiscardLogger()).RegisterHandlers(mux)

	task, err := NewSendMailTask(mail.Message{To: "a@example.com"})
	require.NoError(t, err)
	require.NoError(t, mux.ProcessTask(context.Background(), task))
	assert.Len(t, recorder.Messages, 1)

	assert.NoError(t, mux.ProcessTask(context.Background(), NewSweepTokensTask()))
}
