package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-metal/internal/events"
	"github.com/noah-isme/backend-metal/internal/lock"
	"github.com/noah-isme/backend-metal/internal/notify"
	"github.com/noah-isme/backend-metal/internal/resilience"
)

func sampleEvent() events.Event {
	return events.Event{
		ID:         "4c1f3c1e-6a38-4c39-9f55-0b9a4b1c2d10",
		Topic:      events.TopicOrderQuickRequested,
		Payload:    json.RawMessage(`{"kind":"quick","title":"Quick cart order"}`),
		OccurredAt: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
}

func newDeliverer(url string, srv *httptest.Server) *notify.Deliverer {
	return &notify.Deliverer{
		URL:    url,
		Secret: "secret",
		HTTP: &resilience.HTTPClient{
			Client:      srv.Client(),
			MaxAttempts: 2,
			BaseBackoff: time.Millisecond,
			Timeout:     time.Second,
		},
	}
}

func TestSignatureAndHeaders(t *testing.T) {
	type recorded struct {
		header http.Header
		body   []byte
	}
	received := make(chan recorded, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- recorded{header: r.Header.Clone(), body: body}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	ev := sampleEvent()
	status, err := newDeliverer(srv.URL, srv).Deliver(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)

	record := <-received
	require.Equal(t, "application/json", record.header.Get("Content-Type"))
	require.Equal(t, ev.ID, record.header.Get("X-Event-ID"))
	require.Equal(t, ev.ID, record.header.Get("X-Idempotency-Key"))
	ts, err := strconv.ParseInt(record.header.Get("X-Timestamp"), 10, 64)
	require.NoError(t, err)
	require.Equal(t, notify.ComputeSignature("secret", ts, ev.ID, record.body), record.header.Get("X-Signature"))

	var env struct {
		EventID string          `json:"eventId"`
		Topic   string          `json:"topic"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(record.body, &env))
	require.Equal(t, ev.Topic, env.Topic)
	require.JSONEq(t, string(ev.Payload), string(env.Data))
}

func TestComputeSignatureDependsOnEveryPart(t *testing.T) {
	base := notify.ComputeSignature("secret", 10, "evt", []byte("{}"))
	require.Len(t, base, 64)
	require.NotEqual(t, base, notify.ComputeSignature("other", 10, "evt", []byte("{}")))
	require.NotEqual(t, base, notify.ComputeSignature("secret", 11, "evt", []byte("{}")))
	require.NotEqual(t, base, notify.ComputeSignature("secret", 10, "evt2", []byte("{}")))
	require.NotEqual(t, base, notify.ComputeSignature("secret", 10, "evt", []byte("[]")))
}

func TestDeliverRejectsInsecureRemoteURL(t *testing.T) {
	d := &notify.Deliverer{URL: "http://intake.example.com/hook"}
	_, err := d.Deliver(context.Background(), sampleEvent())
	require.ErrorIs(t, err, notify.ErrPermanent)
}

func TestDeliverClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	t.Cleanup(srv.Close)

	status, err := newDeliverer(srv.URL, srv).Deliver(context.Background(), sampleEvent())
	require.ErrorIs(t, err, notify.ErrPermanent)
	require.Equal(t, http.StatusUnprocessableEntity, status)
}

func TestReplayProtectionSuppressesDuplicates(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	var hits atomic.Int32
	var fail atomic.Bool
	fail.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	d := newDeliverer(srv.URL, srv)
	d.Replay = notify.RedisReplayProtector{Client: client}
	d.ReplayTTL = time.Hour
	ev := sampleEvent()

	_, err := d.Deliver(context.Background(), ev)
	var statusErr *resilience.StatusError
	require.True(t, errors.As(err, &statusErr))
	require.False(t, mr.Exists("intake:wh:"+ev.ID), "failed delivery releases the replay key")

	fail.Store(false)
	status, err := d.Deliver(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, status)
	before := hits.Load()

	status, err = d.Deliver(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, before, hits.Load())
}

func TestIntakeWorkerForwardsTask(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)

	task, err := events.NewIntakeTask(sampleEvent())
	require.NoError(t, err)

	worker := notify.IntakeWorker{
		Deliverer: newDeliverer(srv.URL, srv),
		Locker:    lock.NewLocal(),
		Logger:    zerolog.Nop(),
	}
	require.NoError(t, worker.ProcessTask(context.Background(), task))
	require.EqualValues(t, 1, hits.Load())
}

func TestIntakeWorkerSkipsRetryOnPermanentFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	task, err := events.NewIntakeTask(sampleEvent())
	require.NoError(t, err)
	worker := notify.IntakeWorker{Deliverer: newDeliverer(srv.URL, srv), Logger: zerolog.Nop()}
	err = worker.ProcessTask(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = worker.ProcessTask(context.Background(), asynq.NewTask(events.TaskOrderIntake, []byte("not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestIntakeWorkerLogsWithoutWebhook(t *testing.T) {
	task, err := events.NewIntakeTask(sampleEvent())
	require.NoError(t, err)
	worker := notify.IntakeWorker{Logger: zerolog.Nop()}
	require.NoError(t, worker.ProcessTask(context.Background(), task))
}
