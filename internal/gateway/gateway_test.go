package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/academy-api/internal/config"
	"github.com/jwalitptl/academy-api/internal/model"
	"github.com/jwalitptl/academy-api/internal/repository"
	apperrors "github.com/jwalitptl/academy-api/pkg/errors"
	"github.com/jwalitptl/academy-api/pkg/messaging"
)

type stubSender struct {
	err   error
	calls int32
}

func (s *stubSender) Deliver(context.Context, uuid.UUID, string) error {
	atomic.AddInt32(&s.calls, 1)
	return s.err
}

func TestMultiplexer_BothSendsOnEachChannel(t *testing.T) {
	inApp, sms := &stubSender{}, &stubSender{}
	mux := NewMultiplexer(inApp, sms)

	require.NoError(t, mux.Send(context.Background(), uuid.New(), "hi", model.ChannelBoth))
	assert.Equal(t, int32(1), inApp.calls)
	assert.Equal(t, int32(1), sms.calls)
}

func TestMultiplexer_WrapsFailures(t *testing.T) {
	mux := NewMultiplexer(&stubSender{}, &stubSender{err: errors.New("provider down")})

	err := mux.Send(context.Background(), uuid.New(), "hi", model.ChannelSMS)
	require.Error(t, err)
	assert.True(t, apperrors.IsExternalDelivery(err))

	err = mux.Send(context.Background(), uuid.New(), "hi", "pigeon")
	assert.True(t, apperrors.IsValidation(err))
}

type directoryStub struct {
	repository.DirectoryRepository
	accounts map[uuid.UUID]*model.Account
}

func (d *directoryStub) Account(_ context.Context, id uuid.UUID) (*model.Account, error) {
	a, ok := d.accounts[id]
	if !ok {
		return nil, apperrors.NotFound("account", nil)
	}
	return a, nil
}

func newTestSMSSender(t *testing.T, url string, dir repository.DirectoryRepository) *SMSSender {
	t.Helper()
	s := NewSMSSender(config.SMSConfig{
		Enabled: true,
		BaseURL: url,
		APIKey:  "secret",
		Sender:  "Academy",
		Timeout: time.Second,
	}, dir)
	s.newBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)
	}
	return s
}

func TestSMSSender_PostsToProvider(t *testing.T) {
	var got smsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	user := uuid.New()
	dir := &directoryStub{accounts: map[uuid.UUID]*model.Account{user: {ID: user, Phone: "+966500000000"}}}

	require.NoError(t, newTestSMSSender(t, srv.URL, dir).Deliver(context.Background(), user, "pay soon"))
	assert.Equal(t, "+966500000000", got.To)
	assert.Equal(t, "Academy", got.From)
	assert.Equal(t, "pay soon", got.Body)
}

func TestSMSSender_RetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	user := uuid.New()
	dir := &directoryStub{accounts: map[uuid.UUID]*model.Account{user: {ID: user, Phone: "1"}}}

	require.NoError(t, newTestSMSSender(t, srv.URL, dir).Deliver(context.Background(), user, "x"))
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestSMSSender_DoesNotRetryRejections(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	user := uuid.New()
	dir := &directoryStub{accounts: map[uuid.UUID]*model.Account{user: {ID: user, Phone: "1"}}}

	err := newTestSMSSender(t, srv.URL, dir).Deliver(context.Background(), user, "x")
	assert.True(t, apperrors.IsExternalDelivery(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestSMSSender_MissingPhone(t *testing.T) {
	user := uuid.New()
	dir := &directoryStub{accounts: map[uuid.UUID]*model.Account{user: {ID: user}}}

	err := newTestSMSSender(t, "http://unused", dir).Deliver(context.Background(), user, "x")
	assert.True(t, apperrors.IsExternalDelivery(err))
	assert.ErrorIs(t, err, errNoPhone)
}

func TestSMSSender_Disabled(t *testing.T) {
	s := NewSMSSender(config.SMSConfig{}, &directoryStub{})
	assert.True(t, apperrors.IsExternalDelivery(s.Deliver(context.Background(), uuid.New(), "x")))
}

type notificationStore struct {
	mu      sync.Mutex
	created []*model.Notification
	events  []*model.OutboxEvent
	err     error
}

func (n *notificationStore) CreateWithEvent(_ context.Context, notification *model.Notification, event *model.OutboxEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	event.AggregateID = notification.ID
	n.created = append(n.created, notification)
	n.events = append(n.events, event)
	return nil
}

func (n *notificationStore) UpdateStatus(context.Context, uuid.UUID, model.NotificationStatus) error {
	return nil
}

func TestInAppSender_StoresRowAndPushEvent(t *testing.T) {
	store := &notificationStore{}
	sender := NewInAppSender(store)
	user := uuid.New()

	require.NoError(t, sender.Deliver(context.Background(), user, "renewal due"))

	require.Len(t, store.created, 1)
	require.Len(t, store.events, 1)
	n, event := store.created[0], store.events[0]
	assert.Equal(t, model.NotificationStatusPending, n.Status)
	assert.Equal(t, EventInAppNotification, event.EventType)
	assert.Equal(t, messaging.InboxChannel(user), event.Channel)

	var payload model.NotificationEvent
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, n.ID, payload.NotificationID)
	assert.Equal(t, "renewal due", payload.Content)
}

func TestInAppSender_StoreFailure(t *testing.T) {
	sender := NewInAppSender(&notificationStore{err: errors.New("connection reset")})

	err := sender.Deliver(context.Background(), uuid.New(), "renewal due")
	assert.True(t, apperrors.IsExternalDelivery(err))
}
