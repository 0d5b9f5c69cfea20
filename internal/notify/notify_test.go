package notify

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gigflow/internal/common/aws"
	"gigflow/internal/common/logger"
	"gigflow/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

func hireEvent(recipient string) *models.HireEvent {
	p := &models.Proposal{ID: "p1", TaskID: "t1", ProposerID: recipient, Message: "M1", Price: 400}
	task := models.TaskSummary{ID: "t1", Title: "Logo design", Budget: 500, Status: models.TaskAssigned, OwnerID: "A"}
	return models.NewHireEvent("e1", task, p, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
}

func receive(t *testing.T, sub *Subscription) *models.HireEvent {
	t.Helper()
	select {
	case e := <-sub.Events():
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func assertNoEvent(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case e := <-sub.Events():
		t.Fatalf("unexpected event %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

type fakeSNS struct {
	mu     sync.Mutex
	inputs []*sns.PublishInput
	err    error
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	return &sns.PublishOutput{}, f.err
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

// ==========================
// Registry
// ==========================

func TestRegistry_DeliversToEverySubscriptionOfRecipient(t *testing.T) {
	r := NewRegistry(4, logger.NewTestLogger(t))
	tab1 := r.Subscribe("B")
	tab2 := r.Subscribe("B")
	other := r.Subscribe("C")
	defer tab1.Close()
	defer tab2.Close()
	defer other.Close()

	assert.Equal(t, 2, r.Deliver(hireEvent("B")))
	assert.Equal(t, "B", receive(t, tab1).RecipientID)
	assert.Equal(t, "B", receive(t, tab2).RecipientID)
	assertNoEvent(t, other)
}

func TestRegistry_OfflineRecipientDropsEvent(t *testing.T) {
	r := NewRegistry(4, logger.NewTestLogger(t))
	assert.Equal(t, 0, r.Deliver(hireEvent("B")))

	sub := r.Subscribe("B")
	defer sub.Close()
	assertNoEvent(t, sub)
}

func TestRegistry_FullBufferDoesNotBlock(t *testing.T) {
	r := NewRegistry(1, logger.NewTestLogger(t))
	sub := r.Subscribe("B")
	defer sub.Close()

	assert.Equal(t, 1, r.Deliver(hireEvent("B")))
	assert.Equal(t, 0, r.Deliver(hireEvent("B")))
}

func TestRegistry_CloseRemovesSubscription(t *testing.T) {
	r := NewRegistry(1, logger.NewTestLogger(t))
	sub := r.Subscribe("B")
	assert.Equal(t, 1, r.Count("B"))

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, r.Count("B"))

	_, open := <-sub.Events()
	assert.False(t, open)
	assert.Equal(t, 0, r.Deliver(hireEvent("B")))
}

func TestRegistry_ConcurrentSubscribeAndDeliver(t *testing.T) {
	r := NewRegistry(1, logger.NewNoOpLogger())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub := r.Subscribe("B")
			sub.Close()
		}()
		go func() {
			defer wg.Done()
			r.Deliver(hireEvent("B"))
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, r.Count("B"))
}

// ==========================
// Dispatcher
// ==========================

func TestDispatcher_LocalDelivery(t *testing.T) {
	r := NewRegistry(4, logger.NewTestLogger(t))
	sub := r.Subscribe("B")
	defer sub.Close()

	d := NewDispatcher(DispatcherConfig{}, r, nil, nil, logger.NewTestLogger(t))
	require.NoError(t, d.Dispatch(context.Background(), hireEvent("B")))

	e := receive(t, sub)
	assert.Equal(t, models.HireEventType, e.Type)
	assert.Equal(t, "Logo design", e.Task.Title)
}

func TestDispatcher_PublishFailureFallsBackToLocal(t *testing.T) {
	r := NewRegistry(4, logger.NewTestLogger(t))
	sub := r.Subscribe("B")
	defer sub.Close()

	event := hireEvent("B")
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	client, mock := redismock.NewClientMock()
	mock.ExpectPublish(DefaultChannel, string(payload)).SetErr(stderrors.New("connection refused"))

	d := NewDispatcher(DispatcherConfig{}, r, client, nil, logger.NewTestLogger(t))
	err = d.Dispatch(context.Background(), event)
	assert.ErrorContains(t, err, "connection refused")

	assert.Equal(t, "e1", receive(t, sub).ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatcher_PublishSuccessSkipsLocal(t *testing.T) {
	r := NewRegistry(4, logger.NewTestLogger(t))
	sub := r.Subscribe("B")
	defer sub.Close()

	event := hireEvent("B")
	payload, _ := json.Marshal(event)

	client, mock := redismock.NewClientMock()
	mock.ExpectPublish("custom", string(payload)).SetVal(1)

	d := NewDispatcher(DispatcherConfig{Channel: "custom"}, r, client, nil, logger.NewTestLogger(t))
	require.NoError(t, d.Dispatch(context.Background(), event))

	// Delivery happens when the bus echoes the message back.
	assertNoEvent(t, sub)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatcher_MirrorsToTopic(t *testing.T) {
	fake := &fakeSNS{}
	r := NewRegistry(4, logger.NewTestLogger(t))
	d := NewDispatcher(DispatcherConfig{TopicARN: "arn:aws:sns:eu-west-1:1:hires"}, r, nil,
		aws.NewSNSClientFrom(fake), logger.NewTestLogger(t))

	require.NoError(t, d.Dispatch(context.Background(), hireEvent("B")))

	require.Len(t, fake.inputs, 1)
	in := fake.inputs[0]
	assert.Equal(t, "arn:aws:sns:eu-west-1:1:hires", *in.TopicArn)
	assert.Equal(t, "B", *in.MessageAttributes["recipientId"].StringValue)

	var decoded models.HireEvent
	require.NoError(t, json.Unmarshal([]byte(*in.Message), &decoded))
	assert.Equal(t, "p1", decoded.ProposalID)
}

func TestDispatcher_TopicFailureIsReported(t *testing.T) {
	fake := &fakeSNS{err: stderrors.New("throttled")}
	r := NewRegistry(4, logger.NewTestLogger(t))
	sub := r.Subscribe("B")
	defer sub.Close()

	d := NewDispatcher(DispatcherConfig{TopicARN: "arn"}, r, nil, aws.NewSNSClientFrom(fake), logger.NewTestLogger(t))
	err := d.Dispatch(context.Background(), hireEvent("B"))
	assert.ErrorContains(t, err, "throttled")
	assert.Equal(t, "e1", receive(t, sub).ID, "local delivery is independent of the topic")
}

// ==========================
// Redis bus
// ==========================

func TestRedisBus_CrossInstanceDelivery(t *testing.T) {
	mr, client := setupRedis(t)

	// Instance 1 holds the subscriber; instance 2 commits the hire.
	r1 := NewRegistry(4, logger.NewTestLogger(t))
	sub := r1.Subscribe("B")
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewRedisBus(client, "", r1, logger.NewTestLogger(t)).Run(ctx) }()

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(DefaultChannel)[DefaultChannel] == 1
	}, 2*time.Second, 10*time.Millisecond)

	r2 := NewRegistry(4, logger.NewTestLogger(t))
	d := NewDispatcher(DispatcherConfig{}, r2, client, nil, logger.NewTestLogger(t))
	require.NoError(t, d.Dispatch(context.Background(), hireEvent("B")))

	e := receive(t, sub)
	assert.Equal(t, "p1", e.ProposalID)
	assert.Equal(t, `You have been hired for "Logo design"!`, e.Message)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("bus did not stop")
	}
}

func TestRedisBus_IgnoresMalformedMessages(t *testing.T) {
	mr, client := setupRedis(t)
	r := NewRegistry(4, logger.NewTestLogger(t))
	sub := r.Subscribe("B")
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = NewRedisBus(client, "", r, logger.NewNoOpLogger()).Run(ctx) }()

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(DefaultChannel)[DefaultChannel] == 1
	}, 2*time.Second, 10*time.Millisecond)

	mr.Publish(DefaultChannel, "not json")
	assertNoEvent(t, sub)
}
