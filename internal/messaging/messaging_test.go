package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fairytale-server/internal/models"
	"fairytale-server/internal/taskmanager"
)

type fakeChannel struct {
	mu        sync.Mutex
	published []amqp091.Publishing
	keys      []string
	err       error
	closed    bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp091.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, exchange+"/"+key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

type fakeAcknowledger struct {
	mu      sync.Mutex
	acks    int
	nacks   int
	rejects int
	requeue bool
	done    chan struct{}
}

func newFakeAcknowledger() *fakeAcknowledger {
	return &fakeAcknowledger{done: make(chan struct{}, 10)}
}

func (a *fakeAcknowledger) Ack(uint64, bool) error {
	a.mu.Lock()
	a.acks++
	a.mu.Unlock()
	a.done <- struct{}{}
	return nil
}

func (a *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	a.nacks++
	a.requeue = requeue
	a.mu.Unlock()
	a.done <- struct{}{}
	return nil
}

func (a *fakeAcknowledger) Reject(_ uint64, requeue bool) error {
	a.mu.Lock()
	a.rejects++
	a.requeue = requeue
	a.mu.Unlock()
	a.done <- struct{}{}
	return nil
}

func (a *fakeAcknowledger) wait(t *testing.T) {
	t.Helper()
	select {
	case <-a.done:
	case <-time.After(time.Second):
		t.Fatal("delivery was not settled")
	}
}

type recordingRunner struct {
	mu      sync.Mutex
	ids     []string
	release chan struct{}
}

func (r *recordingRunner) Run(_ context.Context, storyID string, _ models.StoryRequest) {
	if r.release != nil {
		<-r.release
	}
	r.mu.Lock()
	r.ids = append(r.ids, storyID)
	r.mu.Unlock()
}

func testRequest() models.StoryRequest {
	return models.StoryRequest{ChildName: "Aya", ChildAge: 5, Theme: "kindness", Language: models.LanguageEN, PageCount: 2}
}

func TestTaskPublisher_Schedule(t *testing.T) {
	ch := &fakeChannel{}
	publisher := newTaskPublisher(ch, "story_generation_tasks", zap.NewNop())

	require.NoError(t, publisher.Schedule(context.Background(), "story-1", testRequest()))
	require.Len(t, ch.published, 1)
	msg := ch.published[0]
	assert.Equal(t, "/story_generation_tasks", ch.keys[0])
	assert.Equal(t, amqp091.Persistent, msg.DeliveryMode)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, "story-1", msg.CorrelationId)

	var payload StoryTaskPayload
	require.NoError(t, json.Unmarshal(msg.Body, &payload))
	assert.Equal(t, "story-1", payload.StoryID)
	assert.Equal(t, testRequest(), payload.Request)
}

func TestTaskPublisher_ScheduleFailureIsAdmissionError(t *testing.T) {
	publisher := newTaskPublisher(&fakeChannel{err: errors.New("channel closed")}, "q", zap.NewNop())
	err := publisher.Schedule(context.Background(), "story-1", testRequest())
	assert.ErrorIs(t, err, models.ErrQueueFull)

	require.NoError(t, publisher.Close())
	err = publisher.Schedule(context.Background(), "story-1", testRequest())
	assert.Error(t, err)
}

func TestStatusNotifier_NotifyStatus(t *testing.T) {
	ch := &fakeChannel{}
	notifier := newStatusNotifier(ch, "story_status_updates", zap.NewNop())

	event := models.StoryStatusEvent{StoryID: "s1", Status: models.StatusComplete, ImageCount: 3, PlaceholderCount: 1}
	require.NoError(t, notifier.NotifyStatus(context.Background(), event))
	require.Len(t, ch.published, 1)

	var got map[string]any
	require.NoError(t, json.Unmarshal(ch.published[0].Body, &got))
	assert.Equal(t, "s1", got["storyId"])
	assert.Equal(t, "complete", got["status"])
	assert.EqualValues(t, 1, got["placeholderCount"])
}

func delivery(ack amqp091.Acknowledger, body []byte) amqp091.Delivery {
	return amqp091.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: body}
}

func taskBody(t *testing.T, id string) []byte {
	body, err := json.Marshal(StoryTaskPayload{StoryID: id, Request: testRequest()})
	require.NoError(t, err)
	return body
}

func TestTaskConsumer_RunsAndAcks(t *testing.T) {
	tm := taskmanager.New(taskmanager.Config{MaxTasks: 2}, zap.NewNop())
	runner := &recordingRunner{}
	consumer := NewTaskConsumer(runner, tm, zap.NewNop())
	ack := newFakeAcknowledger()

	consumer.HandleDelivery(delivery(ack, taskBody(t, "story-1")))
	ack.wait(t)

	require.NoError(t, tm.Shutdown(context.Background()))
	assert.Equal(t, 1, ack.acks)
	assert.Equal(t, []string{"story-1"}, runner.ids)
}

func TestTaskConsumer_RejectsMalformed(t *testing.T) {
	tm := taskmanager.New(taskmanager.Config{MaxTasks: 1}, zap.NewNop())
	consumer := NewTaskConsumer(&recordingRunner{}, tm, zap.NewNop())

	for _, body := range [][]byte{[]byte("not json"), []byte(`{"storyId":""}`)} {
		ack := newFakeAcknowledger()
		consumer.HandleDelivery(delivery(ack, body))
		ack.wait(t)
		assert.Equal(t, 1, ack.rejects)
		assert.False(t, ack.requeue)
	}
}

func TestTaskConsumer_DuplicateAndFull(t *testing.T) {
	tm := taskmanager.New(taskmanager.Config{MaxTasks: 1}, zap.NewNop())
	runner := &recordingRunner{release: make(chan struct{})}
	consumer := NewTaskConsumer(runner, tm, zap.NewNop())

	first := newFakeAcknowledger()
	consumer.HandleDelivery(delivery(first, taskBody(t, "story-1")))

	dup := newFakeAcknowledger()
	consumer.HandleDelivery(delivery(dup, taskBody(t, "story-1")))
	dup.wait(t)
	assert.Equal(t, 1, dup.acks)

	other := newFakeAcknowledger()
	consumer.HandleDelivery(delivery(other, taskBody(t, "story-2")))
	other.wait(t)
	assert.Equal(t, 1, other.nacks)
	assert.True(t, other.requeue)

	close(runner.release)
	first.wait(t)
	require.NoError(t, tm.Shutdown(context.Background()))
	assert.Equal(t, []string{"story-1"}, runner.ids)
}
