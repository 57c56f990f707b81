package pubsub

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func receive(t *testing.T, sub Subscription) Event {
	t.Helper()
	select {
	case event, ok := <-sub.Events():
		require.True(t, ok, "events channel closed")
		return event
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
		return Event{}
	}
}

func expectNothing(t *testing.T, sub Subscription) {
	t.Helper()
	select {
	case event := <-sub.Events():
		t.Errorf("received unexpected event version %d", event.Version)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventBuffer(t *testing.T) {
	pub := NewSSEPublisher()
	defer pub.Close()

	// Configure topic with buffer size 3, replay all
	pub.ConfigureTopic("test", TopicConfig{BufferSize: 3, ReplayAll: true})

	for i := 1; i <= 5; i++ {
		require.NoError(t, pub.Publish("test", "event", map[string]int{"num": i}))
	}

	sub, err := pub.Subscribe(context.Background(), "test")
	require.NoError(t, err)
	defer sub.Close()

	// Should receive last 3 events (3, 4, 5)
	for want := 3; want <= 5; want++ {
		assert.Equal(t, want, receive(t, sub).Version)
	}
}

func TestReplayLastOnly(t *testing.T) {
	pub := NewSSEPublisher()
	defer pub.Close()

	pub.ConfigureTopic(TopicAnalysis, TopicConfig{BufferSize: 5})

	for i := 1; i <= 3; i++ {
		require.NoError(t, pub.Publish(TopicAnalysis, "finished", AnalysisFinished{Files: i}))
	}

	sub, err := pub.Subscribe(context.Background(), TopicAnalysis)
	require.NoError(t, err)
	defer sub.Close()

	event := receive(t, sub)
	assert.Equal(t, 3, event.Version)

	var data AnalysisFinished
	require.NoError(t, json.Unmarshal(event.Data, &data))
	assert.Equal(t, 3, data.Files)

	expectNothing(t, sub)
}

func TestNoBuffer(t *testing.T) {
	pub := NewSSEPublisher()
	defer pub.Close()

	for i := 1; i <= 3; i++ {
		require.NoError(t, pub.Publish("test", "event", i))
	}

	sub, err := pub.Subscribe(context.Background(), "test")
	require.NoError(t, err)
	defer sub.Close()

	expectNothing(t, sub)

	require.NoError(t, pub.Publish("test", "event", 4))
	assert.Equal(t, 4, receive(t, sub).Version)
}

func TestTopicsAreIsolated(t *testing.T) {
	pub := NewSSEPublisher()
	defer pub.Close()

	sub, err := pub.Subscribe(context.Background(), TopicWorkspaceStatus)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, pub.Publish(TopicAnalysis, "finished", AnalysisFinished{}))
	expectNothing(t, sub)

	require.NoError(t, pub.Publish(TopicWorkspaceStatus, "hashing", WorkspaceStatus{State: "hashing", Step: 3, Total: 5}))
	event := receive(t, sub)
	assert.Equal(t, TopicWorkspaceStatus, event.Topic)
	assert.Equal(t, "hashing", event.Type)
}

func TestContextCancelUnsubscribes(t *testing.T) {
	pub := NewSSEPublisher()
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	_, err := pub.Subscribe(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, 1, pub.subscribers("test"))

	cancel()
	assert.Eventually(t, func() bool { return pub.subscribers("test") == 0 }, time.Second, 5*time.Millisecond)
}

func TestCloseEndsSubscriptions(t *testing.T) {
	pub := NewSSEPublisher()

	sub, err := pub.Subscribe(context.Background(), "test")
	require.NoError(t, err)

	require.NoError(t, pub.Close())

	_, ok := <-sub.Events()
	assert.False(t, ok)
	assert.NoError(t, sub.Close())

	assert.ErrorIs(t, pub.Publish("test", "event", 1), ErrClosed)
	_, err = pub.Subscribe(context.Background(), "test")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPublishUnmarshalable(t *testing.T) {
	pub := NewSSEPublisher()
	defer pub.Close()

	assert.Error(t, pub.Publish("test", "event", make(chan int)))
}

func TestWriteSSE(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSSE(&buf, Event{Topic: "analysis", Type: "finished", Data: json.RawMessage(`{"files":2}`), Version: 1}))

	assert.Equal(t,
		"event: analysis\ndata: {\"topic\":\"analysis\",\"type\":\"finished\",\"data\":{\"files\":2},\"version\":1}\n\n",
		buf.String())
}
