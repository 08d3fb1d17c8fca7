package eventbus_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edison-llm/edison/pkg/eventbus"
)

func TestSubscribe_ReceivesSnapshotFirst(t *testing.T) {
	bus := eventbus.New()
	snapshot := eventbus.Event{Type: "snapshot", Payload: "initial-state"}
	events, cancel := bus.Subscribe("it-1", snapshot)
	defer cancel()

	select {
	case e := <-events:
		assert.Equal(t, "snapshot", e.Type)
		assert.Equal(t, "it-1", e.IterationID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
}

func TestPublish_DeliversToSubscriber(t *testing.T) {
	bus := eventbus.New()
	events, cancel := bus.Subscribe("it-1", eventbus.Event{Type: "snapshot"})
	defer cancel()
	<-events // drain snapshot

	bus.Publish("it-1", "status:changed", "EXECUTING")

	select {
	case e := <-events:
		assert.Equal(t, "status:changed", e.Type)
		assert.Equal(t, "EXECUTING", e.Payload)
		assert.Equal(t, uint64(1), e.Seq)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublish_OrderingIsSequential(t *testing.T) {
	bus := eventbus.New()
	events, cancel := bus.Subscribe("it-1", eventbus.Event{Type: "snapshot"})
	defer cancel()
	<-events

	bus.Publish("it-1", "a", nil)
	bus.Publish("it-1", "b", nil)
	bus.Publish("it-1", "c", nil)

	var seqs []uint64
	for i := 0; i < 3; i++ {
		e := <-events
		seqs = append(seqs, e.Seq)
	}
	assert.Equal(t, []uint64{1, 2, 3}, seqs)
}

func TestPublish_DoesNotCrossIterationBoundaries(t *testing.T) {
	bus := eventbus.New()
	eventsA, cancelA := bus.Subscribe("it-a", eventbus.Event{Type: "snapshot"})
	defer cancelA()
	<-eventsA

	bus.Publish("it-b", "status:changed", nil)

	select {
	case <-eventsA:
		t.Fatal("subscriber for it-a should not see it-b's events")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestCancel_ClosesChannelAndDropsSubscriber(t *testing.T) {
	bus := eventbus.New()
	events, cancel := bus.Subscribe("it-1", eventbus.Event{Type: "snapshot"})
	<-events
	assert.Equal(t, 1, bus.SubscriberCount("it-1"))

	cancel()
	assert.Equal(t, 0, bus.SubscriberCount("it-1"))

	_, ok := <-events
	assert.False(t, ok)
}

func TestHandler_StreamsSnapshotAsSSEFrame(t *testing.T) {
	bus := eventbus.New()
	snapshotFn := func(iterationID string) eventbus.Event {
		return eventbus.Event{Type: "snapshot", Payload: map[string]string{"status": "PENDING"}}
	}
	handler := eventbus.Handler(bus, snapshotFn)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", "/events?iteration_id=it-1", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		handler.ServeHTTP(rec, req)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(rec.Body.String(), "\"type\":\"snapshot\"")
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	cancel()
	<-done
}

func TestHandler_RequiresIterationID(t *testing.T) {
	bus := eventbus.New()
	handler := eventbus.Handler(bus, func(string) eventbus.Event { return eventbus.Event{} })
	req := httptest.NewRequest("GET", "/events", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, 400, rec.Code)
}
