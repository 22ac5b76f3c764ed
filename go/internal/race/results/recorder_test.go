package results

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/typerace/go/internal/race/events"
)

type fakePublisher struct {
	mu        sync.Mutex
	failFirst int
	calls     int
	published []events.RaceResult
}

func (f *fakePublisher) Publish(_ context.Context, result events.RaceResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failFirst {
		return errors.New("nats unavailable")
	}
	f.published = append(f.published, result)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.published))
	for _, r := range f.published {
		out = append(out, r.ID)
	}
	return out
}

func result(id string) events.RaceResult {
	return events.RaceResult{ID: id, RoomCode: "ABC123", Duration: 30}
}

func TestRecorder_PublishesRecordedResults(t *testing.T) {
	pub := &fakePublisher{}
	r := NewRecorder(pub, DefaultConfig(), nil)
	require.NoError(t, r.Start(context.Background()))

	r.Record(result("r1"))
	r.Record(result("r2"))

	require.Eventually(t, func() bool { return len(pub.ids()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"r1", "r2"}, pub.ids())
	require.NoError(t, r.Stop())
}

func TestRecorder_RetriesWithBackoff(t *testing.T) {
	clock := clockwork.NewFakeClock()
	pub := &fakePublisher{failFirst: 2}
	cfg := DefaultConfig()
	cfg.RetryDelay = time.Second
	r := NewRecorder(pub, cfg, clock)
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	r.Record(result("r1"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(2 * time.Second)

	require.Eventually(t, func() bool { return len(pub.ids()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestRecorder_GivesUpAndMovesOn(t *testing.T) {
	pub := &fakePublisher{failFirst: 1}
	cfg := DefaultConfig()
	cfg.MaxRetries = 0
	r := NewRecorder(pub, cfg, nil)
	require.NoError(t, r.Start(context.Background()))

	r.Record(result("lost"))
	r.Record(result("kept"))

	require.Eventually(t, func() bool { return len(pub.ids()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"kept"}, pub.ids())
	require.NoError(t, r.Stop())
}

func TestRecorder_DropsWhenQueueFull(t *testing.T) {
	pub := &fakePublisher{}
	cfg := DefaultConfig()
	cfg.QueueSize = 1
	r := NewRecorder(pub, cfg, nil)

	r.Record(result("r1"))
	r.Record(result("r2"))

	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Stop())
	assert.Equal(t, []string{"r1"}, pub.ids())
}

func TestRecorder_StopFlushesQueue(t *testing.T) {
	pub := &fakePublisher{}
	r := NewRecorder(pub, DefaultConfig(), nil)
	require.NoError(t, r.Start(context.Background()))

	for _, id := range []string{"a", "b", "c"} {
		r.Record(result(id))
	}
	require.NoError(t, r.Stop())
	assert.ElementsMatch(t, []string{"a", "b", "c"}, pub.ids())
}

func TestRecorder_StartStopLifecycle(t *testing.T) {
	r := NewRecorder(&fakePublisher{}, DefaultConfig(), nil)
	assert.Error(t, r.Stop())
	require.NoError(t, r.Start(context.Background()))
	assert.Error(t, r.Start(context.Background()))
	require.NoError(t, r.Stop())
}

func TestBuildMessage(t *testing.T) {
	res := events.RaceResult{
		ID:       "11111111-2222-3333-4444-555555555555",
		RoomCode: "QWERTY",
		Duration: 60,
		WinnerID: "p1",
		Players: []events.PlayerResult{
			{PlayerID: "p1", Name: "ada", Stats: events.GameStats{WPM: 80, Accuracy: 97}},
			{PlayerID: "p2", Name: "bob", Stats: events.GameStats{WPM: 60, Accuracy: 99}},
		},
	}

	msg, err := buildMessage("race.results", res)
	require.NoError(t, err)
	assert.Equal(t, "race.results.completed", msg.Subject)
	assert.Equal(t, "QWERTY", msg.Header.Get("Room-Code"))
	assert.Equal(t, res.ID, msg.Header.Get("Result-ID"))

	var decoded events.RaceResult
	require.NoError(t, json.Unmarshal(msg.Data, &decoded))
	assert.Equal(t, res.WinnerID, decoded.WinnerID)
	assert.Len(t, decoded.Players, 2)
	assert.Equal(t, 80, decoded.Players[0].Stats.WPM)
}

func TestLogPublisher(t *testing.T) {
	var p Publisher = LogPublisher{}
	assert.NoError(t, p.Publish(context.Background(), result("r1")))
	assert.NoError(t, p.Close())
}
