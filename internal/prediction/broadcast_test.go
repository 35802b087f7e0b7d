package prediction

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trafficctl/control-plane/internal/models"
)

type fakeBroadcastEmitter struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeBroadcastEmitter) Emit(eventType string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
}

func (f *fakeBroadcastEmitter) count(eventType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e == eventType {
			n++
		}
	}
	return n
}

func TestBroadcasterEmitsPredictionUpdatedOnTick(t *testing.T) {
	base := time.Now()
	src := &fakeDensitySource{history: map[string][]models.DensitySnapshot{
		"R1": seriesRising(base, 5),
	}}
	engine := NewEngine(DefaultConfig(), src)
	emitter := &fakeBroadcastEmitter{}
	alerts := NewAlertGenerator(time.Minute)

	b := NewBroadcaster(engine, alerts, emitter, time.Hour, func() []string { return []string{"R1"} })
	b.tick(base)

	assert.Equal(t, 1, emitter.count("prediction:updated"))
	stats := b.Statistics()
	assert.EqualValues(t, 1, stats.TotalBroadcasts)
}

func TestBroadcasterEmitsAlertWhenPredictionCrossesThreshold(t *testing.T) {
	base := time.Now()
	highHistory := make([]models.DensitySnapshot, 5)
	for i := range highHistory {
		highHistory[i] = models.DensitySnapshot{Timestamp: base.Add(time.Duration(i) * time.Minute), Score: 95}
	}
	src := &fakeDensitySource{history: map[string][]models.DensitySnapshot{"R1": highHistory}}
	engine := NewEngine(DefaultConfig(), src)
	emitter := &fakeBroadcastEmitter{}
	alerts := NewAlertGenerator(time.Minute)

	b := NewBroadcaster(engine, alerts, emitter, time.Hour, func() []string { return []string{"R1"} })
	b.tick(base)

	assert.Equal(t, 1, emitter.count("prediction:alert"))
}

func TestBroadcasterRunRespectsContextCancellation(t *testing.T) {
	src := &fakeDensitySource{history: map[string][]models.DensitySnapshot{}}
	engine := NewEngine(DefaultConfig(), src)
	emitter := &fakeBroadcastEmitter{}
	alerts := NewAlertGenerator(time.Minute)

	b := NewBroadcaster(engine, alerts, emitter, 10*time.Millisecond, func() []string { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after context cancellation")
	}
	require.NotNil(t, b)
}
