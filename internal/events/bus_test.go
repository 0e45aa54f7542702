// internal/events/bus_test.go
package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Handle(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) seen() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func curveEvent(typ EventType, seq uint64) *CurveEvent {
	return &CurveEvent{BaseEvent: NewBaseEvent(typ, time.Unix(0, 0)), Sequence: seq}
}

func TestBusDeliversInOrder(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 256)
	rec := &recorder{}
	bus.Subscribe(AllEvents, rec)

	for i := uint64(1); i <= 100; i++ {
		typ := CurveBuy
		if i%2 == 0 {
			typ = CurveSell
		}
		require.NoError(t, bus.Publish(curveEvent(typ, i)))
	}
	require.NoError(t, bus.Shutdown(context.Background()))

	got := rec.seen()
	require.Len(t, got, 100)
	for i, e := range got {
		assert.Equal(t, uint64(i+1), e.(*CurveEvent).Sequence)
	}
}

func TestBusTypeFilterAndUnsubscribe(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 16)
	buys := &recorder{}
	sub := bus.Subscribe(CurveBuy, buys)
	assert.NotEmpty(t, sub.ID())

	ctx := context.Background()
	require.NoError(t, bus.PublishSync(ctx, curveEvent(CurveBuy, 1)))
	require.NoError(t, bus.PublishSync(ctx, curveEvent(CurveSell, 2)))
	sub.Unsubscribe()
	sub.Unsubscribe()
	require.NoError(t, bus.PublishSync(ctx, curveEvent(CurveBuy, 3)))

	got := buys.seen()
	require.Len(t, got, 1)
	assert.Equal(t, CurveBuy, got[0].Type())
	require.NoError(t, bus.Shutdown(ctx))
}

func TestBusHandlerErrorsAreJoined(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 4)
	boom := errors.New("boom")
	bus.SubscribeFunc(CurveGraduate, func(context.Context, Event) error { return boom })

	err := bus.PublishSync(context.Background(), curveEvent(CurveGraduate, 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, uint64(1), bus.Stats()["handler_failures"])
	require.NoError(t, bus.Shutdown(context.Background()))
}

func TestBusDropsWhenFull(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 1)
	release := make(chan struct{})
	bus.SubscribeFunc(AllEvents, func(context.Context, Event) error {
		<-release
		return nil
	})

	// The first event occupies the dispatcher, the second fills the buffer.
	require.NoError(t, bus.Publish(curveEvent(CurveBuy, 1)))
	require.Eventually(t, func() bool { return bus.Stats()["pending_events"] == 0 }, time.Second, time.Millisecond)
	require.NoError(t, bus.Publish(curveEvent(CurveBuy, 2)))
	assert.ErrorIs(t, bus.Publish(curveEvent(CurveBuy, 3)), ErrBusFull)
	assert.Equal(t, uint64(1), bus.Stats()["dropped"])

	close(release)
	require.NoError(t, bus.Shutdown(context.Background()))
	assert.ErrorIs(t, bus.Publish(curveEvent(CurveBuy, 4)), ErrBusClosed)
}

func TestForCurve(t *testing.T) {
	a := common.HexToAddress("0x01")
	b := common.HexToAddress("0x02")
	rec := &recorder{}
	h := ForCurve(a, rec)

	ea := curveEvent(CurveBuy, 1)
	ea.CurveID = a
	eb := curveEvent(CurveBuy, 2)
	eb.CurveID = b

	ctx := context.Background()
	require.NoError(t, h.Handle(ctx, ea))
	require.NoError(t, h.Handle(ctx, eb))
	require.Len(t, rec.seen(), 1)
}
