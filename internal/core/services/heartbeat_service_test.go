package services

import (
	"errors"
	"testing"
	"time"

	"whipcast/internal/infrastructure/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForAcks(t *testing.T, control *stubControl, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for control.acks() < want {
		if time.Now().After(deadline) {
			t.Fatalf("expected at least %d acks, got %d", want, control.acks())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHeartbeatService_AcksImmediatelyAndOnInterval(t *testing.T) {
	control := &stubControl{}
	bus := events.NewBus(testLogger())
	svc := NewHeartbeatService(control, 20*time.Millisecond, noMetrics(), bus, testLogger())

	svc.Start("room-1", "input-1")
	defer svc.Stop()

	// First ack fires before the first tick.
	waitForAcks(t, control, 1)
	waitForAcks(t, control, 3)
}

func TestHeartbeatService_FailuresDoNotStopTheLoop(t *testing.T) {
	control := &stubControl{ackErr: errors.New("backend unreachable")}
	bus := events.NewBus(testLogger())
	svc := NewHeartbeatService(control, 10*time.Millisecond, noMetrics(), bus, testLogger())

	ch, cancel := bus.Subscribe()
	defer cancel()

	svc.Start("room-1", "input-1")
	defer svc.Stop()

	// The loop keeps acking well past the first failures.
	waitForAcks(t, control, missedAckThreshold+2)

	select {
	case event := <-ch:
		assert.Equal(t, events.TypeHeartbeatMissed, event.Type)
		assert.Equal(t, "input-1", string(event.InputID))
	case <-time.After(2 * time.Second):
		t.Fatal("expected a missed-heartbeat event")
	}
}

func TestHeartbeatService_StopHaltsAcking(t *testing.T) {
	control := &stubControl{}
	bus := events.NewBus(testLogger())
	svc := NewHeartbeatService(control, 10*time.Millisecond, noMetrics(), bus, testLogger())

	svc.Start("room-1", "input-1")
	waitForAcks(t, control, 2)
	svc.Stop()

	time.Sleep(30 * time.Millisecond)
	settled := control.acks()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, settled, control.acks())
}

func TestHeartbeatService_RestartSwitchesInput(t *testing.T) {
	control := &stubControl{}
	bus := events.NewBus(testLogger())
	svc := NewHeartbeatService(control, 10*time.Millisecond, noMetrics(), bus, testLogger())

	svc.Start("room-1", "input-1")
	waitForAcks(t, control, 1)

	// Starting again replaces the previous loop instead of stacking one.
	svc.Start("room-1", "input-2")
	defer svc.Stop()
	waitForAcks(t, control, 2)
}
