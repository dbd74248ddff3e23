package framework

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testMessage string

func (m testMessage) MessageName() string { return string(m) }

func TestLoopRunsByPriority(t *testing.T) {
	var order []int
	record := func(n int) Controller {
		return ControlFunc(func(cc ControlContext) error {
			order = append(order, n)
			assert.Equal(t, n, cc.PriorityLevel())
			return nil
		})
	}
	l := NewLoop()
	l.AddController(PrLvScrub, record(PrLvScrub))
	l.AddController(PrLvTelecommand, record(PrLvTelecommand))
	l.AddController(PrLvTelemetry, record(PrLvTelemetry))
	l.Step(context.Background())
	assert.Equal(t, []int{PrLvTelecommand, PrLvTelemetry, PrLvScrub}, order)
}

func TestLoopMessages(t *testing.T) {
	var seen, late []Message
	l := NewLoop()
	l.AddController(PrLvHigh, ControlFunc(func(cc ControlContext) error {
		cc.Messages().ProcessMessages(ProcessMessageFunc(func(mc MessageProcessingContext) {
			if mc.CurrentMessage() == testMessage("a") {
				seen = append(seen, mc.CurrentMessage())
				mc.MessageTaken()
			}
		}))
		return nil
	}))
	l.AddController(PrLvLow, ControlFunc(func(cc ControlContext) error {
		cc.Messages().ProcessMessages(ProcessMessageFunc(func(mc MessageProcessingContext) {
			late = append(late, mc.CurrentMessage())
			mc.MessageTaken()
		}))
		return nil
	}))
	l.PostMessage(testMessage("a"))
	l.PostMessage(testMessage("b"))
	l.Step(context.Background())
	assert.Equal(t, []Message{testMessage("a")}, seen)
	assert.Equal(t, []Message{testMessage("b")}, late)

	l.Step(context.Background())
	assert.Len(t, seen, 1)
	assert.Len(t, late, 1)
}

func TestLoopClock(t *testing.T) {
	now := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	l := &Loop{Clock: func() time.Time { return now }}
	var got time.Time
	l.AddController(PrLvNormal, ControlFunc(func(cc ControlContext) error {
		got = cc.Time()
		return errors.New("logged and ignored")
	}))
	l.Step(context.Background())
	assert.Equal(t, now, got)
}

func TestLoopRunStopsOnCancel(t *testing.T) {
	l := &Loop{Interval: time.Millisecond}
	started := make(chan LoopControl, 1)
	l.AddRunnable(RunFunc(func(ctx context.Context) error {
		started <- LoopCtlFrom(ctx)
		<-ctx.Done()
		return ctx.Err()
	}))
	steps := make(chan struct{}, 16)
	l.AddController(PrLvNormal, ControlFunc(func(ControlContext) error {
		select {
		case steps <- struct{}{}:
		default:
		}
		return nil
	}))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	ctl := <-started
	ctl.TriggerNext()
	<-steps
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	require.NoError(t, errs.Add(nil).Aggregate())
	target := errors.New("target")
	err := errs.Add(errors.New("first"), nil, target).Aggregate()
	require.Error(t, err)
	assert.ErrorIs(t, err, target)
	assert.Equal(t, "Multiple errors:\nfirst\ntarget", err.Error())
}
