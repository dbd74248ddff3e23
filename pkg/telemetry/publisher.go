package telemetry

import (
	"sync"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/obc.go/pkg/framework"
)

// Sink receives encoded status frames.
type Sink interface {
	WriteFrame(frame []byte) error
}

// SinkFunc is the func form of Sink.
type SinkFunc func([]byte) error

// WriteFrame implements Sink.
func (f SinkFunc) WriteFrame(frame []byte) error {
	return f(frame)
}

// SnapshotFunc collects the current status.
type SnapshotFunc func() Snapshot

// Publisher periodically collects a snapshot from the mission loop and
// writes the frame to every sink. A failing sink does not stop the
// others.
type Publisher struct {
	Period time.Duration

	source SnapshotFunc
	sinks  []Sink
	due    time.Time

	lock sync.Mutex
	last []byte
}

// NewPublisher creates a Publisher.
func NewPublisher(period time.Duration, source SnapshotFunc) *Publisher {
	return &Publisher{Period: period, source: source}
}

// AddSink adds sinks. Call it before the loop starts.
func (p *Publisher) AddSink(sinks ...Sink) *Publisher {
	p.sinks = append(p.sinks, sinks...)
	return p
}

// AddToLoop implements framework.LoopAdder.
func (p *Publisher) AddToLoop(l *fx.Loop) {
	l.AddController(fx.PrLvTelemetry, p)
}

// Control implements framework.Controller.
func (p *Publisher) Control(cc fx.ControlContext) error {
	now := cc.Time()
	if p.Period <= 0 || now.Before(p.due) {
		return nil
	}
	p.due = now.Add(p.Period)
	return p.Publish(now)
}

// Publish collects and writes a frame immediately.
func (p *Publisher) Publish(now time.Time) error {
	snap := p.source()
	snap.Time = now
	frame, err := snap.Encode()
	if err != nil {
		return err
	}
	p.lock.Lock()
	p.last = frame
	p.lock.Unlock()
	for _, sink := range p.sinks {
		if err := sink.WriteFrame(frame); err != nil {
			glog.Warningf("telemetry sink %T: %v", sink, err)
		}
	}
	return nil
}

// Last returns the most recent frame, nil before the first one.
func (p *Publisher) Last() []byte {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.last
}
