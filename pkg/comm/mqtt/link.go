package mqtt

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/obc.go/pkg/comm"
)

// Topics used by Link, relative to the topic prefix.
//
//	<id>/tm/status      status frames, retained
//	<id>/tm/online      "1" while connected, "0" as last will
//	<id>/tc/<command>   telecommand, payload holds the arguments
//	<id>/tm/tc/<command> telecommand reply
const (
	statusTopic  = "/tm/status"
	onlineTopic  = "/tm/online"
	commandTopic = "/tc/"
	replyTopic   = "/tm/tc/"
)

// DefaultPublishTimeout bounds waiting for the broker on publish.
const DefaultPublishTimeout = 2 * time.Second

// ErrPublishTimeout indicates the broker did not acknowledge in time.
var ErrPublishTimeout = errors.New("mqtt publish timeout")

// Link connects the on-board computer to the ground through MQTT.
type Link struct {
	Queue          *Queue
	ID             string
	Handler        comm.CommandHandler
	PublishTimeout time.Duration

	publish func(topic string, payload []byte, retain bool) error
}

// NewLink creates a Link from the broker URL.
func NewLink(brokerURL, id string, handler comm.CommandHandler) (*Link, error) {
	opts, prefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	if opts.ClientID == "" {
		opts.SetClientID(id)
	}
	opts.SetWill(prefix+id+onlineTopic, "0", 1, true)
	l := &Link{
		ID:             id,
		Handler:        handler,
		PublishTimeout: DefaultPublishTimeout,
	}
	l.publish = l.publishToQueue
	l.Queue = NewQueue(opts, prefix)
	l.Queue.OnConnect = func(*Queue) {
		if err := l.publish(l.ID+onlineTopic, []byte("1"), true); err != nil {
			glog.Warningf("mqtt online: %v", err)
		}
	}
	return l, nil
}

// WriteFrame implements telemetry.Sink.
func (l *Link) WriteFrame(frame []byte) error {
	return l.publish(l.ID+statusTopic, frame, true)
}

// Run implements framework.Runnable.
func (l *Link) Run(ctx context.Context) error {
	token := l.Queue.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return err
	}
	defer l.Queue.Close()
	sub := l.Queue.Sub(l.ID+commandTopic+"+", func(topic string, payload []byte) {
		go l.handleCommand(ctx, topic, payload)
	})
	defer sub.Close()
	<-ctx.Done()
	return ctx.Err()
}

func (l *Link) handleCommand(ctx context.Context, topic string, payload []byte) {
	name := topic[strings.LastIndex(topic, "/")+1:]
	line := name
	if args := strings.TrimSpace(string(payload)); args != "" {
		line += " " + args
	}
	result, err := "", errors.New("telecommands not accepted")
	if l.Handler != nil {
		result, err = l.Handler(ctx, line)
	}
	if err != nil {
		glog.Warningf("telecommand %q: %v", line, err)
	}
	if err := l.publish(l.ID+replyTopic+name, []byte(comm.Reply(result, err)), false); err != nil {
		glog.Warningf("telecommand %q reply: %v", line, err)
	}
}

func (l *Link) publishToQueue(topic string, payload []byte, retain bool) error {
	timeout := l.PublishTimeout
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	token := l.Queue.Pub(topic, payload, 1, retain)
	if !token.WaitTimeout(timeout) {
		return ErrPublishTimeout
	}
	return token.Error()
}
