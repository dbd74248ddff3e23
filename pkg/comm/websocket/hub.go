// Package websocket streams status frames to websocket clients and
// accepts telecommand lines from them.
package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/robotalks/obc.go/pkg/comm"
	fx "github.com/robotalks/obc.go/pkg/framework"
)

// Path is where the hub is served.
const Path = "/obc"

const clientQueueSize = 4

var errNoCommands = errors.New("telecommands not accepted")

type client struct {
	frames chan []byte
}

// Hub broadcasts frames to all connected clients. Frames are sent as
// binary messages, telecommand replies as text.
type Hub struct {
	Addr    string
	Handler comm.CommandHandler

	lock    sync.Mutex
	clients map[*client]struct{}
}

// NewHub creates a Hub listening on addr once Run.
func NewHub(addr string, handler comm.CommandHandler) *Hub {
	return &Hub{Addr: addr, Handler: handler, clients: make(map[*client]struct{})}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.clients)
}

// WriteFrame implements telemetry.Sink. Slow clients miss frames
// instead of blocking the caller.
func (h *Hub) WriteFrame(frame []byte) error {
	h.lock.Lock()
	defer h.lock.Unlock()
	for c := range h.clients {
		select {
		case c.frames <- frame:
		default:
			glog.V(2).Info("websocket client lagging, frame dropped")
		}
	}
	return nil
}

// ServeConn serves a single websocket connection.
func (h *Hub) ServeConn(conn *websocket.Conn) {
	defer conn.Close()
	c := &client{frames: make(chan []byte, clientQueueSize)}
	h.lock.Lock()
	h.clients[c] = struct{}{}
	h.lock.Unlock()
	defer func() {
		h.lock.Lock()
		delete(h.clients, c)
		h.lock.Unlock()
	}()

	ctx, cancel := context.WithCancel(conn.Request().Context())
	defer cancel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case frame := <-c.frames:
				if err := websocket.Message.Send(conn, frame); err != nil {
					glog.V(2).Infof("websocket send: %v", err)
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		var line string
		if err := websocket.Message.Receive(conn, &line); err != nil {
			return
		}
		result, err := "", errNoCommands
		if h.Handler != nil {
			result, err = h.Handler(ctx, line)
		}
		if err := websocket.Message.Send(conn, comm.Reply(result, err)); err != nil {
			return
		}
	}
}

// Run implements framework.Runnable.
func (h *Hub) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(Path, websocket.Handler(h.ServeConn))
	server := &http.Server{Addr: h.Addr, Handler: mux}
	glog.Infof("websocket listening on %s%s", h.Addr, Path)
	return fx.RunWithContextCloser(ctx, server, server.ListenAndServe)
}
