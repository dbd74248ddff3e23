// Package comm defines how frames travel between the on-board computer
// and the ground.
package comm

import "context"

// FrameReader reads frames in bytes.
type FrameReader interface {
	ReadFrame() ([]byte, error)
}

// FrameWriter writes frames in bytes.
type FrameWriter interface {
	WriteFrame([]byte) error
}

// FrameReadWriter reads/writes frames in bytes.
type FrameReadWriter interface {
	FrameReader
	FrameWriter
}

// CommandHandler executes a telecommand line and returns the reply.
type CommandHandler func(ctx context.Context, line string) (string, error)

// Reply renders the result of a telecommand for line oriented links.
func Reply(result string, err error) string {
	switch {
	case err != nil:
		return "ERR " + err.Error()
	case result == "":
		return "OK"
	}
	return "OK " + result
}
