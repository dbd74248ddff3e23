package stream

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
)

// MaxFrameSize limits the length accepted by ReadFrame.
const MaxFrameSize = 1 << 20

// ReadWriter implements comm.FrameReadWriter.
// Each frame is prefixed by 4-byte (little-endian) indicate the length.
type ReadWriter struct {
	io.ReadWriter

	lock sync.Mutex
}

// New creates a ReadWriter with io.ReadWriter.
func New(s io.ReadWriter) *ReadWriter {
	return &ReadWriter{ReadWriter: s}
}

// ReadFrame implements comm.FrameReader.
func (p *ReadWriter) ReadFrame() ([]byte, error) {
	var size uint32
	if err := binary.Read(p.ReadWriter, binary.LittleEndian, &size); err != nil {
		return nil, err
	}
	if size > MaxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds %d", size, MaxFrameSize)
	}
	frame := make([]byte, size)
	_, err := io.ReadFull(p.ReadWriter, frame)
	return frame, err
}

// WriteFrame implements comm.FrameWriter. Concurrent writers do not
// interleave.
func (p *ReadWriter) WriteFrame(frame []byte) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if err := binary.Write(p.ReadWriter, binary.LittleEndian, uint32(len(frame))); err != nil {
		return err
	}
	_, err := p.ReadWriter.Write(frame)
	return err
}

// Downlink appends frames to a file.
type Downlink struct {
	*ReadWriter
	file *os.File
}

// OpenDownlink opens path for appending, creating it if necessary.
func OpenDownlink(path string) (*Downlink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &Downlink{ReadWriter: New(f), file: f}, nil
}

// Close implements io.Closer.
func (d *Downlink) Close() error {
	return d.file.Close()
}

// ReadAll reads every frame from r until EOF.
func ReadAll(r io.Reader) ([][]byte, error) {
	rw := &ReadWriter{ReadWriter: struct {
		io.Reader
		io.Writer
	}{r, io.Discard}}
	var frames [][]byte
	for {
		frame, err := rw.ReadFrame()
		if err == io.EOF {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, frame)
	}
}
