// Package scrubbing detects and repairs corruption of the redundant
// copies kept in flash and FRAM, one bounded unit of work per call.
package scrubbing

import (
	"bytes"
	"errors"

	"github.com/robotalks/obc.go/pkg/memory"
	"github.com/robotalks/obc.go/pkg/redundancy"
)

const chunkSize = 1024

var errWindowShape = errors.New("scrubbing: window not made of whole words")

// voteWindow votes [offset, offset+len(out)) across spans into out and
// returns the bitmask of spans which disagree with the vote, or whose
// device content only reads back right because EDAC corrected it.
func voteWindow(spans []memory.FlashSpan, offset uint32, out []byte) (uint32, error) {
	var bufs [5][chunkSize]byte
	var differ uint32
	for done := 0; done < len(out); done += chunkSize {
		n := min(chunkSize, len(out)-done)
		at := offset + uint32(done)
		for i, span := range spans {
			span.Read(at, bufs[i][:n])
		}
		voted := out[done : done+n]
		var ok bool
		switch len(spans) {
		case 3:
			ok = redundancy.CorrectBuffer3(voted, bufs[0][:n], bufs[1][:n], bufs[2][:n])
		case 5:
			ok = redundancy.CorrectBuffer5(voted, bufs[0][:n], bufs[1][:n], bufs[2][:n], bufs[3][:n], bufs[4][:n])
		}
		if !ok {
			return 0, errWindowShape
		}
		for i := range spans {
			if !bytes.Equal(bufs[i][:n], voted) || spans[i].Upsets(at, uint32(n)) {
				differ |= 1 << uint(i)
			}
		}
	}
	return differ, nil
}

// rewrite replaces a sector aligned window of span with data.
func rewrite(span memory.FlashSpan, offset uint32, data []byte) error {
	if err := span.EraseRange(offset, uint32(len(data))); err != nil {
		return err
	}
	return span.Program(offset, data)
}
