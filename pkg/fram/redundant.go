// Package fram provides triple-redundant access to FRAM chips.
package fram

import (
	"bytes"
	"errors"
	"fmt"

	fx "github.com/robotalks/obc.go/pkg/framework"
	"github.com/robotalks/obc.go/pkg/memory"
	"github.com/robotalks/obc.go/pkg/redundancy"
)

// ChunkSize is the unit of comparison between backends.
const ChunkSize = 1024

// ErrNoConsensus indicates no two backends agree.
var ErrNoConsensus = errors.New("fram: no consensus")

// Redundant presents three FRAM chips as a single one. Writes go to
// all of them, reads are voted.
type Redundant struct {
	backends [3]memory.FRAM
}

// NewRedundant creates a Redundant.
func NewRedundant(a, b, c memory.FRAM) *Redundant {
	return &Redundant{backends: [3]memory.FRAM{a, b, c}}
}

// ReadStatus implements memory.FRAM. A backend failing to respond
// does not get a vote.
func (r *Redundant) ReadStatus() (byte, error) {
	var status [3]byte
	var failed [3]bool
	var errs fx.AggregatedError
	for n, backend := range r.backends {
		var err error
		if status[n], err = backend.ReadStatus(); err != nil {
			failed[n] = true
			errs.Add(fmt.Errorf("fram %d: %w", n, err))
		}
	}
	for i := 0; i < 3; i++ {
		for j := i + 1; j < 3; j++ {
			if !failed[i] && !failed[j] && status[i] == status[j] {
				return status[i], nil
			}
		}
	}
	errs.Add(ErrNoConsensus)
	return 0, errs.Aggregate()
}

// Read implements memory.FRAM. The third backend is only read when the
// first two disagree on a chunk.
func (r *Redundant) Read(address uint32, p []byte) error {
	var second, third [ChunkSize]byte
	for done := 0; done < len(p); {
		n := min(ChunkSize, len(p)-done)
		chunk, at := p[done:done+n], address+uint32(done)
		if err := r.backends[0].Read(at, chunk); err != nil {
			return fmt.Errorf("fram 0: %w", err)
		}
		if err := r.backends[1].Read(at, second[:n]); err != nil {
			return fmt.Errorf("fram 1: %w", err)
		}
		if !bytes.Equal(chunk, second[:n]) {
			if err := r.backends[2].Read(at, third[:n]); err != nil {
				return fmt.Errorf("fram 2: %w", err)
			}
			for i := range chunk {
				chunk[i] = redundancy.Correct3(chunk[i], second[i], third[i])
			}
		}
		done += n
	}
	return nil
}

// Write implements memory.FRAM. Every backend is written even when
// some fail.
func (r *Redundant) Write(address uint32, p []byte) error {
	var errs fx.AggregatedError
	for n, backend := range r.backends {
		if err := backend.Write(address, p); err != nil {
			errs.Add(fmt.Errorf("fram %d: %w", n, err))
		}
	}
	return errs.Aggregate()
}
