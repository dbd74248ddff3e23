package scrubbing

import (
	"fmt"

	"github.com/robotalks/obc.go/pkg/boottable"
	fx "github.com/robotalks/obc.go/pkg/framework"
	"github.com/robotalks/obc.go/pkg/memory"
)

// ProgramStatus is the state of a ProgramScrubber.
type ProgramStatus struct {
	// Iterations counts complete passes over the entries.
	Iterations uint32
	// Offset is the start of the next window, relative to the entries.
	Offset uint32
	// SlotsCorrected counts rewritten windows.
	SlotsCorrected uint32
}

// ProgramScrubber keeps three program entries identical, one flash
// sector per call.
type ProgramScrubber struct {
	buffer []byte
	table  *boottable.BootTable
	mask   byte
	slots  []int
	spans  []memory.FlashSpan
	window uint32
	status ProgramStatus
}

// NewProgramScrubber creates a scrubber for the slots selected by
// slotsMask. buffer must hold one flash sector.
func NewProgramScrubber(buffer []byte, table *boottable.BootTable, flash memory.Flash, slotsMask byte) *ProgramScrubber {
	_, window := flash.SectorAt(boottable.EntriesBase)
	if window == 0 || boottable.EntrySize%window != 0 {
		panic(fmt.Sprintf("scrubbing: unsupported sector size %d", window))
	}
	if uint32(len(buffer)) < window {
		panic(fmt.Sprintf("scrubbing: buffer of %d bytes smaller than sector size %d", len(buffer), window))
	}
	s := &ProgramScrubber{
		buffer: buffer[:window],
		table:  table,
		mask:   slotsMask,
		window: window,
	}
	s.slots = boottable.SlotsFromMask(slotsMask)
	for _, slot := range s.slots {
		s.spans = append(s.spans, table.Entry(slot+1).Span())
	}
	return s
}

// SlotsMask is the mask the scrubber was created with.
func (s *ProgramScrubber) SlotsMask() byte {
	return s.mask
}

// Status returns the counters.
func (s *ProgramScrubber) Status() ProgramStatus {
	return s.status
}

// ScrubSlots scrubs the window at the cursor and advances it. It does
// nothing when the boot table is busy or fewer than 3 slots are selected.
func (s *ProgramScrubber) ScrubSlots() error {
	if len(s.spans) != 3 || !s.table.TryLock() {
		return nil
	}
	defer s.table.Unlock()

	differ, err := voteWindow(s.spans, s.status.Offset, s.buffer)
	if err != nil {
		return err
	}
	var errs fx.AggregatedError
	for i, span := range s.spans {
		if differ&(1<<uint(i)) == 0 {
			continue
		}
		s.status.SlotsCorrected++
		if err := rewrite(span, s.status.Offset, s.buffer); err != nil {
			errs.Add(fmt.Errorf("rewrite slot %d at 0x%x: %w", s.slots[i], s.status.Offset, err))
		}
	}

	s.status.Offset += s.window
	if s.status.Offset >= boottable.EntrySize {
		s.status.Offset = 0
		s.status.Iterations++
	}
	return errs.Aggregate()
}
