// Package bootsettings implements the boot settings record kept in
// redundant FRAM.
package bootsettings

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"

	"github.com/robotalks/obc.go/pkg/advisory"
	"github.com/robotalks/obc.go/pkg/memory"
)

// Record layout.
const (
	Size = 16

	magicOffset                = 0
	bootSlotsOffset            = 4
	failsafeBootSlotsOffset    = 5
	bootCounterOffset          = 6
	lastConfirmedCounterOffset = 10
)

// Record values.
const (
	// MagicNumber marks an initialized record.
	MagicNumber uint32 = 0x7FBB5AC3

	DefaultBootSlots         byte = 0b000111
	DefaultFailsafeBootSlots byte = 0b111000

	// SlotsMask covers the valid slot bits.
	SlotsMask byte = 0b111111
)

// ErrVerify indicates a value read back differs from what was written.
var ErrVerify = errors.New("boot settings: read back mismatch")

// Record is a decoded boot settings record.
type Record struct {
	Magic                    uint32
	BootSlots                byte
	FailsafeBootSlots        byte
	BootCounter              uint32
	LastConfirmedBootCounter uint32
}

// DefaultRecord is the record used in place of an uninitialized one.
func DefaultRecord() Record {
	return Record{
		Magic:             MagicNumber,
		BootSlots:         DefaultBootSlots,
		FailsafeBootSlots: DefaultFailsafeBootSlots,
	}
}

// Valid checks the magic number.
func (r Record) Valid() bool {
	return r.Magic == MagicNumber
}

// Decode parses a raw record.
func Decode(p []byte) Record {
	le := binary.LittleEndian
	return Record{
		Magic:                    le.Uint32(p[magicOffset:]),
		BootSlots:                p[bootSlotsOffset],
		FailsafeBootSlots:        p[failsafeBootSlotsOffset],
		BootCounter:              le.Uint32(p[bootCounterOffset:]),
		LastConfirmedBootCounter: le.Uint32(p[lastConfirmedCounterOffset:]),
	}
}

// Encode serializes the record, unused bytes are zero.
func (r Record) Encode() []byte {
	le := binary.LittleEndian
	p := make([]byte, Size)
	le.PutUint32(p[magicOffset:], r.Magic)
	p[bootSlotsOffset] = r.BootSlots
	p[failsafeBootSlotsOffset] = r.FailsafeBootSlots
	le.PutUint32(p[bootCounterOffset:], r.BootCounter)
	le.PutUint32(p[lastConfirmedCounterOffset:], r.LastConfirmedBootCounter)
	return p
}

// CheckBootSlots reports whether mask selects exactly 3 of the 6 slots.
func CheckBootSlots(mask byte) bool {
	return mask&^SlotsMask == 0 && bits.OnesCount8(mask) == 3
}

// Settings accesses the record at a fixed FRAM address.
//
// Accessors never fail: an unreadable or uninitialized record reads as
// the defaults. Mutators expect the embedded lock to be held.
type Settings struct {
	advisory.Lock

	fram memory.FRAM
	base uint32
}

// New creates Settings on fram at base.
func New(fram memory.FRAM, base uint32) *Settings {
	return &Settings{fram: fram, base: base}
}

// ReadRaw reads the record as stored.
func (s *Settings) ReadRaw() (Record, error) {
	var p [Size]byte
	if err := s.fram.Read(s.base, p[:]); err != nil {
		return Record{}, err
	}
	return Decode(p[:]), nil
}

// Read reads the record, replaced by the defaults when invalid.
func (s *Settings) Read() Record {
	r, err := s.ReadRaw()
	if err != nil || !r.Valid() {
		return DefaultRecord()
	}
	return r
}

// IsValid reports whether the stored record carries the magic number.
func (s *Settings) IsValid() bool {
	r, err := s.ReadRaw()
	return err == nil && r.Valid()
}

// BootSlots is the primary boot slot mask.
func (s *Settings) BootSlots() byte {
	return s.Read().BootSlots
}

// FailsafeBootSlots is the failsafe boot slot mask.
func (s *Settings) FailsafeBootSlots() byte {
	return s.Read().FailsafeBootSlots
}

// BootCounter is the number of boots.
func (s *Settings) BootCounter() uint32 {
	return s.Read().BootCounter
}

// LastConfirmedBootCounter is the boot counter of the last confirmed boot.
func (s *Settings) LastConfirmedBootCounter() uint32 {
	return s.Read().LastConfirmedBootCounter
}

// SetBootSlots stores the primary boot slot mask.
func (s *Settings) SetBootSlots(mask byte) error {
	return s.update(func(r *Record) { r.BootSlots = mask })
}

// SetFailsafeBootSlots stores the failsafe boot slot mask.
func (s *Settings) SetFailsafeBootSlots(mask byte) error {
	return s.update(func(r *Record) { r.FailsafeBootSlots = mask })
}

// SetBootCounter stores the boot counter.
func (s *Settings) SetBootCounter(counter uint32) error {
	return s.update(func(r *Record) { r.BootCounter = counter })
}

// ConfirmBoot marks the current boot as successful.
func (s *Settings) ConfirmBoot() error {
	return s.update(func(r *Record) { r.LastConfirmedBootCounter = r.BootCounter })
}

// MarkAsValid writes the magic number, keeping the stored fields.
func (s *Settings) MarkAsValid() error {
	r, err := s.ReadRaw()
	if err != nil {
		return err
	}
	r.Magic = MagicNumber
	return s.write(r)
}

// Refresh rewrites the voted record to every FRAM, which repairs a
// corrupted copy.
func (s *Settings) Refresh() error {
	var p [Size]byte
	if err := s.fram.Read(s.base, p[:]); err != nil {
		return err
	}
	return s.fram.Write(s.base, p[:])
}

func (s *Settings) update(fn func(*Record)) error {
	r := s.Read()
	fn(&r)
	return s.write(r)
}

func (s *Settings) write(r Record) error {
	if err := s.fram.Write(s.base, r.Encode()); err != nil {
		return err
	}
	got, err := s.ReadRaw()
	if err != nil {
		return err
	}
	if got != r {
		return fmt.Errorf("%w: wrote %+v, read %+v", ErrVerify, r, got)
	}
	return nil
}
