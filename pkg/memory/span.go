package memory

// FlashSpan is a window into a Flash, with offsets relative to its base.
type FlashSpan struct {
	flash Flash
	base  uint32
	size  uint32
}

// NewFlashSpan creates a FlashSpan.
func NewFlashSpan(flash Flash, base, size uint32) FlashSpan {
	return FlashSpan{flash: flash, base: base, size: size}
}

// Flash returns the underlying device.
func (s FlashSpan) Flash() Flash {
	return s.flash
}

// Base is the absolute offset of the span.
func (s FlashSpan) Base() uint32 {
	return s.base
}

// Size is the size of the span.
func (s FlashSpan) Size() uint32 {
	return s.size
}

// Read reads at relative offset.
func (s FlashSpan) Read(offset uint32, p []byte) {
	s.flash.Read(s.base+offset, p)
}

// Upsets reports whether the device under [offset, offset+n) holds
// upsets its read path hides. Always false without an UpsetDetector.
func (s FlashSpan) Upsets(offset, n uint32) bool {
	d, ok := s.flash.(UpsetDetector)
	return ok && d.Upsets(s.base+offset, n)
}

// ByteAt reads a single byte at relative offset.
func (s FlashSpan) ByteAt(offset uint32) byte {
	var b [1]byte
	s.flash.Read(s.base+offset, b[:])
	return b[0]
}

// Program programs at relative offset.
func (s FlashSpan) Program(offset uint32, p []byte) error {
	if !s.contains(offset, uint32(len(p))) {
		return ErrOutOfRange
	}
	return s.flash.Program(s.base+offset, p)
}

// ProgramByte programs a single byte at relative offset.
func (s FlashSpan) ProgramByte(offset uint32, b byte) error {
	if !s.contains(offset, 1) {
		return ErrOutOfRange
	}
	return s.flash.ProgramByte(s.base+offset, b)
}

// EraseRange erases every sector overlapping [offset, offset+n).
// The range must start on a sector boundary.
func (s FlashSpan) EraseRange(offset, n uint32) error {
	if !s.contains(offset, n) {
		return ErrOutOfRange
	}
	for pos, end := s.base+offset, s.base+offset+n; pos < end; {
		start, size := s.flash.SectorAt(pos)
		if size == 0 {
			return ErrOutOfRange
		}
		if start != pos {
			return ErrNotAligned
		}
		if err := s.flash.EraseSector(start); err != nil {
			return err
		}
		pos = start + size
	}
	return nil
}

// Erase erases the whole span.
func (s FlashSpan) Erase() error {
	return s.EraseRange(0, s.size)
}

func (s FlashSpan) contains(offset, n uint32) bool {
	return uint64(offset)+uint64(n) <= uint64(s.size)
}
