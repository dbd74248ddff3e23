package boottable

// KB is a kilobyte.
const KB = 1024

// Flash layout.
const (
	// BootIndexOffset holds the one-byte boot index, alone in its sector.
	BootIndexOffset = 0x0
	// BootCounterOffset holds the one-byte boot counter, alone in its sector.
	BootCounterOffset = 0x2000

	// EntriesBase is the offset of the first program entry.
	EntriesBase = 0x80000
	// EntrySize is the size of a program entry, header included.
	EntrySize = 512 * KB
	// EntriesCount is the number of program slots.
	EntriesCount = 6

	// BootloaderCopiesBase is the offset of the first bootloader copy.
	BootloaderCopiesBase = EntriesBase + EntriesCount*EntrySize
	// BootloaderCopySize is the size of a single bootloader copy.
	BootloaderCopySize = 64 * KB
	// BootloaderCopiesCount is the number of bootloader copies.
	BootloaderCopiesCount = 5

	// SafeModeCopiesBase is the offset of the first safe mode copy.
	SafeModeCopiesBase = BootloaderCopiesBase + BootloaderCopiesCount*BootloaderCopySize
	// SafeModeCopySize is the size of a single safe mode copy.
	SafeModeCopySize = 64 * KB
	// SafeModeCopiesCount is the number of safe mode copies.
	SafeModeCopiesCount = 5

	// LayoutEnd is the first offset not used by the boot table.
	LayoutEnd = SafeModeCopiesBase + SafeModeCopiesCount*SafeModeCopySize
)

// Program entry layout, relative to the entry.
const (
	entryLengthOffset      = 0x00
	entryCRCOffset         = 0x20
	entryValidOffset       = 0x40
	entryDescriptionOffset = 0x80
	entryContentOffset     = 0x400

	// DescriptionSize includes the terminating NUL.
	DescriptionSize = 128
	// ContentSize is the maximum program size.
	ContentSize = EntrySize - entryContentOffset

	// ValidMarker marks a completely programmed entry.
	ValidMarker = 0xAA
)

// Flash device identification the boot table is laid out for.
const (
	ExpectedDeviceID   uint32 = 0x00C2227E
	ExpectedBootConfig uint32 = 0x00000001
)
