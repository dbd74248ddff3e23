package memory

import (
	"fmt"
	"io"
	"os"

	"github.com/gofrs/flock"
	"github.com/golang/glog"
)

// image is a device image file, kept entirely in memory and
// written through on every change.
type image struct {
	file *os.File
	lock *flock.Flock
}

func openImage(path string, size uint32, blank byte) (*image, []byte, error) {
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !locked {
		return nil, nil, fmt.Errorf("%s: %w", path, ErrLocked)
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		lock.Unlock()
		return nil, nil, err
	}
	img := &image{file: file, lock: lock}
	data := make([]byte, size)
	n, err := io.ReadFull(file, data)
	switch err {
	case nil:
	case io.EOF, io.ErrUnexpectedEOF:
		glog.Infof("image %s: initializing %d bytes", path, int(size)-n)
		fill(data[n:], blank)
		if _, err = file.WriteAt(data[n:], int64(n)); err != nil {
			img.Close()
			return nil, nil, err
		}
	default:
		img.Close()
		return nil, nil, err
	}
	return img, data, nil
}

func (m *image) sync(data []byte, offset uint32, n uint32) error {
	_, err := m.file.WriteAt(data[offset:offset+n], int64(offset))
	return err
}

// Close implements io.Closer.
func (m *image) Close() error {
	err := m.file.Close()
	m.lock.Unlock()
	return err
}

// FileFlash is a RAMFlash persisted in an image file.
type FileFlash struct {
	*RAMFlash
	img *image
}

// OpenFileFlash opens or creates a flash image. Missing content is
// initialized as erased.
func OpenFileFlash(path string, geometry Geometry, deviceID, bootConfig uint32) (*FileFlash, error) {
	ram := &RAMFlash{geometry: geometry, deviceID: deviceID, bootConfig: bootConfig}
	img, data, err := openImage(path, geometry.Size(), ErasedByte)
	if err != nil {
		return nil, err
	}
	ram.data = data
	return &FileFlash{RAMFlash: ram, img: img}, nil
}

// Program implements Flash.
func (f *FileFlash) Program(offset uint32, p []byte) error {
	if err := f.RAMFlash.Program(offset, p); err != nil {
		return err
	}
	return f.img.sync(f.data, offset, uint32(len(p)))
}

// ProgramByte implements Flash.
func (f *FileFlash) ProgramByte(offset uint32, b byte) error {
	return f.Program(offset, []byte{b})
}

// EraseSector implements Flash.
func (f *FileFlash) EraseSector(offset uint32) error {
	if err := f.RAMFlash.EraseSector(offset); err != nil {
		return err
	}
	_, size := f.geometry.SectorAt(offset)
	return f.img.sync(f.data, offset, size)
}

// FlipBit injects a bit flip and persists it.
func (f *FileFlash) FlipBit(offset uint32, bit uint) error {
	if err := f.RAMFlash.FlipBit(offset, bit); err != nil {
		return err
	}
	return f.img.sync(f.data, offset, 1)
}

// Close releases the image.
func (f *FileFlash) Close() error {
	return f.img.Close()
}

// FileFRAM is a RAMFRAM persisted in an image file.
type FileFRAM struct {
	*RAMFRAM
	img *image
}

// OpenFileFRAM opens or creates a FRAM image, zero filled when new.
func OpenFileFRAM(path string, size uint32) (*FileFRAM, error) {
	img, data, err := openImage(path, size, 0)
	if err != nil {
		return nil, err
	}
	return &FileFRAM{RAMFRAM: &RAMFRAM{data: data}, img: img}, nil
}

// Write implements FRAM.
func (f *FileFRAM) Write(address uint32, p []byte) error {
	if err := f.RAMFRAM.Write(address, p); err != nil {
		return err
	}
	return f.img.sync(f.data, address, uint32(len(p)))
}

// Close releases the image.
func (f *FileFRAM) Close() error {
	return f.img.Close()
}
