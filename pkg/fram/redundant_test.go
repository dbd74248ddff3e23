package fram

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/obc.go/pkg/memory"
)

type countingFRAM struct {
	*memory.RAMFRAM
	reads, writes, statusReads int
	err                        error
}

func newCountingFRAM(size uint32) *countingFRAM {
	return &countingFRAM{RAMFRAM: memory.NewRAMFRAM(size)}
}

func (f *countingFRAM) ReadStatus() (byte, error) {
	f.statusReads++
	if f.err != nil {
		return 0, f.err
	}
	return f.RAMFRAM.ReadStatus()
}

func (f *countingFRAM) Read(address uint32, p []byte) error {
	f.reads++
	if f.err != nil {
		return f.err
	}
	return f.RAMFRAM.Read(address, p)
}

func (f *countingFRAM) Write(address uint32, p []byte) error {
	f.writes++
	if f.err != nil {
		return f.err
	}
	return f.RAMFRAM.Write(address, p)
}

func newTestRedundant() (*Redundant, [3]*countingFRAM) {
	backends := [3]*countingFRAM{newCountingFRAM(4096), newCountingFRAM(4096), newCountingFRAM(4096)}
	return NewRedundant(backends[0], backends[1], backends[2]), backends
}

func TestReadAgreeingSkipsThird(t *testing.T) {
	r, backends := newTestRedundant()
	for _, b := range backends[:2] {
		copy(b.Bytes()[10:], "redundant")
	}
	backends[2].err = errors.New("must not be read")

	buf := make([]byte, 9)
	require.NoError(t, r.Read(10, buf))
	assert.Equal(t, "redundant", string(buf))
	assert.Equal(t, 0, backends[2].reads)
}

func TestReadVotesOnMismatch(t *testing.T) {
	r, backends := newTestRedundant()
	for _, b := range backends {
		copy(b.Bytes()[100:], "voted")
	}
	backends[0].Bytes()[101] ^= 0x10
	backends[1].Bytes()[103] ^= 0x01

	buf := make([]byte, 5)
	require.NoError(t, r.Read(100, buf))
	assert.Equal(t, "voted", string(buf))
	assert.Equal(t, 1, backends[2].reads)
}

func TestReadChunked(t *testing.T) {
	r, backends := newTestRedundant()
	for _, b := range backends {
		for i := range b.Bytes() {
			b.Bytes()[i] = byte(i)
		}
	}
	// only the second chunk disagrees.
	backends[1].Bytes()[ChunkSize+5] = 0xEE

	buf := make([]byte, 3*ChunkSize)
	require.NoError(t, r.Read(0, buf))
	for i, b := range buf {
		require.Equal(t, byte(i), b)
	}
	assert.Equal(t, 3, backends[0].reads)
	assert.Equal(t, 3, backends[1].reads)
	assert.Equal(t, 1, backends[2].reads)
}

func TestReadFailure(t *testing.T) {
	r, backends := newTestRedundant()
	backends[1].err = errors.New("bus error")
	require.Error(t, r.Read(0, make([]byte, 4)))
}

func TestWriteAll(t *testing.T) {
	r, backends := newTestRedundant()
	backends[1].err = errors.New("bus error")
	err := r.Write(20, []byte("abc"))
	require.Error(t, err)
	for _, b := range backends {
		assert.Equal(t, 1, b.writes)
	}
	assert.Equal(t, "abc", string(backends[0].Bytes()[20:23]))
	assert.Equal(t, "abc", string(backends[2].Bytes()[20:23]))
}

func TestReadStatus(t *testing.T) {
	testCases := []struct {
		name   string
		status [3]byte
		failed int
		result byte
		ok     bool
	}{
		{"all agree", [3]byte{0x40, 0x40, 0x40}, -1, 0x40, true},
		{"one differs", [3]byte{0x40, 0x41, 0x40}, -1, 0x40, true},
		{"last two agree", [3]byte{0x01, 0x02, 0x02}, -1, 0x02, true},
		{"all differ", [3]byte{1, 2, 3}, -1, 0, false},
		{"failed backend", [3]byte{7, 7, 5}, 0, 0, false},
		{"failed backend with majority", [3]byte{5, 7, 7}, 0, 7, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r, backends := newTestRedundant()
			for n, b := range backends {
				b.Status = tc.status[n]
			}
			if tc.failed >= 0 {
				backends[tc.failed].err = errors.New("bus error")
			}
			status, err := r.ReadStatus()
			if !tc.ok {
				require.ErrorIs(t, err, ErrNoConsensus)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.result, status)
		})
	}
}
