// Package ecc implements the single-error-correcting code produced by
// the memory controller ECC generator.
//
// The code of a block of 2^n bytes is 6+2(n-3) bits long, made of
// complementary parity pairs. Bits 0-5 are the column parities
// p1, p1', p2, p2', p4, p4'. Each row parity pair j follows at bits
// 6+2j (rows with bit j of the byte index set) and 7+2j (cleared).
package ecc

import (
	"fmt"
	"math/bits"
)

// BlockSize is the block size used by the memory controller.
const BlockSize = 32

// Result is the outcome of Correct.
type Result int

// Correction results.
const (
	// NoError indicates data and code agree.
	NoError Result = iota
	// Corrected indicates a single bit error in data which has been fixed.
	Corrected
	// NotCorrected indicates an uncorrectable multi-bit error.
	NotCorrected
	// Corrupted indicates a single bit error in the code itself.
	Corrupted
)

func (r Result) String() string {
	switch r {
	case NoError:
		return "no-error"
	case Corrected:
		return "corrected"
	case NotCorrected:
		return "not-corrected"
	case Corrupted:
		return "corrupted"
	}
	return fmt.Sprintf("Result(%d)", int(r))
}

// Column parity masks, in code bit order.
var columnMasks = [6]byte{
	0xAA, // p1: bits 1,3,5,7
	0x55, // p1': bits 0,2,4,6
	0xCC, // p2: bits 2,3,6,7
	0x33, // p2': bits 0,1,4,5
	0xF0, // p4: bits 4-7
	0x0F, // p4': bits 0-3
}

func rowBits(n int) int {
	if n <= 0 || n&(n-1) != 0 || n < 8 {
		panic(fmt.Sprintf("ecc: invalid block length %d", n))
	}
	return bits.TrailingZeros(uint(n))
}

// CodeBits is the number of code bits for a block of n bytes.
func CodeBits(n int) int {
	return 6 + 2*rowBits(n)
}

func codeMask(n int) uint32 {
	return uint32(1)<<uint(CodeBits(n)) - 1
}

// Calc computes the code of data. len(data) must be a power of two
// and at least 8.
func Calc(data []byte) uint32 {
	rows := rowBits(len(data))
	var columns byte
	var code uint32
	for i, b := range data {
		columns ^= b
		if bits.OnesCount8(b)&1 == 0 {
			continue
		}
		for j := 0; j < rows; j++ {
			if i&(1<<uint(j)) != 0 {
				code ^= 1 << uint(6+2*j)
			} else {
				code ^= 1 << uint(7+2*j)
			}
		}
	}
	for n, mask := range columnMasks {
		code |= uint32(bits.OnesCount8(columns&mask)&1) << uint(n)
	}
	return code
}

// Correct compares the generated code of data against the stored code,
// fixing data in place when a single bit has flipped.
func Correct(generated, stored uint32, data []byte) Result {
	mask := codeMask(len(data))
	syndrome := (generated ^ stored) & mask
	if syndrome == 0 {
		return NoError
	}
	correctable := uint32(0x55555555) & mask
	even, odd := syndrome&correctable, (syndrome>>1)&correctable
	if even^odd == correctable {
		pos := compact(even)
		data[pos>>3] ^= 1 << (pos & 7)
		return Corrected
	}
	if bits.OnesCount32(syndrome) == 1 {
		return Corrupted
	}
	return NotCorrected
}

// CorrectBlock recomputes the code of data and corrects it.
func CorrectBlock(stored uint32, data []byte) Result {
	return Correct(Calc(data), stored, data)
}

// compact gathers the even bits of v into consecutive bits.
func compact(v uint32) uint32 {
	var out uint32
	for n := uint(0); v != 0; n++ {
		out |= (v & 1) << n
		v >>= 2
	}
	return out
}
