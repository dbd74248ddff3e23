// Package redundancy implements bitwise majority voting over
// redundant copies of the same data.
package redundancy

import "encoding/binary"

// Integer is any integer kind, including named enumerations.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// Correct3 returns the bitwise 2-of-3 majority of its operands.
func Correct3[T Integer](a, b, c T) T {
	return (a & b) | (b & c) | (a & c)
}

// Correct5 returns the bitwise 3-of-5 majority of its operands.
func Correct5[T Integer](a, b, c, d, e T) T {
	return (a & b & c) | (a & b & d) | (a & b & e) | (a & c & d) | (a & c & e) |
		(a & d & e) | (b & c & d) | (b & c & e) | (b & d & e) | (c & d & e)
}

// Vote returns the value at least two operands agree on.
func Vote[T comparable](a, b, c T) (T, bool) {
	switch {
	case a == b || a == c:
		return a, true
	case b == c:
		return b, true
	}
	var zero T
	return zero, false
}

const wordSize = 4

func sameLength(out []byte, in ...[]byte) bool {
	if len(out)%wordSize != 0 {
		return false
	}
	for _, p := range in {
		if len(p) != len(out) {
			return false
		}
	}
	return true
}

// CorrectBuffer3 votes three buffers word by word into out. It fails
// without touching out unless all buffers share a length which is a
// multiple of 4.
func CorrectBuffer3(out, a, b, c []byte) bool {
	if !sameLength(out, a, b, c) {
		return false
	}
	le := binary.LittleEndian
	for i := 0; i < len(out); i += wordSize {
		le.PutUint32(out[i:], Correct3(le.Uint32(a[i:]), le.Uint32(b[i:]), le.Uint32(c[i:])))
	}
	return true
}

// CorrectBuffer5 is the five-way form of CorrectBuffer3.
func CorrectBuffer5(out, a, b, c, d, e []byte) bool {
	if !sameLength(out, a, b, c, d, e) {
		return false
	}
	le := binary.LittleEndian
	for i := 0; i < len(out); i += wordSize {
		le.PutUint32(out[i:], Correct5(
			le.Uint32(a[i:]), le.Uint32(b[i:]), le.Uint32(c[i:]),
			le.Uint32(d[i:]), le.Uint32(e[i:])))
	}
	return true
}
