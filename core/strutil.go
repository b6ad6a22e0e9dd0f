package core

import "strconv"

// Allocation-light formatting for debug messages; fmt is too heavy for
// the firmware build.

func itoa(n int) string {
	return strconv.Itoa(n)
}

// hexPad renders v as exactly digits lowercase hex digits
func hexPad(v uint32, digits int) string {
	var buf [8]byte
	s := strconv.AppendUint(buf[:0], uint64(v), 16)
	for len(s) < digits {
		s = append([]byte{'0'}, s...)
	}
	return string(s[len(s)-digits:])
}

func hex8(v uint8) string   { return hexPad(uint32(v), 2) }
func hex24(v uint32) string { return hexPad(v, 6) }
