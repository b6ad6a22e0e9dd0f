package protocol

// crcTable is CRC-16/MCRF4XX (polynomial 0x1021 reflected, so 0x8408)
// indexed by the low byte of the running CRC xor the data byte.
var crcTable = func() (t [256]uint16) {
	for i := range t {
		c := uint16(i)
		for range 8 {
			if c&1 != 0 {
				c = c>>1 ^ 0x8408
			} else {
				c >>= 1
			}
		}
		t[i] = c
	}
	return t
}()

// CRC16 is the CRC-16/MCRF4XX checksum (seed 0xFFFF, no final xor) that
// trails every bridge frame.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc = crc>>8 ^ crcTable[byte(crc)^b]
	}
	return crc
}
