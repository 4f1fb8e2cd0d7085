package audio

import "encoding/binary"

// GetPCMInt16LE decodes little-endian samples from b into dst and returns
// the number of samples read. A trailing odd byte is ignored.
func GetPCMInt16LE(dst []int16, b []byte) int {
	n := min(len(dst), len(b)/BytesPerInt16)
	for i := range n {
		dst[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return n
}

// PutPCMInt16LE writes as many samples as fit into dst and returns the number
// of bytes written. It never writes a partial sample.
func PutPCMInt16LE(dst []byte, samples []int16) int {
	n := min(len(samples), len(dst)/BytesPerInt16)
	for i := range n {
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(samples[i]))
	}
	return n * BytesPerInt16
}
