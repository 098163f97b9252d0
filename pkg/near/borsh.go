package near

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"
)

// borshWriter serializes the handful of borsh primitives a transaction needs:
// little-endian integers, u32 length-prefixed byte strings and fixed arrays.
type borshWriter struct {
	buf bytes.Buffer
}

func (w *borshWriter) u8(v uint8) {
	w.buf.WriteByte(v)
}

func (w *borshWriter) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *borshWriter) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

// u128 writes v as 16 little-endian bytes. A nil value encodes zero.
func (w *borshWriter) u128(v *uint256.Int) error {
	var b [16]byte
	if v != nil {
		if v.BitLen() > 128 {
			return fmt.Errorf("value %s exceeds u128", v.Dec())
		}
		be := v.Bytes32()
		for i := 0; i < 16; i++ {
			b[i] = be[31-i]
		}
	}
	w.buf.Write(b[:])
	return nil
}

func (w *borshWriter) fixed(b []byte) {
	w.buf.Write(b)
}

func (w *borshWriter) bytes(b []byte) {
	w.u32(uint32(len(b)))
	w.buf.Write(b)
}

func (w *borshWriter) string(s string) {
	w.bytes([]byte(s))
}

func (w *borshWriter) Bytes() []byte {
	return w.buf.Bytes()
}
