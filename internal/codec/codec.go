// Package codec packs and unpacks the little-endian 32-bit integers and
// framed records that make up the on-disk wire format, and computes the
// signed CRC32 used to stamp every record.
package codec

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
)

// Int32Size is the width in bytes of every integer field in the wire format.
const Int32Size = 4

// RecordHeaderSize is the fixed prefix of a segment record: seq, crc, len, time.
const RecordHeaderSize = 4 * Int32Size

// PackI32 encodes v as a little-endian signed 32-bit integer.
func PackI32(v int32) []byte {
	buf := make([]byte, Int32Size)
	binary.LittleEndian.PutUint32(buf, uint32(v))
	return buf
}

// UnpackI32 decodes a little-endian signed 32-bit integer from buf[0:4].
func UnpackI32(buf []byte) int32 {
	return int32(binary.LittleEndian.Uint32(buf))
}

// ReadI32At reads a single 4-byte little-endian integer at the given offset.
func ReadI32At(f *os.File, offset int64) (int32, error) {
	buf := make([]byte, Int32Size)
	n, err := f.ReadAt(buf, offset)
	if err != nil {
		return 0, fmt.Errorf("reading i32 at offset %d: %w", offset, err)
	}
	if n != Int32Size {
		return 0, fmt.Errorf("short read at offset %d: got %d bytes", offset, n)
	}
	return UnpackI32(buf), nil
}

// SignedCRC32 computes the IEEE CRC32 of payload and reinterprets it as a
// signed 32-bit integer — the wire format stores every integer as signed,
// so a CRC with bit 31 set must fold into its two's-complement negative
// form rather than overflow an unsigned read on another architecture.
func SignedCRC32(payload []byte) int32 {
	return int32(crc32.ChecksumIEEE(payload))
}

// Record is one decoded segment record (see DecodeRecordHeader).
type Record struct {
	Seq     int32
	CRC     int32
	Len     int32
	Time    int32
	Payload []byte
}

// EncodeRecord serializes a record header + payload in the on-disk order:
// seq | crc | len | time | payload.
func EncodeRecord(seq, crc, ln, tm int32, payload []byte) []byte {
	buf := make([]byte, RecordHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(seq))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(crc))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(ln))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(tm))
	copy(buf[RecordHeaderSize:], payload)
	return buf
}

// DecodeRecordHeader decodes the fixed-size header. Callers read the
// payload separately once len is known.
func DecodeRecordHeader(buf []byte) (seq, crc, ln, tm int32, err error) {
	if len(buf) < RecordHeaderSize {
		return 0, 0, 0, 0, fmt.Errorf("short record header: %d bytes", len(buf))
	}
	seq = int32(binary.LittleEndian.Uint32(buf[0:4]))
	crc = int32(binary.LittleEndian.Uint32(buf[4:8]))
	ln = int32(binary.LittleEndian.Uint32(buf[8:12]))
	tm = int32(binary.LittleEndian.Uint32(buf[12:16]))
	return seq, crc, ln, tm, nil
}

// DelayRecordHeaderSize is the fixed prefix of a delay-log record: due_time, len.
const DelayRecordHeaderSize = 2 * Int32Size

// EncodeDelayRecord serializes a delay-log record: due_time | len | payload.
func EncodeDelayRecord(due, ln int32, payload []byte) []byte {
	buf := make([]byte, DelayRecordHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(due))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(ln))
	copy(buf[DelayRecordHeaderSize:], payload)
	return buf
}

// DecodeDelayRecordHeader decodes the due_time/len prefix of a delay record.
func DecodeDelayRecordHeader(buf []byte) (due, ln int32, err error) {
	if len(buf) < DelayRecordHeaderSize {
		return 0, 0, fmt.Errorf("short delay record header: %d bytes", len(buf))
	}
	due = int32(binary.LittleEndian.Uint32(buf[0:4]))
	ln = int32(binary.LittleEndian.Uint32(buf[4:8]))
	return due, ln, nil
}
