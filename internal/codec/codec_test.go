package codec

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPackUnpackI32RoundTrip(t *testing.T) {
	for _, v := range []int32{0, 1, -1, 42, -42, 1 << 30, -(1 << 30)} {
		buf := PackI32(v)
		require.Len(t, buf, Int32Size)
		require.Equal(t, v, UnpackI32(buf))
	}
}

func TestReadI32At(t *testing.T) {
	dir := t.TempDir()
	f, err := os.Create(dir + "/ints")
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Write(PackI32(7))
	require.NoError(t, err)
	_, err = f.Write(PackI32(-99))
	require.NoError(t, err)

	v, err := ReadI32At(f, 0)
	require.NoError(t, err)
	require.Equal(t, int32(7), v)

	v, err = ReadI32At(f, Int32Size)
	require.NoError(t, err)
	require.Equal(t, int32(-99), v)

	_, err = ReadI32At(f, 100)
	require.Error(t, err)
}

func TestSignedCRC32NegativeRange(t *testing.T) {
	// Some payload has to produce a CRC with the high bit set; scan a
	// handful of inputs rather than hardcoding one that depends on the
	// polynomial implementation.
	found := false
	for i := 0; i < 256; i++ {
		crc := SignedCRC32([]byte{byte(i), byte(i * 7), byte(i * 13)})
		if crc < 0 {
			found = true
			break
		}
	}
	require.True(t, found, "expected at least one negative signed CRC32 in the sample")
}

func TestEncodeDecodeRecord(t *testing.T) {
	payload := []byte("hello queue")
	crc := SignedCRC32(payload)
	buf := EncodeRecord(5, crc, int32(len(payload)), 1000, payload)

	seq, gotCRC, ln, tm, err := DecodeRecordHeader(buf)
	require.NoError(t, err)
	require.Equal(t, int32(5), seq)
	require.Equal(t, crc, gotCRC)
	require.Equal(t, int32(len(payload)), ln)
	require.Equal(t, int32(1000), tm)
	require.Equal(t, payload, buf[RecordHeaderSize:])
}

func TestDecodeRecordHeaderShort(t *testing.T) {
	_, _, _, _, err := DecodeRecordHeader([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestEncodeDecodeDelayRecord(t *testing.T) {
	payload := []byte("delayed payload")
	buf := EncodeDelayRecord(123456, int32(len(payload)), payload)

	due, ln, err := DecodeDelayRecordHeader(buf)
	require.NoError(t, err)
	require.Equal(t, int32(123456), due)
	require.Equal(t, int32(len(payload)), ln)
	require.Equal(t, payload, buf[DelayRecordHeaderSize:])
}

func TestDecodeDelayRecordHeaderShort(t *testing.T) {
	_, _, err := DecodeDelayRecordHeader([]byte{1, 2, 3})
	require.Error(t, err)
}
