package persist

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// RecordLuaScripts tags the scripting host's state record.
const RecordLuaScripts = "LUAM"

// RecordVersion is bumped whenever the record payload layout changes.
const RecordVersion uint16 = 1

// Record frame: 4-byte type tag, uint16 version, uint32 compressed length,
// zstd-compressed payload. All integers little-endian.
const recordHeaderSize = 4 + 2 + 4

var (
	zstdEnc, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDec, _ = zstd.NewReader(nil)
)

// WriteRecord frames and compresses a record payload.
func WriteRecord(recType string, version uint16, payload []byte) ([]byte, error) {
	if len(recType) != 4 {
		return nil, fmt.Errorf("record type %q must be 4 bytes", recType)
	}
	compressed := zstdEnc.EncodeAll(payload, nil)
	out := make([]byte, recordHeaderSize, recordHeaderSize+len(compressed))
	copy(out[0:4], recType)
	binary.LittleEndian.PutUint16(out[4:6], version)
	binary.LittleEndian.PutUint32(out[6:10], uint32(len(compressed)))
	return append(out, compressed...), nil
}

// ReadRecord validates the frame and returns the decompressed payload. A
// type-tag mismatch is an error: records must never be decoded as the wrong
// kind of state.
func ReadRecord(data []byte, wantType string) (uint16, []byte, error) {
	if len(data) < recordHeaderSize {
		return 0, nil, fmt.Errorf("record truncated: %d bytes", len(data))
	}
	gotType := string(data[0:4])
	if gotType != wantType {
		return 0, nil, fmt.Errorf("record type %q, want %q", gotType, wantType)
	}
	version := binary.LittleEndian.Uint16(data[4:6])
	size := binary.LittleEndian.Uint32(data[6:10])
	body := data[recordHeaderSize:]
	if uint32(len(body)) != size {
		return 0, nil, fmt.Errorf("record body %d bytes, header says %d", len(body), size)
	}
	payload, err := zstdDec.DecodeAll(body, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("decompress record: %w", err)
	}
	return version, payload, nil
}
