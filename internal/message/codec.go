package message

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformedRecord is returned when stored bytes do not decode to a record.
var ErrMalformedRecord = errors.New("malformed record")

// Encode returns the canonical encoding of a record.
// Format: u32 sender len + sender bytes + i64 estimate + u32 count + count * 32-byte hash
// All integers are little-endian.
func Encode(r Record) []byte {
	buf := make([]byte, 0, 4+len(r.Sender)+8+4+len(r.Justification)*HashSize)

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(r.Sender)))
	buf = append(buf, r.Sender...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(r.Estimate))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(r.Justification)))

	for _, h := range r.Justification {
		buf = append(buf, h[:]...)
	}

	return buf
}

// Decode parses the canonical form produced by Encode.
// Trailing bytes are rejected so that every record has one encoding.
func Decode(data []byte) (Record, error) {
	var r Record

	if len(data) < 4 {
		return r, fmt.Errorf("%w: short sender length", ErrMalformedRecord)
	}

	senderLen := binary.LittleEndian.Uint32(data[0:4])
	offset := uint64(4)
	if uint64(len(data)) < offset+uint64(senderLen)+8+4 {
		return r, fmt.Errorf("%w: short sender or estimate", ErrMalformedRecord)
	}

	r.Sender = string(data[offset : offset+uint64(senderLen)])
	offset += uint64(senderLen)

	r.Estimate = int64(binary.LittleEndian.Uint64(data[offset : offset+8]))
	offset += 8

	count := binary.LittleEndian.Uint32(data[offset : offset+4])
	offset += 4

	if uint64(len(data)) != offset+uint64(count)*HashSize {
		return r, fmt.Errorf("%w: justification length mismatch", ErrMalformedRecord)
	}

	if count > 0 {
		r.Justification = make([]Hash, count)
		for i := range r.Justification {
			copy(r.Justification[i][:], data[offset:offset+HashSize])
			offset += HashSize
		}
	}

	return r, nil
}
