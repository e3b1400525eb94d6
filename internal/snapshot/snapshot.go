// Package snapshot exports a message store to a single self-checking blob
// and loads it back.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"Casper/internal/message"
	"Casper/internal/types"
)

const (
	// snapshotVersion is the current snapshot format version.
	snapshotVersion = 1

	// checksumSize is the length of the blake3 checksum.
	checksumSize = 32

	// minBufferSize is the smallest buffer that can hold a root table offset.
	minBufferSize = 8
)

var (
	// ErrMalformedSnapshot is returned when a snapshot cannot be decoded.
	ErrMalformedSnapshot = errors.New("malformed snapshot")

	// ErrChecksumMismatch is returned when the records do not match the checksum.
	ErrChecksumMismatch = errors.New("snapshot checksum mismatch")

	// ErrUnsupportedVersion is returned for snapshots of another format version.
	ErrUnsupportedVersion = errors.New("unsupported snapshot version")
)

// Export serialises every record of store, sorted by hash, into a
// zstd-compressed FlatBuffers snapshot with a blake3 checksum.
func Export(store *message.Store) ([]byte, error) {
	hashes, err := store.Hashes()
	if err != nil {
		return nil, fmt.Errorf("list records:\n%w", err)
	}

	records := make([][]byte, len(hashes))
	for i, h := range hashes {
		data, err := store.Raw(h)
		if err != nil {
			return nil, fmt.Errorf("read record %s:\n%w", h.Short(), err)
		}
		records[i] = data
	}

	data := buildSnapshot(records)

	compressed, err := compress(data)
	if err != nil {
		return nil, fmt.Errorf("compress snapshot:\n%w", err)
	}

	return compressed, nil
}

// Import verifies a snapshot produced by Export and inserts its records
// into store, dependencies first. Records already present are skipped.
// Returns the number of records written.
func Import(store *message.Store, data []byte) (int, error) {
	raw, err := decompress(data)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}

	records, err := readSnapshot(raw)
	if err != nil {
		return 0, err
	}

	byHash := make(map[message.Hash]message.Record, len(records))
	order := make([]message.Hash, 0, len(records))

	for i, data := range records {
		rec, err := message.Decode(data)
		if err != nil {
			return 0, fmt.Errorf("decode record %d:\n%w", i, err)
		}

		h := rec.Hash()
		byHash[h] = rec
		order = append(order, h)
	}

	imp := &importer{
		store:    store,
		records:  byHash,
		visiting: make(map[message.Hash]bool),
	}

	for _, h := range order {
		if err := imp.insert(h); err != nil {
			return imp.written, err
		}
	}

	return imp.written, nil
}

// importer inserts snapshot records so that every record is written after
// the records it cites.
type importer struct {
	store    *message.Store
	records  map[message.Hash]message.Record
	visiting map[message.Hash]bool
	written  int
}

func (imp *importer) insert(h message.Hash) error {
	if imp.store.Exists(h) {
		return nil
	}
	if imp.visiting[h] {
		return fmt.Errorf("%w: cycle through record %s", ErrMalformedSnapshot, h.Short())
	}

	rec, ok := imp.records[h]
	if !ok {
		return fmt.Errorf("%w: %s", message.ErrUnknownHash, h)
	}

	imp.visiting[h] = true
	for _, j := range rec.Justification {
		if err := imp.insert(j); err != nil {
			return err
		}
	}
	delete(imp.visiting, h)

	if _, err := imp.store.Put(rec); err != nil {
		return fmt.Errorf("insert record %s:\n%w", h.Short(), err)
	}
	imp.written++

	return nil
}

// buildSnapshot creates the FlatBuffers snapshot. records must be sorted.
func buildSnapshot(records [][]byte) []byte {
	return encodeSnapshot(snapshotVersion, computeChecksum(snapshotVersion, records), records)
}

// encodeSnapshot lays out the snapshot table.
func encodeSnapshot(version uint32, checksum [checksumSize]byte, records [][]byte) []byte {
	builder := flatbuffers.NewBuilder(1024)

	offsets := make([]flatbuffers.UOffsetT, len(records))
	for i, data := range records {
		dataOffset := builder.CreateByteVector(data)

		types.SnapshotRecordStart(builder)
		types.SnapshotRecordAddData(builder, dataOffset)
		offsets[i] = types.SnapshotRecordEnd(builder)
	}

	types.SnapshotStartRecordsVector(builder, len(offsets))
	for i := len(offsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(offsets[i])
	}
	recordsVector := builder.EndVector(len(offsets))

	checksumOffset := builder.CreateByteVector(checksum[:])

	types.SnapshotStart(builder)
	types.SnapshotAddVersion(builder, version)
	types.SnapshotAddChecksum(builder, checksumOffset)
	types.SnapshotAddRecords(builder, recordsVector)
	types.FinishSnapshotBuffer(builder, types.SnapshotEnd(builder))

	return builder.FinishedBytes()
}

// readSnapshot decodes and verifies a decompressed snapshot and returns
// copies of its record bytes.
func readSnapshot(data []byte) (records [][]byte, err error) {
	if len(data) < minBufferSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedSnapshot, len(data))
	}

	// Accessors index the buffer without bounds checks of their own.
	defer func() {
		if r := recover(); r != nil {
			records = nil
			err = fmt.Errorf("%w: %v", ErrMalformedSnapshot, r)
		}
	}()

	snap := types.GetRootAsSnapshot(data, 0)

	if v := snap.Version(); v != snapshotVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}

	stored := snap.ChecksumBytes()
	if len(stored) != checksumSize {
		return nil, fmt.Errorf("%w: checksum length %d", ErrMalformedSnapshot, len(stored))
	}

	records = make([][]byte, snap.RecordsLength())
	var rec types.SnapshotRecord

	for i := range records {
		if !snap.Records(&rec, i) {
			return nil, fmt.Errorf("%w: read record %d", ErrMalformedSnapshot, i)
		}
		records[i] = bytes.Clone(rec.DataBytes())
	}

	computed := computeChecksum(snap.Version(), records)
	if !bytes.Equal(computed[:], stored) {
		return nil, ErrChecksumMismatch
	}

	return records, nil
}

// computeChecksum computes a blake3 checksum over canonical snapshot data.
// Format: version (4 bytes) + for each record: length (4 bytes) + bytes
func computeChecksum(version uint32, records [][]byte) [checksumSize]byte {
	hasher := blake3.New()

	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], version)
	hasher.Write(buf[:])

	for _, data := range records {
		binary.BigEndian.PutUint32(buf[:], uint32(len(data)))
		hasher.Write(buf[:])
		hasher.Write(data)
	}

	var checksum [checksumSize]byte
	hasher.Sum(checksum[:0])

	return checksum
}

// compress compresses snapshot data using zstd.
func compress(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create encoder:\n%w", err)
	}
	defer encoder.Close()

	return encoder.EncodeAll(data, nil), nil
}

// decompress decompresses zstd-compressed snapshot data.
func decompress(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create decoder:\n%w", err)
	}
	defer decoder.Close()

	return decoder.DecodeAll(data, nil)
}
