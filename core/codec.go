package core

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/zeebo/xxh3"

	"kvd/internal/kverrors"
)

// tombstoneValue is the sentinel reserved for deletions; it can never be
// stored as a real value (see DESIGN.md on the tombstone ambiguity).
const tombstoneValue = "rm"

// lenPrefixSize is the width of the big-endian length prefix in front of
// every record's JSON payload.
const lenPrefixSize = 8

// wireRecord is the on-disk JSON payload of one record: {"key":"…","value":"…"}.
type wireRecord struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// writeRecord appends one record to w and returns the number of bytes
// written (prefix + payload) and an in-memory checksum of the payload. The
// checksum never touches disk; it only guards against corruption of bytes
// we already hold in the page cache between a write and a later read (see
// DESIGN.md on xxh3 usage).
func writeRecord(w io.Writer, key, value string) (n int64, checksum uint64, err error) {
	payload, err := json.Marshal(wireRecord{Key: key, Value: value})
	if err != nil {
		return 0, 0, fmt.Errorf("encode record: %w", err)
	}

	var prefix [lenPrefixSize]byte
	binary.BigEndian.PutUint64(prefix[:], uint64(len(payload)))

	if _, err := w.Write(prefix[:]); err != nil {
		return 0, 0, err
	}
	if _, err := w.Write(payload); err != nil {
		return 0, 0, err
	}

	return int64(lenPrefixSize + len(payload)), xxh3.Hash(payload), nil
}

// readRecordAt reads the length-byte payload starting at start (the first
// byte after a record's length prefix, per the index entry contract) and
// decodes it.
func readRecordAt(r io.ReaderAt, start, length int64) (key, value string, checksum uint64, err error) {
	buf := make([]byte, length)
	if _, err := r.ReadAt(buf, start); err != nil {
		return "", "", 0, err
	}

	var rec wireRecord
	if err := json.Unmarshal(buf, &rec); err != nil {
		return "", "", 0, kverrors.Wrap(err, kverrors.CodeCodec, "decode record")
	}

	return rec.Key, rec.Value, xxh3.Hash(buf), nil
}

// scannedRecord is one record recovered while replaying a segment.
type scannedRecord struct {
	key      string
	value    string
	start    int64 // offset of the payload, i.e. record offset + lenPrefixSize
	length   int64
	checksum uint64
}

// scanSegment replays every complete record in f from the beginning and
// returns them in offset order, along with validSize: the offset just past
// the last complete record. If f's length exceeds validSize, the tail is a
// torn write from a crash mid-append (§4.1/§9) and the caller should
// truncate to validSize. A complete-looking record that fails to decode is
// treated as mid-file corruption and is fatal, unlike a torn tail.
func scanSegment(f io.ReaderAt) (records []scannedRecord, validSize int64, err error) {
	sr := io.NewSectionReader(f, 0, 1<<62)
	br := bufio.NewReader(sr)

	var offset int64
	for {
		var prefix [lenPrefixSize]byte
		if _, err := io.ReadFull(br, prefix[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break // clean end, or a torn length prefix: both are a truncatable tail
			}
			return nil, 0, err
		}
		length := binary.BigEndian.Uint64(prefix[:])

		payload := make([]byte, length)
		if _, err := io.ReadFull(br, payload); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break // torn payload: truncatable tail
			}
			return nil, 0, err
		}

		var rec wireRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, 0, kverrors.Wrap(err, kverrors.CodeCodec,
				fmt.Sprintf("corrupt record at offset %d", offset))
		}

		records = append(records, scannedRecord{
			key:      rec.Key,
			value:    rec.Value,
			start:    offset + lenPrefixSize,
			length:   int64(length),
			checksum: xxh3.Hash(payload),
		})

		offset += lenPrefixSize + int64(length)
	}

	return records, offset, nil
}
