// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Record is one entry of the log.
type Record struct {
	LSN     uint64 `msgpack:"lsn"`
	Payload []byte `msgpack:"payload"`
}

// Each frame is a big-endian body length, a CRC-32C of the body, and the
// msgpack-encoded Record.
const (
	frameHeaderSize = 8
	maxFrameBody    = 64 << 20
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func encodeFrame(rec *Record) ([]byte, error) {
	body, err := msgpack.Marshal(rec)
	if err != nil {
		return nil, err
	}
	if len(body) > maxFrameBody {
		return nil, fmt.Errorf("record %d: %w", rec.LSN, ErrTooLarge)
	}
	frame := make([]byte, frameHeaderSize+len(body))
	binary.BigEndian.PutUint32(frame[0:4], uint32(len(body)))
	binary.BigEndian.PutUint32(frame[4:8], crc32.Checksum(body, castagnoli))
	copy(frame[frameHeaderSize:], body)
	return frame, nil
}

// Replay reads every record from r in log order, calling fn for each. It stops
// at the first error returned by fn and returns it. A frame cut short by the
// end of r yields an error matching [ErrTruncated]; a frame that fails its
// checksum or cannot be decoded yields an error matching [ErrCorrupt].
func Replay(r io.Reader, fn func(Record) error) error {
	_, err := scan(r, fn)
	return err
}

// scan is Replay that also reports how many bytes of r held intact frames.
func scan(r io.Reader, fn func(Record) error) (int64, error) {
	br := bufio.NewReader(r)
	var valid int64
	var header [frameHeaderSize]byte
	var prevLSN uint64
	for {
		if _, err := io.ReadFull(br, header[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return valid, nil
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return valid, fmt.Errorf("frame header at offset %d: %w", valid, ErrTruncated)
			}
			return valid, err
		}
		n := binary.BigEndian.Uint32(header[0:4])
		if n > maxFrameBody {
			return valid, fmt.Errorf("frame at offset %d claims %d bytes: %w", valid, n, ErrCorrupt)
		}
		body := make([]byte, n)
		if _, err := io.ReadFull(br, body); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return valid, fmt.Errorf("frame body at offset %d: %w", valid, ErrTruncated)
			}
			return valid, err
		}
		if crc32.Checksum(body, castagnoli) != binary.BigEndian.Uint32(header[4:8]) {
			return valid, fmt.Errorf("frame at offset %d: checksum mismatch: %w", valid, ErrCorrupt)
		}
		var rec Record
		if err := msgpack.Unmarshal(body, &rec); err != nil {
			return valid, fmt.Errorf("frame at offset %d: %w: %w", valid, ErrCorrupt, err)
		}
		if prevLSN != 0 && rec.LSN <= prevLSN {
			return valid, fmt.Errorf("record %d follows %d: %w", rec.LSN, prevLSN, ErrCorrupt)
		}
		prevLSN = rec.LSN
		valid += frameHeaderSize + int64(n)
		if err := fn(rec); err != nil {
			return valid, err
		}
	}
}
