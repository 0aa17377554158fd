// Package protocol implements the length-prefixed frame protocol spoken between
// the UI bridge and its peer.
//
// TCP is a byte stream, so every message is prefixed with its length. The
// receiver reads the 4-byte prefix first, checks it against its limit, then
// reads exactly that many payload bytes and never more.
//
// Frame format:
//
//	0         4
//	┌─────────┬──────────────────────┐
//	│ length  │   payload ...        │
//	│ uint32  │   length bytes       │
//	│ (BE)    │   UTF-8, no NUL      │
//	└─────────┴──────────────────────┘
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"syscall"
)

const (
	// PrefixSize is the size of the big-endian length prefix.
	PrefixSize = 4

	// DefaultMaxFrame matches the bridge's 2 KiB receive buffer minus the
	// terminator slot the receiving side reserves for text handling.
	DefaultMaxFrame uint32 = 2047
)

var (
	ErrFrameTooLarge   = errors.New("protocol: frame exceeds max length")
	ErrFrameIncomplete = errors.New("protocol: frame payload incomplete")
	ErrShortWrite      = errors.New("protocol: write made no progress")
)

// WriteFrame writes one complete frame (prefix + payload) to w.
// The caller must serialize writers sharing w, otherwise the prefix of one
// frame can be followed by the payload of another.
func WriteFrame(w io.Writer, payload []byte, maxLen uint32) error {
	if uint64(len(payload)) > uint64(maxLen) {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(payload), maxLen)
	}

	var prefix [PrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if err := writeFull(w, prefix[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	return writeFull(w, payload)
}

// ReadFrame reads one complete frame from r, blocking until it arrives.
// A declared length above maxLen is rejected after skipping the announced
// payload, so the stream stays aligned on the next frame.
func ReadFrame(r io.Reader, maxLen uint32) ([]byte, error) {
	var prefix [PrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	return readPayload(r, binary.BigEndian.Uint32(prefix[:]), maxLen)
}

func readPayload(r io.Reader, length, maxLen uint32) ([]byte, error) {
	if length > maxLen {
		if _, err := io.CopyN(io.Discard, r, int64(length)); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, maxLen)
	}

	// Zero-length frames are valid and yield an empty, non-nil payload.
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// writeFull loops until every byte of p is written, retrying on EINTR.
func writeFull(w io.Writer, p []byte) error {
	total := 0
	for total < len(p) {
		n, err := w.Write(p[total:])
		total += n
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			return err
		}
		if n == 0 {
			return ErrShortWrite
		}
	}
	return nil
}
