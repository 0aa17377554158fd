package protocol

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"
)

// DefaultPollWait is how long Receive waits for a length prefix before
// reporting that no frame is available.
const DefaultPollWait = time.Millisecond

// DeadlineReader is the part of net.Conn the receiver needs.
type DeadlineReader interface {
	io.Reader
	SetReadDeadline(t time.Time) error
}

// Receiver reads frames from a connection without blocking the caller when
// nothing has arrived yet. Bytes of a partially received prefix stay
// buffered between calls, and so does a frame whose payload stalled: the
// next Receive resumes it instead of reading payload bytes as a prefix.
//
//	Receive ──frame pending?──yes──────────────────────────┐
//	            │no                                        ▼
//	      prefix buffered?──no──→ poll PollWait ──timeout──→ (nil, nil)
//	            │yes                  │got 4 bytes
//	            ▼                     ▼
//	      read payload, bounded by ReadTimeout ──→ payload
//	                                 └──timeout──→ ErrFrameIncomplete, kept pending
type Receiver struct {
	conn        DeadlineReader
	br          *bufio.Reader
	pollWait    time.Duration
	readTimeout time.Duration

	pending  bool
	length   uint32
	oversize bool
	payload  []byte
	got      int
}

// NewReceiver wraps conn. readTimeout bounds the completion of a frame whose
// prefix has already arrived; zero means no bound.
func NewReceiver(conn DeadlineReader, pollWait, readTimeout time.Duration) *Receiver {
	if pollWait <= 0 {
		pollWait = DefaultPollWait
	}
	return &Receiver{
		conn:        conn,
		br:          bufio.NewReader(conn),
		pollWait:    pollWait,
		readTimeout: readTimeout,
	}
}

// Pending reports whether a frame's payload is partially read.
func (rc *Receiver) Pending() bool { return rc.pending }

// Receive returns the next frame's payload, or (nil, nil) when no complete
// length prefix is available right now. A payload that does not complete
// within readTimeout yields ErrFrameIncomplete; the bytes read so far are
// kept and the next call continues the same frame.
func (rc *Receiver) Receive(maxLen uint32) ([]byte, error) {
	if !rc.pending {
		if rc.br.Buffered() < PrefixSize {
			if err := rc.conn.SetReadDeadline(time.Now().Add(rc.pollWait)); err != nil {
				return nil, err
			}
			if _, err := rc.br.Peek(PrefixSize); err != nil {
				if isTimeout(err) {
					return nil, nil
				}
				return nil, err
			}
		}

		prefix, err := rc.br.Peek(PrefixSize)
		if err != nil {
			return nil, err
		}
		length := binary.BigEndian.Uint32(prefix)
		if _, err := rc.br.Discard(PrefixSize); err != nil {
			return nil, err
		}
		rc.pending, rc.length, rc.got = true, length, 0
		rc.oversize = length > maxLen
		rc.payload = nil
		if !rc.oversize {
			rc.payload = make([]byte, length)
		}
	}

	// The frame is announced: finish it, but only within readTimeout.
	var deadline time.Time
	if rc.readTimeout > 0 {
		deadline = time.Now().Add(rc.readTimeout)
	}
	if err := rc.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	defer rc.conn.SetReadDeadline(time.Time{})

	return rc.finish()
}

func (rc *Receiver) finish() ([]byte, error) {
	for rc.got < int(rc.length) {
		var n int
		var err error
		if rc.oversize {
			var n64 int64
			n64, err = io.CopyN(io.Discard, rc.br, int64(rc.length)-int64(rc.got))
			n = int(n64)
		} else {
			n, err = io.ReadFull(rc.br, rc.payload[rc.got:])
		}
		rc.got += n
		if err != nil {
			if isTimeout(err) {
				return nil, fmt.Errorf("%w: %d of %d bytes: %w", ErrFrameIncomplete, rc.got, rc.length, err)
			}
			rc.pending = false
			return nil, err
		}
	}

	rc.pending = false
	if rc.oversize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, rc.length)
	}
	payload := rc.payload
	rc.payload = nil
	return payload, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
