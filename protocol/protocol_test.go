package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		[]byte("x"),
		[]byte("source|1a2b-0||plugin|urn:example:synth"),
		bytes.Repeat([]byte{0xAB}, int(DefaultMaxFrame)),
	}

	var buf bytes.Buffer
	for _, p := range payloads {
		require.NoError(t, WriteFrame(&buf, p, DefaultMaxFrame))
	}
	for _, p := range payloads {
		got, err := ReadFrame(&buf, DefaultMaxFrame)
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	assert.Zero(t, buf.Len())
}

func TestWriteFrameWireLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("hello"), DefaultMaxFrame))
	assert.Equal(t, []byte{0, 0, 0, 5, 'h', 'e', 'l', 'l', 'o'}, buf.Bytes())
}

func TestZeroLengthFrameIsEmptyNotNil(t *testing.T) {
	got, err := ReadFrame(bytes.NewReader([]byte{0, 0, 0, 0}), DefaultMaxFrame)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Len(t, got, 0)
}

func TestWriteFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, make([]byte, 11), 10)
	assert.True(t, errors.Is(err, ErrFrameTooLarge))
	assert.Zero(t, buf.Len(), "nothing may be written for a rejected frame")
}

func TestReadFrameTooLargeKeepsStreamAligned(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, bytes.Repeat([]byte("a"), 64), 1024))
	require.NoError(t, WriteFrame(&buf, []byte("next"), 1024))

	_, err := ReadFrame(&buf, 16)
	require.True(t, errors.Is(err, ErrFrameTooLarge), "got %v", err)

	got, err := ReadFrame(&buf, 16)
	require.NoError(t, err)
	assert.Equal(t, "next", string(got))
}

func TestReadFrameTruncatedPayload(t *testing.T) {
	frame := []byte{0, 0, 0, 8, 'a', 'b'}
	_, err := ReadFrame(bytes.NewReader(frame), DefaultMaxFrame)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
}

type shortWriter struct {
	buf   bytes.Buffer
	calls int
}

func (w *shortWriter) Write(p []byte) (int, error) {
	w.calls++
	if w.calls%2 == 1 && len(p) > 1 {
		return w.buf.Write(p[:1])
	}
	return w.buf.Write(p)
}

func TestWriteFrameRetriesPartialWrites(t *testing.T) {
	w := &shortWriter{}
	require.NoError(t, WriteFrame(w, []byte("partial"), DefaultMaxFrame))

	got, err := ReadFrame(&w.buf, DefaultMaxFrame)
	require.NoError(t, err)
	assert.Equal(t, "partial", string(got))
	assert.Greater(t, w.calls, 2)
}

// tcpPair returns both ends of a loopback TCP connection.
func tcpPair(t *testing.T) (client, server net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()

	client, err = net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	server = <-accepted
	require.NotNil(t, server)
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func TestReceiveReturnsNothingWhenIdle(t *testing.T) {
	client, _ := tcpPair(t)
	rc := NewReceiver(client, time.Millisecond, time.Second)

	start := time.Now()
	got, err := rc.Receive(DefaultMaxFrame)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func receiveEventually(t *testing.T, rc *Receiver, maxLen uint32) []byte {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := rc.Receive(maxLen)
		require.NoError(t, err)
		if got != nil {
			return got
		}
	}
	t.Fatal("no frame received")
	return nil
}

func TestReceiveRoundTripOverTCP(t *testing.T) {
	client, server := tcpPair(t)
	rc := NewReceiver(client, time.Millisecond, time.Second)

	require.NoError(t, WriteFrame(server, []byte("type|control-input-port||key|7||value|3.5"), DefaultMaxFrame))
	require.NoError(t, WriteFrame(server, nil, DefaultMaxFrame))

	assert.Equal(t, "type|control-input-port||key|7||value|3.5", string(receiveEventually(t, rc, DefaultMaxFrame)))
	empty := receiveEventually(t, rc, DefaultMaxFrame)
	assert.Len(t, empty, 0)
}

func TestReceivePartialPrefixStaysBuffered(t *testing.T) {
	client, server := tcpPair(t)
	rc := NewReceiver(client, time.Millisecond, time.Second)

	var prefix [PrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], 3)
	_, err := server.Write(prefix[:2])
	require.NoError(t, err)

	// Only half a prefix has arrived: nothing to deliver yet.
	time.Sleep(20 * time.Millisecond)
	got, err := rc.Receive(DefaultMaxFrame)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = server.Write(append(prefix[2:], 'a', 'b', 'c'))
	require.NoError(t, err)
	assert.Equal(t, "abc", string(receiveEventually(t, rc, DefaultMaxFrame)))
}

func TestReceiveTooLargeThenNextFrame(t *testing.T) {
	client, server := tcpPair(t)
	rc := NewReceiver(client, time.Millisecond, time.Second)

	require.NoError(t, WriteFrame(server, bytes.Repeat([]byte("z"), 100), 1024))
	require.NoError(t, WriteFrame(server, []byte("ok"), 1024))

	var err error
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var got []byte
		got, err = rc.Receive(10)
		if got != nil || err != nil {
			break
		}
	}
	require.True(t, errors.Is(err, ErrFrameTooLarge), "got %v", err)
	assert.Equal(t, "ok", string(receiveEventually(t, rc, 10)))
}

func TestReceiveResumesStalledPayload(t *testing.T) {
	client, server := tcpPair(t)
	rc := NewReceiver(client, time.Millisecond, 20*time.Millisecond)

	_, err := server.Write([]byte{0, 0, 0, 10, 'a', 'b', 'c'})
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for err == nil && time.Now().Before(deadline) {
		_, err = rc.Receive(DefaultMaxFrame)
	}
	require.True(t, errors.Is(err, ErrFrameIncomplete), "got %v", err)
	assert.True(t, rc.Pending())

	_, err = server.Write([]byte("defghij"))
	require.NoError(t, err)
	require.NoError(t, WriteFrame(server, []byte("next"), DefaultMaxFrame))

	assert.Equal(t, "abcdefghij", string(receiveEventually(t, rc, DefaultMaxFrame)))
	assert.False(t, rc.Pending())
	assert.Equal(t, "next", string(receiveEventually(t, rc, DefaultMaxFrame)))
}

func TestReceivePeerClosed(t *testing.T) {
	client, server := tcpPair(t)
	rc := NewReceiver(client, time.Millisecond, time.Second)
	require.NoError(t, server.Close())

	var err error
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && err == nil {
		_, err = rc.Receive(DefaultMaxFrame)
	}
	assert.True(t, errors.Is(err, io.EOF), "got %v", err)
}
