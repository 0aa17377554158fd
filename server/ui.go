package server

import (
	"net"
	"sync"
	"time"

	"madigan/message"
	"madigan/protocol"
)

// UIInfo is the public view of one connected UI.
type UIInfo struct {
	ID        string    `json:"id"`
	Plugin    string    `json:"plugin"`
	Remote    string    `json:"remote"`
	Connected time.Time `json:"connected"`
	Messages  int       `json:"messages"`
}

type ui struct {
	id        string
	plugin    string
	conn      net.Conn
	connected time.Time

	writeMu sync.Mutex // one frame at a time on conn

	mu       sync.Mutex
	messages []string // last limit messages, oldest first
	limit    int
}

func newUI(h message.Handshake, conn net.Conn, limit int) *ui {
	return &ui{
		id:        h.Source,
		plugin:    h.Plugin,
		conn:      conn,
		connected: time.Now(),
		limit:     limit,
	}
}

func (u *ui) record(msg string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.messages = append(u.messages, msg)
	if len(u.messages) > u.limit {
		u.messages = append(u.messages[:0], u.messages[len(u.messages)-u.limit:]...)
	}
}

func (u *ui) history() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.messages...)
}

func (u *ui) info() UIInfo {
	u.mu.Lock()
	n := len(u.messages)
	u.mu.Unlock()
	return UIInfo{
		ID:        u.id,
		Plugin:    u.plugin,
		Remote:    u.conn.RemoteAddr().String(),
		Connected: u.connected,
		Messages:  n,
	}
}

func (u *ui) send(payload []byte, maxLen uint32, timeout time.Duration) error {
	u.writeMu.Lock()
	defer u.writeMu.Unlock()
	if err := u.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	return protocol.WriteFrame(u.conn, payload, maxLen)
}
