// Package display streams FFT frames to websocket clients. Every frame is
// a binary message of little endian float32 power values in dB.
package display

import (
	"encoding/binary"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// queueSize is the number of frames buffered per client. Frames are
	// dropped for clients that are slower than the frame rate.
	queueSize = 4
	// writeWait is the time allowed to write a frame.
	writeWait = time.Second
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// writePump sends queued frames until the queue is closed.
func (c *client) writePump() {
	defer c.conn.Close()
	for frame := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// Server broadcasts frames to connected clients.
type Server struct {
	upgrader websocket.Upgrader
	log      logrus.FieldLogger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	wg      sync.WaitGroup
}

// New returns a display server.
func New(l logrus.FieldLogger) *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 65536,
		},
		log:     l,
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the connection and registers the client.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	c := &client{
		conn: conn,
		send: make(chan []byte, queueSize),
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[c] = struct{}{}
	s.wg.Add(2)
	s.mu.Unlock()
	s.log.WithField("remote", r.RemoteAddr).Debug("display client connected")

	go func() {
		defer s.wg.Done()
		c.writePump()
	}()
	go func() {
		defer s.wg.Done()
		s.readPump(c)
	}()
}

// readPump discards incoming messages and unregisters the client when the
// connection is closed.
func (s *Server) readPump(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
	s.remove(c)
}

func (s *Server) remove(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
}

// Publish encodes the frame and queues it for every client. It never
// blocks, so it can be used as fft handler.
func (s *Server) Publish(power []float32) {
	frame := make([]byte, 4*len(power))
	for i, v := range power {
		binary.LittleEndian.PutUint32(frame[4*i:], math.Float32bits(v))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- frame:
		default:
		}
	}
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close disconnects all clients and waits for their goroutines.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Decode converts a binary frame back to power values.
func Decode(frame []byte) []float32 {
	power := make([]float32, len(frame)/4)
	for i := range power {
		power[i] = math.Float32frombits(binary.LittleEndian.Uint32(frame[4*i:]))
	}
	return power
}
