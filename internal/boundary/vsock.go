// Package boundary carries a capability across a real process or VM
// boundary over AF_VSOCK, for capability kinds (GPU, today) whose actual
// implementation is expected to run outside the kernel core's own
// address space. The wire framing is a 4-byte big-endian length prefix
// followed by a JSON payload, over a genuine AF_VSOCK socket via
// github.com/mdlayher/vsock.
package boundary

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/mdlayher/vsock"

	"github.com/oriys/domaincore/internal/domain"
)

const maxMessageBytes = 4 << 20

// MsgType tags a framed vsock message.
type MsgType int

const (
	MsgFlush MsgType = iota + 1
	MsgFill
	MsgResp
)

// Message is the framed unit exchanged over the vsock connection.
type Message struct {
	Type    MsgType         `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// FillPayload carries the arguments of a GPU Fill command.
type FillPayload struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	W     int    `json:"w"`
	H     int    `json:"h"`
	Color uint32 `json:"color"`
}

// RespPayload carries the outcome of any command.
type RespPayload struct {
	Error string `json:"error,omitempty"`
}

// GPUClient implements domain.GPU by forwarding every call across a
// vsock connection to a peer GPUServer, typically running in a separate
// process or guest.
type GPUClient struct {
	*domain.ActiveFlag
	contextID uint32
	port      uint32

	mu   sync.Mutex
	conn net.Conn
}

// NewGPUClient constructs a client that dials contextID:port on demand.
// Connections are short-lived: a long-held vsock stream is more
// failure-prone than redialing per call.
// Its active flag tracks the guarding proxy's own crash bookkeeping, not
// the health of the remote peer: a vsock round-trip failure surfaces as
// a plain error from Flush/Fill, not a crash of this local stub.
func NewGPUClient(contextID, port uint32) *GPUClient {
	return &GPUClient{ActiveFlag: domain.NewActiveFlag(), contextID: contextID, port: port}
}

func (c *GPUClient) dial(timeout time.Duration) (net.Conn, error) {
	return vsock.Dial(c.contextID, c.port, nil)
}

func (c *GPUClient) roundTrip(msg *Message, timeout time.Duration) (*Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.dial(timeout)
	if err != nil {
		return nil, fmt.Errorf("boundary: dial vsock %d:%d: %w", c.contextID, c.port, err)
	}
	defer conn.Close()

	if timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}

	if err := writeFramed(conn, msg); err != nil {
		return nil, fmt.Errorf("boundary: send: %w", err)
	}
	resp, err := readFramed(conn)
	if err != nil {
		return nil, fmt.Errorf("boundary: receive: %w", err)
	}
	return resp, nil
}

func (c *GPUClient) HandleIRQ() error { return nil }

func (c *GPUClient) Flush() error {
	resp, err := c.roundTrip(&Message{Type: MsgFlush}, 5*time.Second)
	if err != nil {
		return err
	}
	return decodeResp(resp)
}

func (c *GPUClient) Fill(x, y, w, h int, color uint32) error {
	payload, _ := json.Marshal(FillPayload{X: x, Y: y, W: w, H: h, Color: color})
	resp, err := c.roundTrip(&Message{Type: MsgFill, Payload: payload}, 5*time.Second)
	if err != nil {
		return err
	}
	return decodeResp(resp)
}

var _ domain.GPU = (*GPUClient)(nil)

func decodeResp(msg *Message) error {
	if msg.Type != MsgResp {
		return fmt.Errorf("boundary: unexpected response type %d", msg.Type)
	}
	var r RespPayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &r); err != nil {
			return err
		}
	}
	if r.Error != "" {
		return fmt.Errorf("boundary: peer error: %s", r.Error)
	}
	return nil
}

// GPUServer is the guest/peer-process side: it listens on a vsock port
// and forwards decoded commands to a concrete domain.GPU implementation.
type GPUServer struct {
	port uint32
	impl domain.GPU
	ln   net.Listener
}

// NewGPUServer constructs a server that will serve impl's Flush/Fill
// behavior to remote callers once Serve is running.
func NewGPUServer(port uint32, impl domain.GPU) *GPUServer {
	return &GPUServer{port: port, impl: impl}
}

// Serve accepts connections until the listener is closed or s.Close is
// called; each connection handles exactly one request-response exchange,
// matching the client's per-call dial discipline.
func (s *GPUServer) Serve() error {
	ln, err := vsock.Listen(s.port, nil)
	if err != nil {
		return fmt.Errorf("boundary: listen vsock port %d: %w", s.port, err)
	}
	s.ln = ln
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handle(conn)
	}
}

// Close stops accepting new connections.
func (s *GPUServer) Close() error {
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}

func (s *GPUServer) handle(conn net.Conn) {
	defer conn.Close()
	msg, err := readFramed(conn)
	if err != nil {
		return
	}

	var respErr error
	switch msg.Type {
	case MsgFlush:
		respErr = s.impl.Flush()
	case MsgFill:
		var p FillPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			respErr = err
		} else {
			respErr = s.impl.Fill(p.X, p.Y, p.W, p.H, p.Color)
		}
	default:
		respErr = fmt.Errorf("boundary: unknown message type %d", msg.Type)
	}

	resp := RespPayload{}
	if respErr != nil {
		resp.Error = respErr.Error()
	}
	payload, _ := json.Marshal(resp)
	_ = writeFramed(conn, &Message{Type: MsgResp, Payload: payload})
}

func writeFramed(conn net.Conn, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if len(data) > maxMessageBytes {
		return fmt.Errorf("boundary: message too large: %d bytes", len(data))
	}
	buf := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(data)))
	copy(buf[4:], data)
	_, err = conn.Write(buf)
	return err
}

func readFramed(conn net.Conn) (*Message, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(conn, lenBuf); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf)
	if n > maxMessageBytes {
		return nil, fmt.Errorf("boundary: message too large: %d bytes", n)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(conn, data); err != nil {
		return nil, err
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
