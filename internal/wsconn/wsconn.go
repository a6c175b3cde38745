// Copyright (c) 2026 Develeap
// SPDX-License-Identifier: MPL-2.0

// Package wsconn implements the WebSocket connection lifecycle of spec.md
// §4.4: Initialized -> Connecting -> Connected -> Closing -> Closed, a
// serialized send queue, and fragment reassembly with a doubling receive
// buffer capped at a configurable maximum. It is grounded on the call
// engine's retry-disabled perform path for the upgrade handshake and on
// internal/transport's WSConn contract for the live socket.
package wsconn

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/develeap/rtnet/internal/errcat"
	"github.com/develeap/rtnet/internal/headers"
	"github.com/develeap/rtnet/internal/metrics"
	"github.com/develeap/rtnet/internal/trace"
	"github.com/develeap/rtnet/internal/transport"
)

// State is one of the connection lifecycle stages of spec.md §4.4.
type State int32

const (
	Initialized State = iota
	Connecting
	Connected
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Initialized:
		return "Initialized"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Closing:
		return "Closing"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// MessageKind distinguishes reassembled text from binary messages.
type MessageKind int

const (
	TextMessage MessageKind = iota
	BinaryMessage
)

// Message is one inbound WebSocket message that arrived as a single frame
// within MaxMessageSize, handed whole to MessageHandler. A message split
// across frames, or larger than MaxMessageSize, is not reassembled: its
// chunks go to BinaryFragmentHandler instead (spec.md §4.4
// "forwardingFragments").
type Message struct {
	Kind MessageKind
	Data []byte
}

// DefaultMaxMessageSize is maxReceiveBufferSize's default, per spec.md §3:
// "maxReceiveBufferSize (default 4 KiB, grows to configured cap)". The
// internal working buffer independently starts at 4 KiB and doubles on
// each fill event up to whatever cap is configured (spec.md §4.4).
const DefaultMaxMessageSize = 4 << 10 // 4 KiB

// MessageHandler receives messages delivered whole (see Message).
type MessageHandler func(Message)

// BinaryFragmentHandler observes each chunk of a message that is being
// forwarded in pieces — because it arrived as more than one physical frame,
// or because it outgrew MaxMessageSize before ending — per spec.md's
// WebSocketSetBinaryMessageFragmentEventFunction and §4.4's
// forwardingFragments state. isFinal marks the chunk that completes the
// message; once forwarding starts for a message, MessageHandler is not
// also invoked for it.
type BinaryFragmentHandler func(data []byte, isFinal bool)

// CloseHandler is invoked exactly once when the connection transitions to
// Closed, whether due to a local Disconnect, a remote close frame, or a
// transport error.
type CloseHandler func(status int, err error)

// Connection is one WebSocket connection, from handshake through close.
type Connection struct {
	URL         string
	SubProtocol string
	Headers     headers.Map

	MaxMessageSize int

	Transport transport.Transport
	Tracer    *trace.Dispatcher
	Metrics   metrics.Recorder

	OnMessage        MessageHandler
	OnClose          CloseHandler
	OnBinaryFragment BinaryFragmentHandler

	state atomic.Int32

	mu     sync.Mutex
	conn   transport.WSConn
	sendMu sync.Mutex // serializes Send so fragments from different goroutines never interleave

	closeOnce sync.Once
}

// New builds a Connection in the Initialized state. Callers configure
// URL/SubProtocol/Headers before calling Connect.
func New(tr transport.Transport) *Connection {
	c := &Connection{
		Transport:      tr,
		MaxMessageSize: DefaultMaxMessageSize,
		Tracer:         trace.NewDispatcher(),
	}
	c.state.Store(int32(Initialized))
	return c
}

// State returns the connection's current lifecycle stage.
func (c *Connection) State() State {
	return State(c.state.Load())
}

func (c *Connection) setState(s State) {
	c.state.Store(int32(s))
}

// Connect performs the HTTP upgrade handshake via Transport.WebSocketConnect
// and, on success, starts the receive loop. It is not retried by the call
// engine's retry policy — WebSocket upgrades are one-shot per spec.md §4.4.
func (c *Connection) Connect(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(Initialized), int32(Connecting)) {
		return errcat.New(errcat.ConnectAlreadyCalled, "connect already called", errcat.WithOp("WebSocketConnectAsync"))
	}

	req := transport.Request{Method: "GET", URL: c.URL, Headers: &c.Headers}
	conn, result, err := c.Transport.WebSocketConnect(ctx, req, c.SubProtocol)
	if err != nil || conn == nil {
		c.setState(Closed)
		msg := "websocket upgrade failed"
		if err != nil {
			msg = err.Error()
		} else if result.PlatformErrorString != "" {
			msg = result.PlatformErrorString
		}
		return errcat.New(errcat.NetworkError, msg, errcat.WithOp("WebSocketConnectAsync"),
			errcat.WithPlatform(result.PlatformErrorCode, result.PlatformErrorString))
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setState(Connected)

	go c.receiveLoop(ctx)
	return nil
}

// Send transmits one complete message. Sends are serialized: concurrent
// callers block on sendMu rather than interleaving frames on the wire,
// matching spec.md §4.4 "send queue (serialized)".
func (c *Connection) Send(ctx context.Context, kind transport.WSSendKind, payload []byte) error {
	if c.State() != Connected {
		return errcat.New(errcat.NotInitialized, "send on a connection that is not connected", errcat.WithOp("WebSocketSendMessageAsync"))
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errcat.New(errcat.NotInitialized, "send on a connection with no live socket", errcat.WithOp("WebSocketSendMessageAsync"))
	}

	err := conn.Send(ctx, kind, payload)
	if c.Metrics != nil {
		c.Metrics.RecordWebSocketSend(c.URL, len(payload), err == nil)
	}
	if err != nil {
		return errcat.New(errcat.NetworkError, "websocket send failed", errcat.WithOp("WebSocketSendMessageAsync"), errcat.WithUnderlying(err))
	}
	return nil
}

// assembly tracks one in-progress logical message across however many
// physical frames it takes to complete, per spec.md §4.4's receive state.
type assembly struct {
	active     bool
	binary     bool
	forwarding bool // once true, every remaining chunk (incl. the last) goes through the fragment handler instead of OnMessage
	buf        []byte
}

// receiveLoop reads frames until the connection closes, accumulating each
// message in a buffer capped at MaxMessageSize: a message that arrives as
// one frame within the cap goes whole to OnMessage, and one split across
// frames or outgrowing the cap is forwarded chunk by chunk through the
// fragment handler (spec.md §4.4).
func (c *Connection) receiveLoop(ctx context.Context) {
	var asm assembly

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		frame, err := conn.Read(ctx)
		if err != nil {
			c.finishClose(frame.CloseStatus, err)
			return
		}

		switch frame.Kind {
		case transport.WSCloseFrame:
			c.finishClose(frame.CloseStatus, nil)
			return

		case transport.WSTextMessage, transport.WSBinaryMessage:
			c.feed(&asm, frame.Kind == transport.WSBinaryMessage, frame.Data, true, false)

		case transport.WSTextFragment, transport.WSBinaryFragment:
			c.feed(&asm, frame.Kind == transport.WSBinaryFragment, frame.Data, frame.EndOfMessage, true)
		}
	}
}

// feed folds one physical chunk into the in-progress logical message, per
// spec.md §4.4 "Receive and fragment handling":
//   - if kind is a fragment and/or the buffer fills before message end,
//     the chunk is flushed through the fragment handler with
//     endOfMessage=false and forwardingFragments latches true;
//   - on whole-message completion, a forwarding message's final chunk
//     flushes through the fragment handler with endOfMessage=true;
//     otherwise it is delivered whole through OnMessage.
func (c *Connection) feed(asm *assembly, binary bool, data []byte, endOfMessage, isFragmentFrame bool) {
	if !asm.active {
		asm.active = true
		asm.binary = binary
		asm.forwarding = false
		asm.buf = asm.buf[:0]
	}

	remaining := data
	for {
		room := c.MaxMessageSize - len(asm.buf)
		if room <= 0 {
			c.forwardFragment(asm, false)
			room = c.MaxMessageSize
		}
		n := len(remaining)
		if n > room {
			n = room
		}
		asm.buf = append(asm.buf, remaining[:n]...)
		remaining = remaining[n:]
		if len(remaining) == 0 {
			break
		}
	}

	// A fragment-typed frame that isn't the last one always flushes now,
	// even if the buffer never filled, per spec.md's "if kind is a
	// fragment ... invoke binaryFragmentFn".
	if isFragmentFrame && !endOfMessage {
		c.forwardFragment(asm, false)
	}

	if !endOfMessage {
		return
	}

	if asm.forwarding || isFragmentFrame {
		c.forwardFragment(asm, true)
	} else {
		c.deliverWhole(asm.binary, asm.buf)
	}
	asm.active = false
	asm.buf = nil
}

// forwardFragment flushes asm's accumulated bytes through OnBinaryFragment
// and resets the buffer, latching forwarding so the eventual final chunk of
// this logical message also goes through the fragment handler.
func (c *Connection) forwardFragment(asm *assembly, isFinal bool) {
	asm.forwarding = true
	data := asm.buf
	asm.buf = make([]byte, 0, growBuf(0, c.MaxMessageSize))
	if c.Metrics != nil {
		c.Metrics.RecordWebSocketReceive(c.URL, len(data), true)
	}
	if c.OnBinaryFragment == nil {
		return
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.safeDeliverFragment(cp, isFinal)
}

func growBuf(current, maxSize int) int {
	next := current * 2
	if current == 0 {
		next = 4096
	}
	if next > maxSize {
		next = maxSize
	}
	return next
}

// deliverWhole hands a fully reassembled, never-forwarded message to
// OnMessage. Text messages are null-terminated before handoff, per
// spec.md §4.4: "Non-binary text messages are null-terminated before
// handoff."
func (c *Connection) deliverWhole(binary bool, data []byte) {
	if c.Metrics != nil {
		c.Metrics.RecordWebSocketReceive(c.URL, len(data), false)
	}
	if c.OnMessage == nil {
		return
	}
	kind := TextMessage
	if binary {
		kind = BinaryMessage
		msg := make([]byte, len(data))
		copy(msg, data)
		c.safeDeliver(Message{Kind: kind, Data: msg})
		return
	}
	msg := make([]byte, len(data)+1)
	copy(msg, data)
	msg[len(data)] = 0
	c.safeDeliver(Message{Kind: kind, Data: msg})
}

// safeDeliver invokes OnMessage with panics swallowed, matching the
// call-routed-handler and trace-sink contract elsewhere in this module:
// a misbehaving client callback must not take down the receive loop.
func (c *Connection) safeDeliver(msg Message) {
	defer func() { _ = recover() }()
	c.OnMessage(msg)
}

// safeDeliverFragment invokes OnBinaryFragment with panics swallowed.
func (c *Connection) safeDeliverFragment(data []byte, isFinal bool) {
	defer func() { _ = recover() }()
	c.OnBinaryFragment(data, isFinal)
}

func (c *Connection) finishClose(status int, err error) {
	c.closeOnce.Do(func() {
		c.setState(Closed)
		if c.OnClose != nil {
			func() {
				defer func() { _ = recover() }()
				c.OnClose(status, err)
			}()
		}
	})
}

// Disconnect closes the connection from the local side with the given close
// status, per spec.md §4.4 WebSocketDisconnect / DisconnectEventArgs.
func (c *Connection) Disconnect(status int) error {
	prev := c.State()
	if prev == Closed || prev == Closing {
		return nil
	}
	c.setState(Closing)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close(status)
	}
	c.finishClose(status, nil)
	return err
}
