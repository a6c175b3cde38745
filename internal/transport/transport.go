// Copyright (c) 2026 Develeap
// SPDX-License-Identifier: MPL-2.0

// Package transport defines the abstract boundary of spec.md §6.2: the
// interface the call engine and WebSocket connection invoke, but never
// implement the wire protocol for. The concrete per-platform transports
// named in spec.md §1 (WinHttp, NSURLSession, cURL, ...) are explicitly out
// of scope; this package additionally ships one reference implementation
// (HTTPTransport, net/http + gorilla/websocket backed) used only by this
// module's own tests, playing the same "stand-in for the real platform
// transport" role net/http's DefaultTransport plays in httptest-based
// library tests generally.
package transport

import (
	"context"
	"time"
)

// Request is everything a transport needs to perform one physical
// HTTP attempt. It is a flattened, transport-facing view of the engine's
// Call object — deliberately not the Call type itself, so Transport
// implementations depend on a narrow contract rather than the whole engine.
type Request struct {
	Method  string
	URL     string
	Headers Headers

	// Body is read in full before the request is issued; streaming
	// request bodies are out of scope for the reference transport (the
	// engine always hands it a fully materialized byte slice after any
	// compression step).
	Body []byte

	Timeout       time.Duration // single-attempt timeout, 0 = none
	SSLValidation bool
}

// Headers is the minimal read-only view a transport needs; avoids importing
// internal/headers from a package meant to model an external boundary.
type Headers interface {
	Range(fn func(name, value string) bool)
}

// Result is what a transport hands back. Status 0 with a non-zero
// NetworkErrorCode models a transport-level failure — spec.md §4.1 is
// explicit that these are not engine errors, just response state.
type Result struct {
	StatusCode          int
	Headers             []HeaderField
	Body                []byte
	NetworkErrorCode    int32 // 0 = success
	PlatformErrorCode   int32
	PlatformErrorString string
}

// HeaderField is one response header as returned by the wire.
type HeaderField struct {
	Name  string
	Value string
}

// WSFrameKind enumerates the shapes of WebSocket payload a transport can
// hand back from a read, per spec.md §4.4.
type WSFrameKind int

const (
	WSTextFragment WSFrameKind = iota
	WSBinaryFragment
	WSTextMessage
	WSBinaryMessage
	WSCloseFrame
)

// WSFrame is one event read off a WebSocket connection.
type WSFrame struct {
	Kind         WSFrameKind
	Data         []byte
	EndOfMessage bool
	CloseStatus  int
}

// WSSendKind distinguishes text from binary sends.
type WSSendKind int

const (
	WSSendUTF8 WSSendKind = iota
	WSSendBinary
)

// Transport is the abstract perform/connect/send/close contract spec.md
// §6.2 places outside the core's responsibility.
type Transport interface {
	// Perform executes one physical HTTP request/response exchange.
	Perform(ctx context.Context, req Request) (Result, error)

	// WebSocketConnect performs the HTTP upgrade handshake and, on
	// success, returns a live Conn for the engine to hand to
	// internal/wsconn.
	WebSocketConnect(ctx context.Context, req Request, subProtocol string) (WSConn, Result, error)

	// SetGlobalProxy configures an optional process-wide proxy URI. Not
	// every transport supports this; implementations that don't may no-op.
	SetGlobalProxy(uri string) error
}

// WSConn is a live WebSocket connection as handed back by
// Transport.WebSocketConnect. internal/wsconn owns send serialization and
// fragment reassembly on top of this narrow read/write/close contract.
type WSConn interface {
	Send(ctx context.Context, kind WSSendKind, payload []byte) error
	Read(ctx context.Context) (WSFrame, error)
	Close(status int) error
}
