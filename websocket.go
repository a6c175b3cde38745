// Copyright (c) 2026 Develeap
// SPDX-License-Identifier: MPL-2.0

package rtnet

import (
	"context"

	"github.com/develeap/rtnet/internal/asyncop"
	"github.com/develeap/rtnet/internal/errcat"
	"github.com/develeap/rtnet/internal/transport"
	"github.com/develeap/rtnet/internal/wsconn"
)

// WebSocketConnectResult is the payload of a completed WebSocketConnectAsync
// op, retrieved via GetWebSocketConnectResult, per spec.md §6.1.
type WebSocketConnectResult struct {
	Ws               WsHandle
	ErrorCode        int32
	PlatformErrorCode int32
}

// WebSocketSendResult is the payload of a completed
// WebSocketSendMessageAsync/WebSocketSendBinaryMessageAsync op, retrieved
// via GetWebSocketSendMessageResult, per spec.md §6.1.
type WebSocketSendResult struct {
	Ws                WsHandle
	ErrorCode         int32
	PlatformErrorCode int32
}

// GetWebSocketConnectResult returns the result of a completed op returned by
// WebSocketConnectAsync. Calling it before the op completes returns the zero
// result and false.
func GetWebSocketConnectResult(op *asyncop.AsyncOp) (WebSocketConnectResult, bool) {
	status, result := op.GetResult()
	if status == asyncop.StatusPending {
		return WebSocketConnectResult{}, false
	}
	r, _ := result.(WebSocketConnectResult)
	return r, true
}

// GetWebSocketSendMessageResult returns the result of a completed op
// returned by WebSocketSendMessageAsync or WebSocketSendBinaryMessageAsync.
func GetWebSocketSendMessageResult(op *asyncop.AsyncOp) (WebSocketSendResult, bool) {
	status, result := op.GetResult()
	if status == asyncop.StatusPending {
		return WebSocketSendResult{}, false
	}
	r, _ := result.(WebSocketSendResult)
	return r, true
}

// errorCodes splits an engine/wsconn error into spec.md's
// {errorCode, platformErrorCode} pair, both zero on success.
func errorCodes(err error) (int32, int32) {
	if err == nil {
		return 0, 0
	}
	if ce, ok := err.(*errcat.Error); ok {
		return 1, ce.PlatformCode
	}
	return 1, 0
}

// WebSocketCreate allocates a WebSocket connection in the Initialized
// state. onText/onBinary are merged into a single wsconn.MessageHandler
// dispatched by Kind, matching spec.md's split onText/onBinary callback
// pair at the public boundary while internal/wsconn models one handler.
func WebSocketCreate(onText func(text string), onBinary func(data []byte), onClose func(status int, err error)) (WsHandle, error) {
	g, err := current()
	if err != nil {
		return 0, err
	}
	conn := wsconn.New(g.transport)
	conn.Tracer = g.tracer
	conn.Metrics = g.recorder
	conn.OnMessage = func(m wsconn.Message) {
		switch m.Kind {
		case wsconn.TextMessage:
			if onText != nil {
				onText(string(m.Data))
			}
		case wsconn.BinaryMessage:
			if onBinary != nil {
				onBinary(m.Data)
			}
		}
	}
	conn.OnClose = onClose
	return g.sockets.Create(conn), nil
}

// WebSocketDuplicateHandle increments h's refcount.
func WebSocketDuplicateHandle(h WsHandle) (WsHandle, error) {
	g, err := current()
	if err != nil {
		return 0, err
	}
	if !g.sockets.Duplicate(h) {
		return 0, errcat.New(errcat.InvalidArg, "invalid websocket handle", errcat.WithOp("WebSocketDuplicateHandle"))
	}
	return h, nil
}

// WebSocketCloseHandle decrements h's refcount, freeing the connection at
// zero.
func WebSocketCloseHandle(h WsHandle) error {
	g, err := current()
	if err != nil {
		return err
	}
	g.sockets.Close(h)
	return nil
}

func lookupSocket(g *global, h WsHandle) (*wsconn.Connection, error) {
	c, ok := g.sockets.Get(h)
	if !ok {
		return nil, errcat.New(errcat.InvalidArg, "invalid websocket handle", errcat.WithOp("WebSocket"))
	}
	return c, nil
}

// WebSocketSetHeader sets a header sent with the upgrade handshake.
func WebSocketSetHeader(h WsHandle, name, value string) error {
	g, err := current()
	if err != nil {
		return err
	}
	c, err := lookupSocket(g, h)
	if err != nil {
		return err
	}
	c.Headers.Set(name, value)
	return nil
}

// WebSocketSetProxyUri configures the proxy for the upgrade handshake by
// delegating to the transport's process-wide SetGlobalProxy, the same
// indirection spec.md's original_source exposes as WebSocketSetProxyUri.
// h is only validated; the proxy applies to every connection and call
// made through the transport, not to h alone.
func WebSocketSetProxyUri(h WsHandle, uri string) error {
	g, err := current()
	if err != nil {
		return err
	}
	if _, err := lookupSocket(g, h); err != nil {
		return err
	}
	if g.transport == nil {
		return nil
	}
	return g.transport.SetGlobalProxy(uri)
}

// WebSocketSetMaxReceiveBufferSize sets how many bytes of one message are
// accumulated before they are forwarded through the fragment handler, per
// spec.md §4.4.
func WebSocketSetMaxReceiveBufferSize(h WsHandle, maxBytes int) error {
	g, err := current()
	if err != nil {
		return err
	}
	c, err := lookupSocket(g, h)
	if err != nil {
		return err
	}
	if maxBytes > 0 {
		c.MaxMessageSize = maxBytes
	}
	return nil
}

// WebSocketSetBinaryMessageFragmentEventFunction installs a hook receiving
// the chunks of every message (text or binary) that is split across frames
// or outgrows the receive buffer, per spec.md §6.1. Such a message is not
// reassembled and is not passed to onText/onBinary.
func WebSocketSetBinaryMessageFragmentEventFunction(h WsHandle, fn func(data []byte, isFinal bool)) error {
	g, err := current()
	if err != nil {
		return err
	}
	c, err := lookupSocket(g, h)
	if err != nil {
		return err
	}
	if fn == nil {
		c.OnBinaryFragment = nil
		return nil
	}
	c.OnBinaryFragment = wsconn.BinaryFragmentHandler(fn)
	return nil
}

// WebSocketConnectAsync performs the HTTP upgrade handshake asynchronously.
// Its result is retrieved from the returned op via GetWebSocketConnectResult
// once completion has run, per spec.md §6.1.
func WebSocketConnectAsync(ctx context.Context, uri, subProtocol string, h WsHandle, completion *asyncop.Queue, callback func(asyncop.Status, any)) (*asyncop.AsyncOp, error) {
	g, err := current()
	if err != nil {
		return nil, err
	}
	c, err := lookupSocket(g, h)
	if err != nil {
		return nil, err
	}
	c.URL = uri
	c.SubProtocol = subProtocol

	op := asyncop.New(completion, callback)
	g.engine.Work.Submit(func(workCtx context.Context) {
		connErr := c.Connect(ctx)
		errCode, platformCode := errorCodes(connErr)
		result := WebSocketConnectResult{Ws: h, ErrorCode: errCode, PlatformErrorCode: platformCode}
		if connErr != nil {
			op.Complete(asyncop.StatusFailed, result)
			return
		}
		op.Complete(asyncop.StatusOK, result)
	})
	return op, nil
}

// WebSocketSendMessageAsync sends a UTF-8 text message. Its result is
// retrieved from the returned op via GetWebSocketSendMessageResult.
func WebSocketSendMessageAsync(ctx context.Context, h WsHandle, utf8Text string, completion *asyncop.Queue, callback func(asyncop.Status, any)) (*asyncop.AsyncOp, error) {
	return webSocketSendAsync(ctx, h, transport.WSSendUTF8, []byte(utf8Text), completion, callback)
}

// WebSocketSendBinaryMessageAsync sends a binary message. Its result is
// retrieved from the returned op via GetWebSocketSendMessageResult.
func WebSocketSendBinaryMessageAsync(ctx context.Context, h WsHandle, data []byte, completion *asyncop.Queue, callback func(asyncop.Status, any)) (*asyncop.AsyncOp, error) {
	return webSocketSendAsync(ctx, h, transport.WSSendBinary, data, completion, callback)
}

func webSocketSendAsync(ctx context.Context, h WsHandle, kind transport.WSSendKind, payload []byte, completion *asyncop.Queue, callback func(asyncop.Status, any)) (*asyncop.AsyncOp, error) {
	g, err := current()
	if err != nil {
		return nil, err
	}
	c, err := lookupSocket(g, h)
	if err != nil {
		return nil, err
	}

	op := asyncop.New(completion, callback)
	g.engine.Work.Submit(func(workCtx context.Context) {
		sendErr := c.Send(ctx, kind, payload)
		errCode, platformCode := errorCodes(sendErr)
		result := WebSocketSendResult{Ws: h, ErrorCode: errCode, PlatformErrorCode: platformCode}
		if sendErr != nil {
			op.Complete(asyncop.StatusFailed, result)
			return
		}
		op.Complete(asyncop.StatusOK, result)
	})
	return op, nil
}

// WebSocketDisconnect closes the connection locally with closeStatus.
func WebSocketDisconnect(h WsHandle, closeStatus int) error {
	g, err := current()
	if err != nil {
		return err
	}
	c, err := lookupSocket(g, h)
	if err != nil {
		return err
	}
	return c.Disconnect(closeStatus)
}
