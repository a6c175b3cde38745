// Copyright (c) 2026 Develeap
// SPDX-License-Identifier: MPL-2.0

package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// defaultTLSConfig restricts negotiation to TLS 1.2+ with AEAD cipher
// suites, grounded on the teacher's internal/client/transport.go
// defaultTLSConfig.
func defaultTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
		},
	}
}

// HTTPTransport is the module's own reference Transport, standing in for
// the platform transports spec.md scopes out (WinHttp, NSURLSession, cURL,
// ...). It backs this module's integration tests and is a reasonable
// default for hosts with no native transport of their own.
type HTTPTransport struct {
	client *http.Client
	dialer *websocket.Dialer

	mu       sync.RWMutex
	proxyURI string
}

// NewHTTPTransport builds a transport using the given *http.Client's
// settings as a base (nil uses http.DefaultClient's transport shape).
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	if client.Transport == nil {
		base := &http.Transport{TLSClientConfig: defaultTLSConfig()}
		client.Transport = base
	}
	return &HTTPTransport{
		client: client,
		dialer: &websocket.Dialer{},
	}
}

func (t *HTTPTransport) Perform(ctx context.Context, req Request) (Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return Result{}, fmt.Errorf("transport: build request: %w", err)
	}
	req.Headers.Range(func(name, value string) bool {
		httpReq.Header.Set(name, value)
		return true
	})

	client := t.client
	if req.Timeout > 0 {
		clientCopy := *t.client
		clientCopy.Timeout = req.Timeout
		client = &clientCopy
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return Result{
			NetworkErrorCode:    classifyNetworkError(err),
			PlatformErrorString: err.Error(),
		}, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{
			NetworkErrorCode:    classifyNetworkError(err),
			PlatformErrorString: err.Error(),
		}, nil
	}

	var fields []HeaderField
	for name, values := range resp.Header {
		for _, v := range values {
			fields = append(fields, HeaderField{Name: name, Value: v})
		}
	}

	return Result{
		StatusCode: resp.StatusCode,
		Headers:    fields,
		Body:       body,
	}, nil
}

// classifyNetworkError maps a transport-level Go error onto spec.md's
// HRESULT-shaped network error code space. The exact mapping is a reference
// convention, not a contract the spec fixes: -3 is "no network" (the same
// value as callengine.NetworkErrorNoNetwork, which the retry policy never
// retries), -2 is "generic network error".
func classifyNetworkError(err error) int32 {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "no such host") || strings.Contains(msg, "network is unreachable") {
		return -3
	}
	return -2
}

func (t *HTTPTransport) WebSocketConnect(ctx context.Context, req Request, subProtocol string) (WSConn, Result, error) {
	header := http.Header{}
	req.Headers.Range(func(name, value string) bool {
		header.Set(name, value)
		return true
	})
	if subProtocol != "" {
		header.Set("Sec-WebSocket-Protocol", subProtocol)
	}

	dialer := t.dialer
	t.mu.RLock()
	proxy := t.proxyURI
	t.mu.RUnlock()
	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err == nil {
			clone := *dialer
			clone.Proxy = http.ProxyURL(proxyURL)
			dialer = &clone
		}
	}

	conn, resp, err := dialer.DialContext(ctx, req.URL, header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, Result{
			StatusCode:          status,
			NetworkErrorCode:    classifyNetworkError(err),
			PlatformErrorString: err.Error(),
		}, nil
	}

	return &gorillaWSConn{conn: conn}, Result{StatusCode: resp.StatusCode}, nil
}

func (t *HTTPTransport) SetGlobalProxy(uri string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.proxyURI = uri
	return nil
}

// gorillaWSConn adapts *websocket.Conn to the WSConn contract.
type gorillaWSConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *gorillaWSConn) Send(ctx context.Context, kind WSSendKind, payload []byte) error {
	mt := websocket.TextMessage
	if kind == WSSendBinary {
		mt = websocket.BinaryMessage
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(mt, payload)
}

func (c *gorillaWSConn) Read(ctx context.Context) (WSFrame, error) {
	mt, data, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err) {
			return WSFrame{Kind: WSCloseFrame}, nil
		}
		return WSFrame{}, err
	}
	kind := WSTextMessage
	if mt == websocket.BinaryMessage {
		kind = WSBinaryMessage
	}
	return WSFrame{Kind: kind, Data: data, EndOfMessage: true}, nil
}

func (c *gorillaWSConn) Close(status int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := websocket.FormatCloseMessage(status, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(10*time.Second))
	return c.conn.Close()
}
