// Copyright (c) 2026 Develeap
// SPDX-License-Identifier: MPL-2.0

package wsconn

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/develeap/rtnet/internal/errcat"
	"github.com/develeap/rtnet/internal/transport"
)

// fakeConn is an in-memory transport.WSConn with a scripted read sequence.
type fakeConn struct {
	mu      sync.Mutex
	frames  []transport.WSFrame
	sent    [][]byte
	closed  bool
	closeAt int // index after which Read returns the close error
}

func (f *fakeConn) Send(ctx context.Context, kind transport.WSSendKind, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeConn) Read(ctx context.Context) (transport.WSFrame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.frames) == 0 {
		return transport.WSFrame{CloseStatus: 1000}, errClosed
	}
	fr := f.frames[0]
	f.frames = f.frames[1:]
	return fr, nil
}

func (f *fakeConn) Close(status int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

var errClosed = assertErr{"connection closed"}

type assertErr struct{ s string }

func (e assertErr) Error() string { return e.s }

type fakeTransport struct {
	conn   *fakeConn
	result transport.Result
	err    error
}

func (f *fakeTransport) Perform(ctx context.Context, req transport.Request) (transport.Result, error) {
	return transport.Result{}, nil
}

func (f *fakeTransport) WebSocketConnect(ctx context.Context, req transport.Request, subProtocol string) (transport.WSConn, transport.Result, error) {
	if f.err != nil {
		return nil, f.result, f.err
	}
	return f.conn, f.result, nil
}

func (f *fakeTransport) SetGlobalProxy(uri string) error { return nil }

func TestConnectTransitionsToConnected(t *testing.T) {
	tr := &fakeTransport{conn: &fakeConn{}}
	c := New(tr)
	c.URL = "wss://example.test/socket"

	require.NoError(t, c.Connect(context.Background()))
	assert.Eventually(t, func() bool { return c.State() == Connected }, time.Second, time.Millisecond)
}

func TestConnectTwiceFails(t *testing.T) {
	tr := &fakeTransport{conn: &fakeConn{}}
	c := New(tr)
	require.NoError(t, c.Connect(context.Background()))
	assert.ErrorIs(t, c.Connect(context.Background()), errcat.KindSentinel(errcat.ConnectAlreadyCalled))
}

// TestReceiveLoopForwardsFragmentedMessages matches spec.md §4.4: any
// fragment-kind frame, text or binary, routes through the fragment handler
// rather than being reassembled into a whole OnMessage delivery.
func TestReceiveLoopForwardsFragmentedMessages(t *testing.T) {
	fc := &fakeConn{frames: []transport.WSFrame{
		{Kind: transport.WSTextFragment, Data: []byte("hel")},
		{Kind: transport.WSTextFragment, Data: []byte("lo"), EndOfMessage: true},
	}}
	tr := &fakeTransport{conn: fc}
	c := New(tr)

	type chunk struct {
		data    string
		isFinal bool
	}
	chunks := make(chan chunk, 4)
	c.OnBinaryFragment = func(data []byte, isFinal bool) { chunks <- chunk{string(data), isFinal} }
	c.OnMessage = func(m Message) { t.Fatal("OnMessage must not be invoked for a fragmented message") }

	require.NoError(t, c.Connect(context.Background()))

	select {
	case c1 := <-chunks:
		assert.Equal(t, "hel", c1.data)
		assert.False(t, c1.isFinal)
	case <-time.After(time.Second):
		t.Fatal("first fragment never forwarded")
	}
	select {
	case c2 := <-chunks:
		assert.Equal(t, "lo", c2.data)
		assert.True(t, c2.isFinal)
	case <-time.After(time.Second):
		t.Fatal("final fragment never forwarded")
	}
}

// TestReceiveLoopForwardsOversizedWholeMessage matches scenario S6: a whole
// message exceeding MaxMessageSize is split into fragment-handler callbacks
// instead of being truncated and delivered through OnMessage.
func TestReceiveLoopForwardsOversizedWholeMessage(t *testing.T) {
	fc := &fakeConn{frames: []transport.WSFrame{
		{Kind: transport.WSBinaryMessage, Data: []byte("abcdef")},
	}}
	tr := &fakeTransport{conn: fc}
	c := New(tr)
	c.MaxMessageSize = 4

	type chunk struct {
		data    string
		isFinal bool
	}
	chunks := make(chan chunk, 4)
	c.OnBinaryFragment = func(data []byte, isFinal bool) { chunks <- chunk{string(data), isFinal} }
	c.OnMessage = func(m Message) { t.Fatal("OnMessage must not be invoked once buffer-full forwarding starts") }

	require.NoError(t, c.Connect(context.Background()))

	select {
	case c1 := <-chunks:
		assert.Equal(t, "abcd", c1.data)
		assert.False(t, c1.isFinal)
	case <-time.After(time.Second):
		t.Fatal("first fragment never forwarded")
	}
	select {
	case c2 := <-chunks:
		assert.Equal(t, "ef", c2.data)
		assert.True(t, c2.isFinal)
	case <-time.After(time.Second):
		t.Fatal("final fragment never forwarded")
	}
}

func TestReceiveLoopDeliversWholeMessagesDirectly(t *testing.T) {
	fc := &fakeConn{frames: []transport.WSFrame{
		{Kind: transport.WSBinaryMessage, Data: []byte{1, 2, 3}},
	}}
	tr := &fakeTransport{conn: fc}
	c := New(tr)

	received := make(chan Message, 1)
	c.OnMessage = func(m Message) { received <- m }
	require.NoError(t, c.Connect(context.Background()))

	select {
	case msg := <-received:
		assert.Equal(t, BinaryMessage, msg.Kind)
		assert.Equal(t, []byte{1, 2, 3}, msg.Data)
	case <-time.After(time.Second):
		t.Fatal("message never delivered")
	}
}

// TestReceiveLoopNullTerminatesWholeTextMessages matches spec.md §4.4:
// "Non-binary text messages are null-terminated before handoff."
func TestReceiveLoopNullTerminatesWholeTextMessages(t *testing.T) {
	fc := &fakeConn{frames: []transport.WSFrame{
		{Kind: transport.WSTextMessage, Data: []byte("hi")},
	}}
	tr := &fakeTransport{conn: fc}
	c := New(tr)

	received := make(chan Message, 1)
	c.OnMessage = func(m Message) { received <- m }
	require.NoError(t, c.Connect(context.Background()))

	select {
	case msg := <-received:
		assert.Equal(t, TextMessage, msg.Kind)
		assert.Equal(t, []byte{'h', 'i', 0}, msg.Data)
	case <-time.After(time.Second):
		t.Fatal("message never delivered")
	}
}

func TestCloseFrameTriggersOnClose(t *testing.T) {
	fc := &fakeConn{frames: []transport.WSFrame{
		{Kind: transport.WSCloseFrame, CloseStatus: 1001},
	}}
	tr := &fakeTransport{conn: fc}
	c := New(tr)

	closed := make(chan int, 1)
	c.OnClose = func(status int, err error) { closed <- status }
	require.NoError(t, c.Connect(context.Background()))

	select {
	case status := <-closed:
		assert.Equal(t, 1001, status)
		assert.Equal(t, Closed, c.State())
	case <-time.After(time.Second):
		t.Fatal("close handler never fired")
	}
}

func TestSendFailsWhenNotConnected(t *testing.T) {
	c := New(&fakeTransport{conn: &fakeConn{}})
	err := c.Send(context.Background(), transport.WSSendUTF8, []byte("hi"))
	assert.Error(t, err)
}

func TestSendDeliversPayloadOnceConnected(t *testing.T) {
	fc := &fakeConn{}
	c := New(&fakeTransport{conn: fc})
	require.NoError(t, c.Connect(context.Background()))
	assert.Eventually(t, func() bool { return c.State() == Connected }, time.Second, time.Millisecond)

	require.NoError(t, c.Send(context.Background(), transport.WSSendUTF8, []byte("hi")))
	fc.mu.Lock()
	defer fc.mu.Unlock()
	require.Len(t, fc.sent, 1)
	assert.Equal(t, "hi", string(fc.sent[0]))
}

func TestGrowBufDoublesUpToMaxSize(t *testing.T) {
	assert.Equal(t, 4096, growBuf(0, 1<<20))
	assert.Equal(t, 8192, growBuf(4096, 1<<20))
	assert.Equal(t, 100, growBuf(64, 100))
}

func TestDisconnectClosesUnderlyingConn(t *testing.T) {
	fc := &fakeConn{}
	c := New(&fakeTransport{conn: fc})
	require.NoError(t, c.Connect(context.Background()))
	assert.Eventually(t, func() bool { return c.State() == Connected }, time.Second, time.Millisecond)

	require.NoError(t, c.Disconnect(1000))
	assert.Equal(t, Closed, c.State())
	fc.mu.Lock()
	defer fc.mu.Unlock()
	assert.True(t, fc.closed)
}
