package ws

import (
	"testing"
	"time"

	"github.com/momentics/ws-endpoint/transport"
	"github.com/momentics/ws-endpoint/wsproto"
)

const sampleHandshake = "GET /chat HTTP/1.1\r\n" +
	"Connection: Upgrade\r\n" +
	"Upgrade: websocket\r\n" +
	"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
	"\r\n"

func maskClientFrame(fin bool, opcode byte, payload []byte, key [4]byte) []byte {
	var first byte
	if fin {
		first = 0x80
	}
	first |= opcode

	header := []byte{first}
	length := len(payload)
	switch {
	case length < 126:
		header = append(header, byte(length)|0x80)
	case length <= 0xFFFF:
		header = append(header, 126|0x80, byte(length>>8), byte(length))
	default:
		header = append(header, 127|0x80)
		for i := 7; i >= 0; i-- {
			header = append(header, byte(length>>(8*i)))
		}
	}
	header = append(header, key[:]...)
	masked := make([]byte, length)
	for i := range payload {
		masked[i] = payload[i] ^ key[i%4]
	}
	return append(header, masked...)
}

func newAcceptedEndpoint(t *testing.T, opts ...Option) (*Endpoint, *transport.Fake) {
	t.Helper()
	fake := transport.NewFake()
	fake.Feed([]byte(sampleHandshake))
	opts = append([]Option{WithPollInterval(5 * time.Millisecond)}, opts...)
	e := New(fake, opts...)
	if err := e.Accept(); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	return e, fake
}

func waitUntil(t *testing.T, deadline time.Duration, cond func() bool) {
	t.Helper()
	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", deadline)
}

func TestAcceptWritesExpectedResponse(t *testing.T) {
	_, fake := newAcceptedEndpoint(t)
	want := "HTTP/1.1 101 WebSocket Upgrade\r\n" +
		"Connection: Upgrade\r\n" +
		"Upgrade: websocket\r\n" +
		"Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=\r\n" +
		"\r\n"
	if fake.Sent.String() != want {
		t.Fatalf("got %q, want %q", fake.Sent.String(), want)
	}
}

func TestEchoTextMessage(t *testing.T) {
	e, fake := newAcceptedEndpoint(t)
	key := [4]byte{1, 2, 3, 4}
	fake.Feed(maskClientFrame(true, wsproto.OpText, []byte("hello"), key))

	timeout := 2 * time.Second
	msg, err := e.Recv(&timeout)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Type != Text || string(msg.Payload) != "hello" {
		t.Fatalf("got %+v", msg)
	}
}

func TestFragmentedTextReassembly(t *testing.T) {
	e, fake := newAcceptedEndpoint(t)
	key := [4]byte{9, 8, 7, 6}
	fake.Feed(maskClientFrame(false, wsproto.OpText, []byte("he"), key))
	fake.Feed(maskClientFrame(false, wsproto.OpContinuation, []byte("ll"), key))
	fake.Feed(maskClientFrame(true, wsproto.OpContinuation, []byte("o"), key))

	timeout := 2 * time.Second
	msg, err := e.Recv(&timeout)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Type != Text || string(msg.Payload) != "hello" {
		t.Fatalf("got %+v", msg)
	}
}

func TestZeroByteMessageIsValid(t *testing.T) {
	e, fake := newAcceptedEndpoint(t)
	key := [4]byte{1, 1, 1, 1}
	fake.Feed(maskClientFrame(true, wsproto.OpBinary, nil, key))

	timeout := 2 * time.Second
	msg, err := e.Recv(&timeout)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Type != Binary || len(msg.Payload) != 0 {
		t.Fatalf("got %+v", msg)
	}
}

func TestSendWritesFrameAndResolves(t *testing.T) {
	e, fake := newAcceptedEndpoint(t)
	timeout := 2 * time.Second
	if err := e.Send(Text, []byte("world"), &timeout); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	waitUntil(t, time.Second, func() bool {
		return fake.Sent.Len() >= len("HTTP/1.1 101 WebSocket Upgrade\r\nConnection: Upgrade\r\nUpgrade: websocket\r\nSec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=\r\n\r\n")+7
	})

	sent := fake.Sent.Bytes()
	frame := sent[len(sent)-7:]
	if frame[0] != 0x80|wsproto.OpText {
		t.Fatalf("unexpected frame header byte 0x%x", frame[0])
	}
	if string(frame[2:]) != "world" {
		t.Fatalf("unexpected frame payload %q", frame[2:])
	}
}

func TestPingPongRoundTrip(t *testing.T) {
	e, fake := newAcceptedEndpoint(t)

	result := make(chan error, 1)
	go func() {
		timeout := 2 * time.Second
		result <- e.Ping(&timeout)
	}()

	handshakeLen := len("HTTP/1.1 101 WebSocket Upgrade\r\nConnection: Upgrade\r\nUpgrade: websocket\r\nSec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=\r\n\r\n")
	waitUntil(t, time.Second, func() bool {
		return fake.Sent.Len() >= handshakeLen+6
	})
	pingFrame := fake.Sent.Bytes()[handshakeLen:]
	if pingFrame[0] != 0x80|wsproto.OpPing {
		t.Fatalf("expected ping frame, got header 0x%x", pingFrame[0])
	}
	nonce := append([]byte{}, pingFrame[2:6]...)

	key := [4]byte{5, 5, 5, 5}
	fake.Feed(maskClientFrame(true, wsproto.OpPong, nonce, key))

	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ping did not resolve in time")
	}
}

func TestSendTimeoutCancelsPromiseAndDrainSkipsIt(t *testing.T) {
	fake := transport.NewFake()
	e := New(fake, WithPollInterval(5*time.Millisecond))

	// No worker is running (Accept was never called), so Send's own
	// timeout path is exercised deterministically: it must leave the
	// queued item's promise cancelled, and a subsequent drainOutput must
	// skip writing it instead of transmitting it late.
	timeout := 10 * time.Millisecond
	if err := e.Send(Text, []byte("late"), &timeout); err != ErrSendTimeout {
		t.Fatalf("expected ErrSendTimeout, got %v", err)
	}

	e.mu.Lock()
	queued := e.output.Length()
	e.mu.Unlock()
	if queued != 1 {
		t.Fatalf("expected the timed-out item still queued, got length %d", queued)
	}

	e.drainOutput()

	if fake.Sent.Len() != 0 {
		t.Fatalf("expected no frame written for a cancelled send, got %d bytes", fake.Sent.Len())
	}
	e.mu.Lock()
	queued = e.output.Length()
	e.mu.Unlock()
	if queued != 0 {
		t.Fatalf("expected drainOutput to remove the cancelled item, got length %d", queued)
	}
}

func TestCloseHalfClosesWriteSideBeforeClosing(t *testing.T) {
	e, fake := newAcceptedEndpoint(t)
	grace := 50 * time.Millisecond
	if err := e.Close(wsproto.CloseNormal, "bye", &grace); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.CloseWriteCalled != 1 {
		t.Fatalf("expected CloseWrite to be called once, got %d", fake.CloseWriteCalled)
	}
}

func TestFailedHandshakeHalfClosesWriteSide(t *testing.T) {
	fake := transport.NewFake()
	fake.Feed([]byte("not a valid request\r\n\r\n"))
	e := New(fake, WithPollInterval(5*time.Millisecond))
	if err := e.Accept(); err == nil {
		t.Fatal("expected Accept to fail")
	}
	if fake.CloseWriteCalled != 1 {
		t.Fatalf("expected CloseWrite to be called once, got %d", fake.CloseWriteCalled)
	}
}

func TestCloseLocalSendsCloseFrameAndRejectsFurtherSends(t *testing.T) {
	e, fake := newAcceptedEndpoint(t)
	grace := 50 * time.Millisecond
	if err := e.Close(wsproto.CloseNormal, "bye", &grace); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !e.Closed() {
		t.Fatal("expected endpoint to be closed")
	}
	code, ok := e.Code()
	if !ok || code != wsproto.CloseNormal {
		t.Fatalf("got code=%d ok=%v", code, ok)
	}

	handshakeLen := len("HTTP/1.1 101 WebSocket Upgrade\r\nConnection: Upgrade\r\nUpgrade: websocket\r\nSec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=\r\n\r\n")
	closeFrame := fake.Sent.Bytes()[handshakeLen:]
	if closeFrame[0] != 0x80|wsproto.OpClose {
		t.Fatalf("expected close frame header, got 0x%x", closeFrame[0])
	}
	if closeFrame[2] != 0x03 || closeFrame[3] != 0xE8 {
		t.Fatalf("expected close code bytes 03 e8, got %x %x", closeFrame[2], closeFrame[3])
	}

	timeout := 100 * time.Millisecond
	if err := e.Send(Text, []byte("x"), &timeout); err != ErrAlreadyClosed {
		t.Fatalf("expected ErrAlreadyClosed, got %v", err)
	}
}

func TestCloseRemoteSetsCodeAndReason(t *testing.T) {
	e, fake := newAcceptedEndpoint(t)
	key := [4]byte{2, 2, 2, 2}
	payload := append([]byte{0x03, 0xE9}, []byte("gone")...)
	fake.Feed(maskClientFrame(true, wsproto.OpClose, payload, key))

	waitUntil(t, time.Second, e.Closed)
	code, _ := e.Code()
	reason, _ := e.Reason()
	if code != 1001 {
		t.Fatalf("got code %d", code)
	}
	if reason != "gone" {
		t.Fatalf("got reason %q", reason)
	}
}

func TestProtocolErrorClosesWithCode1002(t *testing.T) {
	e, fake := newAcceptedEndpoint(t)
	key := [4]byte{3, 3, 3, 3}
	fake.Feed(maskClientFrame(true, 0x5, []byte("x"), key))

	waitUntil(t, time.Second, e.Closed)
	code, _ := e.Code()
	if code != wsproto.CloseProtocolError {
		t.Fatalf("got code %d", code)
	}
}
