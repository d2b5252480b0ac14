package wsproto

import (
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// webSocketGUID is the fixed magic string RFC 6455 §1.3 mixes into the
// client's Sec-WebSocket-Key before hashing.
const webSocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// Handshake errors. Each maps one-to-one to an HTTP status line (see
// ErrorResponse) and is surfaced from the endpoint's Accept call.
var (
	ErrBadRequest      = errors.New("wsproto: bad request")
	ErrNotFound        = errors.New("wsproto: not found")
	ErrMethodNotAllowed = errors.New("wsproto: method not allowed")
	ErrUpgradeRequired = errors.New("wsproto: upgrade required")
	ErrRequestTimeout  = errors.New("wsproto: request timeout")
)

// MaxHandshakeBytes caps how much of the request the endpoint's Accept
// will accumulate before giving up — the same 0x1000 budget the original
// source used.
const MaxHandshakeBytes = 0x1000

// ComputeAcceptKey derives the Sec-WebSocket-Accept value from a client's
// Sec-WebSocket-Key per RFC 6455 §1.3: base64(sha1(key + magic GUID)).
func ComputeAcceptKey(key string) string {
	sum := sha1.Sum([]byte(key + webSocketGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// ParseRequest splits a captured request buffer (which must already end
// in CRLFCRLF) into its request line and headers. It does not perform any
// WebSocket-specific validation — see Negotiate for that.
func ParseRequest(data []byte) (method, uri, version string, headers map[string]string, err error) {
	text := string(data)
	if len(text) < 4 || text[len(text)-4:] != "\r\n\r\n" {
		return "", "", "", nil, fmt.Errorf("%w: request not terminated by CRLFCRLF", ErrBadRequest)
	}
	lines := strings.Split(text[:len(text)-4], "\r\n")
	if len(lines) == 0 {
		return "", "", "", nil, fmt.Errorf("%w: empty request", ErrBadRequest)
	}

	method, uri, version, err = parseRequestLine(lines[0])
	if err != nil {
		return "", "", "", nil, err
	}

	headers = make(map[string]string, len(lines)-1)
	for _, line := range lines[1:] {
		name, value, err := parseHeaderLine(line)
		if err != nil {
			return "", "", "", nil, err
		}
		headers[name] = value
	}
	return method, uri, version, headers, nil
}

func parseRequestLine(line string) (method, uri, version string, err error) {
	parts := strings.Split(line, " ")
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("%w: malformed request line %q", ErrBadRequest, line)
	}
	method, uri, httpVersion := parts[0], parts[1], parts[2]
	const prefix = "HTTP/"
	if !strings.HasPrefix(httpVersion, prefix) {
		return "", "", "", fmt.Errorf("%w: malformed HTTP version %q", ErrBadRequest, httpVersion)
	}
	version = strings.TrimPrefix(httpVersion, prefix)
	major, minor, ok := strings.Cut(version, ".")
	if !ok {
		return "", "", "", fmt.Errorf("%w: malformed HTTP version %q", ErrBadRequest, httpVersion)
	}
	if _, e := strconv.Atoi(major); e != nil {
		return "", "", "", fmt.Errorf("%w: malformed HTTP version %q", ErrBadRequest, httpVersion)
	}
	if _, e := strconv.Atoi(minor); e != nil {
		return "", "", "", fmt.Errorf("%w: malformed HTTP version %q", ErrBadRequest, httpVersion)
	}
	if method == "" || uri == "" {
		return "", "", "", fmt.Errorf("%w: malformed request line %q", ErrBadRequest, line)
	}
	return method, uri, version, nil
}

func parseHeaderLine(line string) (name, value string, err error) {
	name, value, ok := strings.Cut(line, ": ")
	if !ok {
		return "", "", fmt.Errorf("%w: malformed header %q", ErrBadRequest, line)
	}
	if !isValidHeaderName(name) {
		return "", "", fmt.Errorf("%w: malformed header name %q", ErrBadRequest, name)
	}
	return name, value, nil
}

func isValidHeaderName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !(r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-') {
			return false
		}
	}
	return true
}

// headerLookup finds name in headers case-insensitively, the way HTTP
// requires, since callers pass header names exactly as received.
func headerLookup(headers map[string]string, name string) (string, bool) {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// Negotiate validates a parsed handshake request against RFC 6455's
// minimum server-role requirements and, on success, returns the
// Sec-WebSocket-Accept value. validate is an optional, caller-supplied
// predicate applied after the mandatory header checks; returning false
// maps to ErrBadRequest.
func Negotiate(method, uri, version string, headers map[string]string, validate func(uri string, headers map[string]string) bool) (acceptKey string, err error) {
	if method != "GET" {
		return "", fmt.Errorf("%w: expected GET, got %q", ErrMethodNotAllowed, method)
	}
	if version != "1.1" {
		return "", fmt.Errorf("%w: expected HTTP/1.1, got HTTP/%s", ErrUpgradeRequired, version)
	}
	connection, _ := headerLookup(headers, "Connection")
	if !strings.EqualFold(strings.TrimSpace(connection), "Upgrade") {
		return "", fmt.Errorf("%w: expected Connection: Upgrade, got %q", ErrUpgradeRequired, connection)
	}
	upgrade, _ := headerLookup(headers, "Upgrade")
	if !strings.EqualFold(strings.TrimSpace(upgrade), "websocket") {
		return "", fmt.Errorf("%w: expected Upgrade: websocket, got %q", ErrBadRequest, upgrade)
	}
	key, ok := headerLookup(headers, "Sec-WebSocket-Key")
	if !ok || key == "" {
		return "", fmt.Errorf("%w: missing Sec-WebSocket-Key", ErrBadRequest)
	}
	if validate != nil && !validate(uri, headers) {
		return "", fmt.Errorf("%w: URI validation rejected %q", ErrBadRequest, uri)
	}
	return ComputeAcceptKey(key), nil
}

// BuildAcceptResponse renders the literal 101 response RFC 6455
// mandates on a successful handshake.
func BuildAcceptResponse(acceptKey string) []byte {
	return []byte(
		"HTTP/1.1 101 WebSocket Upgrade\r\n" +
			"Connection: Upgrade\r\n" +
			"Upgrade: websocket\r\n" +
			"Sec-WebSocket-Accept: " + acceptKey + "\r\n" +
			"\r\n",
	)
}

// ErrorResponse renders the status line (and, for 426, the
// Connection/Upgrade headers) matching a handshake error.
func ErrorResponse(err error) []byte {
	switch {
	case errors.Is(err, ErrBadRequest):
		return []byte("HTTP/1.1 400 Bad Request\r\n\r\n")
	case errors.Is(err, ErrNotFound):
		return []byte("HTTP/1.1 404 Not Found\r\n\r\n")
	case errors.Is(err, ErrMethodNotAllowed):
		return []byte("HTTP/1.1 405 Method Not Allowed\r\n\r\n")
	case errors.Is(err, ErrRequestTimeout):
		return []byte("HTTP/1.1 408 Request Timeout\r\n\r\n")
	case errors.Is(err, ErrUpgradeRequired):
		return []byte("HTTP/1.1 426 Upgrade Required\r\nConnection: Upgrade\r\nUpgrade: websocket\r\n\r\n")
	default:
		return []byte("HTTP/1.1 400 Bad Request\r\n\r\n")
	}
}
