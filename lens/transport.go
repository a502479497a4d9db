package lens

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// EventEndpointPath is appended to the configured endpoint for event delivery.
const EventEndpointPath = "/lens.0/event"

var errTransportClosed = errors.New("transport closed")

// Transport delivers encoded envelopes to a debug server or sink.
type Transport interface {
	Deliver(ctx context.Context, enc EncodedEnvelope) error
	Close() error
}

// HTTPTransport posts each envelope to the debug server.
type HTTPTransport struct {
	url    string
	client *http.Client
}

// NewHTTPTransport returns a transport posting to endpoint + EventEndpointPath. Redirects are not followed.
func NewHTTPTransport(endpoint string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		url: strings.TrimSuffix(endpoint, "/") + EventEndpointPath,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (t *HTTPTransport) Deliver(ctx context.Context, enc EncodedEnvelope) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(enc.Body))
	if err != nil {
		return fmt.Errorf("build request failed: %w", err)
	}
	req.Header.Set("Content-Type", enc.ContentType)
	if enc.ContentEncoding != "" {
		req.Header.Set("Content-Encoding", enc.ContentEncoding)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s failed: %w", t.url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body) // drain to allow connection reuse

	if resp.StatusCode >= 300 {
		return fmt.Errorf("POST %s returned status %d", t.url, resp.StatusCode)
	}
	return nil
}

func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

// AsyncTransport delivers envelopes on background goroutines, bounded by a LimitingWaitGroup.
// Deliver only blocks while the concurrency limit is reached.
type AsyncTransport struct {
	next      Transport
	wg        LimitingWaitGroup
	onFailure func(EncodedEnvelope, error)
	mu        sync.RWMutex
	closed    bool
}

// NewAsyncTransport wraps next. onFailure is invoked for every failed delivery; when nil failures are logged.
func NewAsyncTransport(next Transport, concurrency int, onFailure func(EncodedEnvelope, error)) *AsyncTransport {
	return &AsyncTransport{
		next:      next,
		wg:        NewLimitingWaitGroup(concurrency),
		onFailure: onFailure,
	}
}

func (t *AsyncTransport) Deliver(ctx context.Context, enc EncodedEnvelope) error {
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return errTransportClosed
	}
	t.wg.Take()
	t.mu.RUnlock()

	ctx = context.WithoutCancel(ctx) // the caller does not wait for delivery
	go func() {
		defer t.wg.Release()

		if err := t.next.Deliver(ctx, enc); err != nil {
			if t.onFailure != nil {
				t.onFailure(enc, err)
			} else {
				log.Printf("%sAsync delivery failed: %v", ErrorLogPrefix, err)
			}
		}
	}()
	return nil
}

// Flush waits for in-flight deliveries to complete.
func (t *AsyncTransport) Flush() {
	t.wg.Join()
}

// Close waits for in-flight deliveries then closes the wrapped transport.
func (t *AsyncTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.wg.Join()
	return t.next.Close()
}

// FileTransport appends every envelope as one JSON line to a capture file.
type FileTransport struct {
	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
}

// NewFileTransport opens (or creates) path for appending.
func NewFileTransport(path string) (*FileTransport, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create capture dir failed: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open capture file failed: %w", err)
	}
	return &FileTransport{file: f, w: bufio.NewWriter(f)}, nil
}

func (t *FileTransport) Deliver(_ context.Context, enc EncodedEnvelope) error {
	line, err := jsonLine(enc)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.file == nil {
		return errTransportClosed
	} else if _, err := t.w.Write(line); err != nil {
		return fmt.Errorf("write capture failed: %w", err)
	}
	return t.w.Flush()
}

// jsonLine returns the envelope as a single line of JSON, re-encoding when the body is not plain JSON.
func jsonLine(enc EncodedEnvelope) ([]byte, error) {
	var raw []byte
	if enc.ContentEncoding == "" && (enc.ContentType == "" || enc.ContentType == ContentTypeJSON) {
		var buf bytes.Buffer
		if err := json.Compact(&buf, enc.Body); err != nil {
			return nil, fmt.Errorf("invalid json envelope: %w", err)
		}
		raw = buf.Bytes()
	} else {
		env, err := DecodeEnvelope(enc)
		if err != nil {
			return nil, err
		}
		raw, err = json.Marshal(env)
		if err != nil {
			return nil, fmt.Errorf("json encode envelope failed: %w", err)
		}
	}
	return append(raw, '\n'), nil
}

func (t *FileTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.file == nil {
		return nil
	}
	err := errors.Join(t.w.Flush(), t.file.Close())
	t.file = nil
	return err
}
