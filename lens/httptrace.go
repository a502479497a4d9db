package lens

import (
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// DefaultMaxBodyCapture is the number of body bytes retained by the tracing RoundTripper.
const DefaultMaxBodyCapture = 64 * 1024

// HTTPExchange describes one completed HTTP request for the EventHTTP wrapper.
type HTTPExchange struct {
	Request      *http.Request
	RequestBody  []byte
	Response     *http.Response
	ResponseBody []byte
	// ResponseSize is the full response body size, which may exceed len(ResponseBody).
	ResponseSize int64
	Duration     time.Duration
	Err          error
}

// HTTPBody is the data of an EventHTTP envelope.
type HTTPBody struct {
	Method          string            `json:"method" msgpack:"method"`
	URL             string            `json:"url" msgpack:"url"`
	Status          int               `json:"status" msgpack:"status"`
	RequestHeaders  map[string]string `json:"request_headers" msgpack:"request_headers"`
	ResponseHeaders map[string]string `json:"response_headers" msgpack:"response_headers"`
	RequestBody     *TreeNode         `json:"request_body,omitempty" msgpack:"request_body,omitempty"`
	ResponseBody    *TreeNode         `json:"response_body,omitempty" msgpack:"response_body,omitempty"`
	ResponseSize    string            `json:"response_size" msgpack:"response_size"`
	TimeMs          float64           `json:"time_ms" msgpack:"time_ms"`
	Error           string            `json:"error,omitempty" msgpack:"error,omitempty"`
}

// HTTP sends a completed exchange.
func (c *Client) HTTP(x HTTPExchange) error {
	if !c.Enabled() {
		return nil
	}
	return c.send(EventHTTP, c.httpBody(x))
}

func (c *Client) httpBody(x HTTPExchange) HTTPBody {
	body := HTTPBody{
		RequestHeaders:  map[string]string{},
		ResponseHeaders: map[string]string{},
		ResponseSize:    HumanizeBytes(x.ResponseSize),
		TimeMs:          durationMs(x.Duration),
	}
	if x.Request != nil {
		body.Method = x.Request.Method
		if x.Request.URL != nil {
			body.URL = x.Request.URL.String()
		}
		body.RequestHeaders = flattenHeader(x.Request.Header)
	}
	if x.Response != nil {
		body.Status = x.Response.StatusCode
		body.ResponseHeaders = flattenHeader(x.Response.Header)
	}
	if len(x.RequestBody) > 0 {
		body.RequestBody = c.inspector.Inspect(x.RequestBody)
	}
	if len(x.ResponseBody) > 0 {
		body.ResponseBody = c.inspector.Inspect(x.ResponseBody)
	}
	if x.Err != nil {
		body.Error = x.Err.Error()
	}
	return body
}

func flattenHeader(h http.Header) map[string]string {
	flat := make(map[string]string, len(h))
	for name, values := range h {
		flat[name] = strings.Join(values, ", ")
	}
	return flat
}

// RoundTripper wraps next (http.DefaultTransport when nil) so every request is reported as an
// EventHTTP once its response body is fully read or closed.
func (c *Client) RoundTripper(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &tracingRoundTripper{client: c, next: next, maxBody: DefaultMaxBodyCapture}
}

type tracingRoundTripper struct {
	client  *Client
	next    http.RoundTripper
	maxBody int
}

func (rt *tracingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if !rt.client.Enabled() {
		return rt.next.RoundTrip(req)
	}

	start := time.Now()
	reqBody := rt.requestBody(req)
	resp, err := rt.next.RoundTrip(req)
	if err != nil {
		rt.report(HTTPExchange{Request: req, RequestBody: reqBody, Duration: time.Since(start), Err: err})
		return resp, err
	} else if resp.Body == nil || resp.Body == http.NoBody {
		rt.report(HTTPExchange{Request: req, RequestBody: reqBody, Response: resp, Duration: time.Since(start)})
		return resp, nil
	}

	capture := newHeadBuffer(rt.maxBody)
	resp.Body = &tracedBody{
		ReadCloser: resp.Body,
		r:          io.TeeReader(resp.Body, capture),
		done: func(readErr error) {
			rt.report(HTTPExchange{
				Request:      req,
				RequestBody:  reqBody,
				Response:     resp,
				ResponseBody: capture.Bytes(),
				ResponseSize: capture.Total(),
				Duration:     time.Since(start),
				Err:          readErr,
			})
		},
	}
	return resp, nil
}

// requestBody reads a copy of the request body when it can be replayed through GetBody.
func (rt *tracingRoundTripper) requestBody(req *http.Request) []byte {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil
	}
	defer func() { _ = body.Close() }()
	capture := newHeadBuffer(rt.maxBody)
	_, _ = io.Copy(capture, body)
	return capture.Bytes()
}

func (rt *tracingRoundTripper) report(x HTTPExchange) {
	if err := rt.client.HTTP(x); err != nil {
		logSendFailure(EventHTTP, err)
	}
}

// tracedBody reports the exchange once, on EOF, read error or Close.
type tracedBody struct {
	io.ReadCloser
	r    io.Reader
	done func(error)
	once sync.Once
}

func (b *tracedBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err == io.EOF {
		b.once.Do(func() { b.done(nil) })
	} else if err != nil {
		b.once.Do(func() { b.done(err) })
	}
	return n, err
}

func (b *tracedBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(func() { b.done(nil) })
	return err
}
