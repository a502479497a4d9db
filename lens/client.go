package lens

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
)

// Client assembles envelopes and delivers them to the debug server. A Client is safe for
// concurrent use, its configuration is fixed at construction.
type Client struct {
	cfg       Config
	inspector *Inspector
	detector  OriginDetector
	delivery  Transport // synchronous transport, used directly and for replay
	transport Transport // delivery, wrapped when async
	outbox    *Outbox
	store     Storage
	enabled   atomic.Bool
}

// ClientOption customizes a Client at construction.
type ClientOption func(*Client)

// WithTransport replaces the transport selected from the config.
func WithTransport(t Transport) ClientOption {
	return func(c *Client) {
		c.delivery = t
	}
}

// WithStorage replaces the outbox storage selected from the config.
func WithStorage(s Storage) ClientOption {
	return func(c *Client) {
		c.store = s
	}
}

// WithOriginDetector replaces the go.mod based origin fallback.
func WithOriginDetector(d OriginDetector) ClientOption {
	return func(c *Client) {
		c.detector = d
	}
}

// NewClient validates cfg and builds the transport and outbox it describes.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Client{cfg: cfg, detector: defaultOriginDetector}
	for _, opt := range opts {
		opt(c)
	}
	c.enabled.Store(cfg.Enabled)

	if c.store == nil {
		if cfg.SpoolDir != "" {
			store, err := NewBadgerStorage(cfg.SpoolDir, cfg.CacheMB)
			if err != nil {
				return nil, err
			}
			c.store = store
		} else {
			c.store = NewMemStorage()
		}
	}
	c.outbox = NewOutbox(c.store)

	if c.delivery == nil {
		if cfg.CaptureFile != "" {
			ft, err := NewFileTransport(cfg.CaptureFile)
			if err != nil {
				_ = c.store.Close()
				return nil, err
			}
			c.delivery = ft
		} else {
			c.delivery = NewHTTPTransport(cfg.Endpoint, cfg.Timeout)
		}
	}
	c.transport = c.delivery
	if cfg.Async {
		c.transport = NewAsyncTransport(c.delivery, cfg.MaxConcurrentSends, c.spool)
	}

	c.inspector = NewInspector(cfg.inspectorOptions())
	return c, nil
}

// Config returns the configuration the client was built with.
func (c *Client) Config() Config {
	return c.cfg
}

// Enabled reports if calls are currently sent.
func (c *Client) Enabled() bool {
	return c.enabled.Load()
}

// Enable resumes sending.
func (c *Client) Enable() {
	c.enabled.Store(true)
}

// Disable turns every call into a no-op until Enable is invoked.
func (c *Client) Disable() {
	c.enabled.Store(false)
}

// Inspector returns the inspector used for data bodies.
func (c *Client) Inspector() *Inspector {
	return c.inspector
}

// Send assembles body into an envelope of eventType and delivers it. A failed delivery is
// spooled in the outbox and the error returned.
func (c *Client) Send(ctx context.Context, eventType string, body any) error {
	if !c.Enabled() {
		return nil
	}
	env := AssembleWith(eventType, body, c.cfg, c.detector)
	enc, err := EncodeEnvelope(env, c.cfg.Codec, c.cfg.Compression)
	if err != nil {
		return err
	}
	if err := c.transport.Deliver(ctx, enc); err != nil {
		c.spool(enc, err)
		return err
	}
	return nil
}

func (c *Client) send(eventType string, body any) error {
	return c.Send(context.Background(), eventType, body)
}

func (c *Client) spool(enc EncodedEnvelope, cause error) {
	if errors.Is(cause, errTransportClosed) {
		return
	} else if err := c.outbox.Add(enc); err != nil {
		log.Printf("%sDropping envelope, delivery failed: %v, spool failed: %v", ErrorLogPrefix, cause, err)
	}
}

// Spooled returns the number of envelopes waiting for replay.
func (c *Client) Spooled() (int, error) {
	return c.outbox.Len()
}

// Replay retries delivery of spooled envelopes, returning how many were delivered.
func (c *Client) Replay(ctx context.Context) (int, error) {
	return c.outbox.Replay(ctx, c.delivery, max(1, c.cfg.MaxConcurrentSends))
}

// Flush waits for in-flight asynchronous deliveries.
func (c *Client) Flush() {
	if at, ok := c.transport.(*AsyncTransport); ok {
		at.Flush()
	}
}

// Close waits for pending deliveries and releases the transport, outbox storage and inspector.
func (c *Client) Close() error {
	err := errors.Join(c.transport.Close(), c.store.Close())
	c.inspector.Close()
	return err
}
