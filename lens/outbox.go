package lens

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/errgroup"
)

const outboxKeyPrefix = "outbox"

// Outbox spools envelopes whose delivery failed so they can be replayed later.
type Outbox struct {
	store Storage
	seq   atomic.Uint64
}

// NewOutbox stores spooled envelopes in store under their own key prefix.
func NewOutbox(store Storage) *Outbox {
	return &Outbox{store: KeyPrefixStorage(store, outboxKeyPrefix)}
}

// Add spools enc. Keys sort in the order envelopes were added.
func (o *Outbox) Add(enc EncodedEnvelope) error {
	blob, err := msgpack.Marshal(&enc)
	if err != nil {
		return fmt.Errorf("encode spooled envelope failed: %w", err)
	}
	key := fmt.Sprintf("%020d-%010d", time.Now().UnixNano(), o.seq.Add(1))
	if err := o.store.Put(key, blob); err != nil {
		return fmt.Errorf("spool envelope failed: %w", err)
	}
	return nil
}

// Len returns the count of spooled envelopes.
func (o *Outbox) Len() (int, error) {
	keys, err := o.store.Keys("")
	return len(keys), err
}

// Replay delivers every spooled envelope through t, removing those delivered. Envelopes that
// fail stay spooled and their errors are joined into the returned error.
func (o *Outbox) Replay(ctx context.Context, t Transport, concurrency int) (int, error) {
	keys, err := o.store.Keys("")
	if err != nil {
		return 0, fmt.Errorf("list spooled envelopes failed: %w", err)
	}

	var delivered atomic.Int64
	var errMu sync.Mutex
	var errs []error
	addErr := func(err error) {
		errMu.Lock()
		defer errMu.Unlock()
		errs = append(errs, err)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, concurrency))
	for _, key := range keys {
		if gCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			blob, ok, err := o.store.Get(key)
			if err != nil {
				addErr(fmt.Errorf("load %s failed: %w", key, err))
				return nil
			} else if !ok {
				return nil // replayed concurrently
			}
			var enc EncodedEnvelope
			if err := msgpack.Unmarshal(blob, &enc); err != nil {
				addErr(fmt.Errorf("decode %s failed: %w", key, err))
				return nil
			} else if err := t.Deliver(gCtx, enc); err != nil {
				addErr(err)
				return nil
			} else if err := o.store.Delete(key); err != nil {
				addErr(fmt.Errorf("delete %s failed: %w", key, err))
				return nil
			}
			delivered.Add(1)
			return nil
		})
	}
	_ = g.Wait() // errors are collected rather than cancelling siblings
	if err := ctx.Err(); err != nil {
		addErr(err)
	}
	return int(delivered.Load()), errors.Join(errs...)
}

// Clear drops all spooled envelopes.
func (o *Outbox) Clear() error {
	return o.store.Clear()
}
