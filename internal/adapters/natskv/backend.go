// Package natskv implements the cache backend on NATS JetStream KeyValue
// buckets. JetStream KV expires entries per bucket, not per key, so the
// backend keeps one bucket per TTL class and routes writes by the TTL
// requested.
package natskv

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

const ensureRetries = 3

type Backend struct {
	js     jetstream.JetStream
	prefix string

	mu      sync.Mutex
	buckets map[time.Duration]jetstream.KeyValue
}

// NewBackend opens buckets for the given TTL classes up front so reads
// work after a process restart even before the first write.
func NewBackend(ctx context.Context, js jetstream.JetStream, prefix string, ttls ...time.Duration) (*Backend, error) {
	b := &Backend{
		js:      js,
		prefix:  prefix,
		buckets: make(map[time.Duration]jetstream.KeyValue),
	}
	for _, ttl := range ttls {
		if _, err := b.bucket(ctx, ttl); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	buckets := make([]jetstream.KeyValue, 0, len(b.buckets))
	for _, kv := range b.buckets {
		buckets = append(buckets, kv)
	}
	b.mu.Unlock()

	// Key namespaces are disjoint per entity kind, so a key lives in at
	// most one bucket.
	encoded := encodeKey(key)
	for _, kv := range buckets {
		entry, err := kv.Get(ctx, encoded)
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("kv get %q: %w", key, err)
		}
		return entry.Value(), nil
	}
	return nil, nil
}

func (b *Backend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	kv, err := b.bucket(ctx, ttl)
	if err != nil {
		return err
	}
	if _, err := kv.Put(ctx, encodeKey(key), value); err != nil {
		return fmt.Errorf("kv put %q: %w", key, err)
	}
	return nil
}

// bucket creates or opens the bucket for a TTL class, retrying on the
// create/open race when several processes start at once.
func (b *Backend) bucket(ctx context.Context, ttl time.Duration) (jetstream.KeyValue, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if kv, ok := b.buckets[ttl]; ok {
		return kv, nil
	}

	name := fmt.Sprintf("%s-%ds", b.prefix, int(ttl.Seconds()))
	var lastErr error
	for attempt := 0; attempt < ensureRetries; attempt++ {
		kv, err := b.js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket: name,
			TTL:    ttl,
		})
		if err == nil {
			b.buckets[ttl] = kv
			return kv, nil
		}
		if errors.Is(err, jetstream.ErrBucketExists) {
			kv, err = b.js.KeyValue(ctx, name)
			if err == nil {
				b.buckets[ttl] = kv
				return kv, nil
			}
			lastErr = fmt.Errorf("bucket exists but failed to open: %w", err)
		} else {
			lastErr = err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("ensure kv bucket %s: %w", name, lastErr)
}

// encodeKey makes arbitrary cache keys (user ids are opaque strings) safe
// for the restricted NATS KV key character set.
func encodeKey(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}
