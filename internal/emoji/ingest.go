package emoji

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"
)

const downloadTimeout = 10 * time.Second

// Service wires the cache, the concurrency limiter, and an HTTP client
// into the full ingest pipeline.
type Service struct {
	cache   *Cache
	limiter *Limiter
	client  *http.Client
}

// NewService constructs a Service. A nil client defaults to
// http.DefaultClient; callers normally pass one with their own transport
// configured, since downloadTimeout is applied per-request via context
// regardless of the client's own Timeout field.
func NewService(cache *Cache, limiter *Limiter, client *http.Client) *Service {
	if client == nil {
		client = http.DefaultClient
	}
	return &Service{cache: cache, limiter: limiter, client: client}
}

// LoadEmoji runs the full ingest pipeline for url on behalf of user:
// acquire the concurrency gates, download, decode, normalize, re-encode,
// and insert keyed by the MD5 of the encoded bytes. A url that decodes to
// byte-identical output as a prior ingest returns the existing key without
// inserting a duplicate entry. Any failure (gate cancellation, non-200,
// timeout, decode error) returns an error and no key.
func (s *Service) LoadEmoji(ctx context.Context, url, user string) (string, error) {
	release, err := s.limiter.Acquire(ctx, user)
	if err != nil {
		return "", fmt.Errorf("acquire concurrency gate: %w", err)
	}
	defer release()

	data, err := s.download(ctx, url)
	if err != nil {
		return "", err
	}

	d, err := decodeSource(data)
	if err != nil {
		return "", err
	}
	normalize(d)

	encoded, err := encode(d)
	if err != nil {
		return "", err
	}

	sum := md5.Sum(encoded)
	key := hex.EncodeToString(sum[:])

	now := time.Now()
	if s.cache.Has(now, key) {
		return key, nil
	}
	s.cache.Set(now, key, encoded, "image/webp")
	return key, nil
}

func (s *Service) download(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download emoji: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download emoji: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read emoji body: %w", err)
	}
	return data, nil
}

// Get looks up a cached emoji by key for the fetch endpoint.
func (s *Service) Get(key string) (*Entry, bool) {
	return s.cache.Get(time.Now(), key)
}

// StartMaintenance runs the cache's TTL/size sweep and the limiter's idle
// gate cleanup together on a fixed interval until stop is closed — both
// are swept from the same background task per the single maintenance
// loop the cache and its concurrency gates share.
func (s *Service) StartMaintenance(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case t := <-ticker.C:
			s.cache.Maintain(t)
			s.limiter.Cleanup(t, GateIdleAfter)
		}
	}
}
