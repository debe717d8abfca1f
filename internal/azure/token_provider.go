package azure

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
)

// TokenProvider exchanges a caller's bearer assertion for a Graph token.
// This abstraction lets handlers and tests substitute the real OBO exchange.
type TokenProvider interface {
	// ExchangeToken performs (or serves from cache) the OBO exchange for the
	// given caller assertion.
	ExchangeToken(ctx context.Context, assertion string) (*oauth2.Token, error)
}

// ExchangeMetrics records On-Behalf-Of exchange outcomes. Satisfied by
// instrumentation.Metrics.
type ExchangeMetrics interface {
	RecordOBOExchange(ctx context.Context, result string)
}

// OBOTokenProvider implements TokenProvider with per-assertion OBOTokenSource
// caching, so repeated tool calls with the same caller token reuse the Graph
// token until it nears expiry.
type OBOTokenProvider struct {
	config Config
	opts   []OBOOption

	mu      sync.RWMutex
	sources map[string]*OBOTokenSource
	metrics ExchangeMetrics
}

// NewOBOTokenProvider creates a provider for the given app registration.
// Options are applied to every token source it creates.
func NewOBOTokenProvider(config Config, opts ...OBOOption) *OBOTokenProvider {
	return &OBOTokenProvider{
		config:  config,
		opts:    opts,
		sources: make(map[string]*OBOTokenSource),
	}
}

// ExchangeToken implements TokenProvider.
func (p *OBOTokenProvider) ExchangeToken(ctx context.Context, assertion string) (*oauth2.Token, error) {
	if assertion == "" {
		return nil, fmt.Errorf("caller assertion is required for token exchange")
	}

	source := p.sourceFor(assertion)
	token, err := source.TokenContext(ctx)
	if err != nil {
		p.recordExchange(ctx, "failure")
		return nil, fmt.Errorf("on-behalf-of exchange failed: %w", err)
	}
	p.recordExchange(ctx, "success")
	return token, nil
}

// SetMetrics enables recording of exchange outcomes.
func (p *OBOTokenProvider) SetMetrics(metrics ExchangeMetrics) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metrics = metrics
}

func (p *OBOTokenProvider) recordExchange(ctx context.Context, result string) {
	p.mu.RLock()
	metrics := p.metrics
	p.mu.RUnlock()
	if metrics != nil {
		metrics.RecordOBOExchange(ctx, result)
	}
}

// TokenSourceFor returns the cached token source for the assertion, creating
// one if needed.
func (p *OBOTokenProvider) TokenSourceFor(assertion string) oauth2.TokenSource {
	return p.sourceFor(assertion)
}

// HTTPClientFor returns an HTTP client authenticating with Graph tokens
// exchanged for the given assertion.
func (p *OBOTokenProvider) HTTPClientFor(ctx context.Context, assertion string) *http.Client {
	return oauth2.NewClient(ctx, p.sourceFor(assertion))
}

func (p *OBOTokenProvider) sourceFor(assertion string) *OBOTokenSource {
	key := assertionKey(assertion)

	p.mu.RLock()
	source, ok := p.sources[key]
	p.mu.RUnlock()
	if ok {
		return source
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if source, ok = p.sources[key]; ok {
		return source
	}

	source = NewOBOTokenSource(p.config, assertion, p.opts...)
	p.sources[key] = source
	return source
}

// Evict drops the cached token source for an assertion, e.g. after the
// caller's token was revoked.
func (p *OBOTokenProvider) Evict(assertion string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sources, assertionKey(assertion))
}

// assertionKey hashes the assertion so raw caller tokens are never used as
// map keys that could leak via debugging output.
func assertionKey(assertion string) string {
	sum := sha256.Sum256([]byte(assertion))
	return hex.EncodeToString(sum[:])
}

// StaticTokenProvider returns a fixed token for any assertion. Test helper.
type StaticTokenProvider struct {
	Token *oauth2.Token
	Err   error
}

// ExchangeToken implements TokenProvider.
func (p *StaticTokenProvider) ExchangeToken(ctx context.Context, assertion string) (*oauth2.Token, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Token, nil
}
