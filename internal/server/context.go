package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/teemow/graphmcp/internal/azure"
	"github.com/teemow/graphmcp/internal/graph"
	"github.com/teemow/graphmcp/internal/instrumentation"
	"github.com/teemow/graphmcp/internal/mailbox"
)

// GraphClientFactory builds a Graph client for a caller's assertion.
// Tests substitute this to point clients at a fake Graph endpoint.
type GraphClientFactory func(assertion string) *graph.Client

// ServerContext holds the shared dependencies of the MCP tool handlers.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	azureConfig   azure.Config
	tokenProvider azure.TokenProvider
	oboProvider   *azure.OBOTokenProvider

	graphFactory GraphClientFactory
	graphClients map[string]*graph.Client // assertion hash -> client

	mailStore *mailbox.Store

	metrics     *instrumentation.Metrics
	auditLogger *instrumentation.AuditLogger

	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext creates a new server context. The mailbox store may be
// nil when the mail tools are not served.
func NewServerContext(ctx context.Context, azureConfig azure.Config, mailStore *mailbox.Store) (*ServerContext, error) {
	shutdownCtx, cancel := context.WithCancel(ctx)

	oboProvider := azure.NewOBOTokenProvider(azureConfig)

	sc := &ServerContext{
		ctx:           shutdownCtx,
		cancel:        cancel,
		azureConfig:   azureConfig,
		tokenProvider: oboProvider,
		oboProvider:   oboProvider,
		graphClients:  make(map[string]*graph.Client),
		mailStore:     mailStore,
	}
	sc.graphFactory = func(assertion string) *graph.Client {
		return graph.NewClient(oboProvider.TokenSourceFor(assertion))
	}
	return sc, nil
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// AzureConfig returns the Entra ID app registration configuration
func (sc *ServerContext) AzureConfig() azure.Config {
	return sc.azureConfig
}

// TokenProvider returns the On-Behalf-Of token provider
func (sc *ServerContext) TokenProvider() azure.TokenProvider {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.tokenProvider
}

// SetTokenProvider replaces the token provider. Used by tests.
func (sc *ServerContext) SetTokenProvider(provider azure.TokenProvider) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.tokenProvider = provider
}

// GraphClientFor returns the Graph client for a caller's assertion,
// creating and caching one on first use.
func (sc *ServerContext) GraphClientFor(assertion string) *graph.Client {
	key := assertionKey(assertion)

	sc.mu.RLock()
	client, ok := sc.graphClients[key]
	sc.mu.RUnlock()
	if ok {
		return client
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if client, ok = sc.graphClients[key]; ok {
		return client
	}

	client = sc.graphFactory(assertion)
	sc.graphClients[key] = client
	return client
}

// SetGraphClientFactory replaces the Graph client factory and drops cached
// clients. Used by tests.
func (sc *ServerContext) SetGraphClientFactory(factory GraphClientFactory) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.graphFactory = factory
	sc.graphClients = make(map[string]*graph.Client)
}

// EvictAssertion drops cached state for a revoked caller token: the Graph
// client and the On-Behalf-Of token source.
func (sc *ServerContext) EvictAssertion(assertion string) {
	sc.mu.Lock()
	delete(sc.graphClients, assertionKey(assertion))
	sc.mu.Unlock()

	if sc.oboProvider != nil {
		sc.oboProvider.Evict(assertion)
	}
}

// MailStore returns the fixture mailbox store, or nil when not configured
func (sc *ServerContext) MailStore() *mailbox.Store {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.mailStore
}

// SetMailStore sets the fixture mailbox store
func (sc *ServerContext) SetMailStore(store *mailbox.Store) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.mailStore = store
}

// Metrics returns the metrics recorder, or nil when instrumentation is disabled
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.metrics
}

// SetMetrics sets the metrics recorder and propagates it to the On-Behalf-Of
// provider so exchange outcomes are recorded.
func (sc *ServerContext) SetMetrics(metrics *instrumentation.Metrics) {
	sc.mu.Lock()
	sc.metrics = metrics
	oboProvider := sc.oboProvider
	sc.mu.Unlock()

	if oboProvider != nil && metrics != nil {
		oboProvider.SetMetrics(metrics)
	}
}

// AuditLogger returns the audit logger, or nil when not configured
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.auditLogger
}

// SetAuditLogger sets the audit logger
func (sc *ServerContext) SetAuditLogger(logger *instrumentation.AuditLogger) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.auditLogger = logger
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}

// assertionKey hashes an assertion so raw caller tokens never become map keys
func assertionKey(assertion string) string {
	sum := sha256.Sum256([]byte(assertion))
	return hex.EncodeToString(sum[:])
}
