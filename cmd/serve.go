package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/graphmcp/internal/azure"
	"github.com/teemow/graphmcp/internal/config"
	"github.com/teemow/graphmcp/internal/instrumentation"
	"github.com/teemow/graphmcp/internal/mailbox"
	"github.com/teemow/graphmcp/internal/resources"
	"github.com/teemow/graphmcp/internal/server"
	"github.com/teemow/graphmcp/internal/tools/graph_tools"
	"github.com/teemow/graphmcp/internal/tools/mail_tools"
)

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

func newServeCmd() *cobra.Command {
	var (
		configFile string

		transport string
		httpAddr  string
		baseURL   string
		dataDir   string

		tenantID     string
		clientID     string
		clientSecret string
		userScopes   string

		metricsEnabled bool
		metricsAddr    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server exposing Microsoft Entra ID
identity tools, Microsoft Graph tools, and the fixture mailbox tools.

Supports multiple transport types:
  - stdio: Standard input/output (default)
  - streamable-http: Streamable HTTP transport with bearer-token authentication

Entra ID Configuration:
  The app registration is read from flags, the AZURE_CLIENT_ID,
  AZURE_CLIENT_SECRET, AZURE_TENANT_ID and AZURE_GRAPH_USER_SCOPES
  environment variables, or a .env file in the working directory.
  Flags take precedence over the environment.

  The HTTP transport requires a complete app registration: incoming bearer
  tokens are validated against the tenant's signing keys and exchanged via
  the On-Behalf-Of flow for Microsoft Graph calls.

  Over stdio there is no caller token; identity tools return an error and
  the fixture mailbox tools remain available.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configFile != "" {
				var err error
				if cfg, err = config.Load(configFile); err != nil {
					return err
				}
			}
			cfg.ApplyEnvironment()

			// Flags override both the file and the environment
			if cmd.Flags().Changed("transport") {
				cfg.Transport = transport
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = httpAddr
			}
			if cmd.Flags().Changed("base-url") {
				cfg.BaseURL = baseURL
			}
			if cmd.Flags().Changed("data-dir") {
				cfg.DataDir = dataDir
			}
			if cmd.Flags().Changed("tenant-id") {
				cfg.Azure.TenantID = tenantID
			}
			if cmd.Flags().Changed("client-id") {
				cfg.Azure.ClientID = clientID
			}
			if cmd.Flags().Changed("client-secret") {
				cfg.Azure.ClientSecret = clientSecret
			}
			if cmd.Flags().Changed("graph-user-scopes") {
				cfg.Azure.UserScopes = azure.ParseScopes(userScopes)
			}
			if cmd.Flags().Changed("metrics-enabled") {
				cfg.Metrics.Enabled = metricsEnabled
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Metrics.Addr = metricsAddr
			}

			metricsConfig := MetricsConfig{
				Enabled: cfg.Metrics.Enabled,
				Addr:    cfg.Metrics.Addr,
			}

			return runServe(cfg.Transport, cfg.Addr, cfg.BaseURL, cfg.DataDir, cfg.AzureClientConfig(), metricsConfig)
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "Path to a YAML configuration file")
	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport type: stdio or streamable-http")
	cmd.Flags().StringVar(&httpAddr, "addr", ":8000", "HTTP server address (for streamable-http transport)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Public base URL of the server (HTTP transport only). Can also use MCP_BASE_URL env var. Example: https://mcp.example.com")
	cmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Directory holding the mailbox fixture files")

	cmd.Flags().StringVar(&tenantID, "tenant-id", "", "Entra ID directory (tenant) ID. Can also use AZURE_TENANT_ID env var.")
	cmd.Flags().StringVar(&clientID, "client-id", "", "Entra ID application (client) ID. Can also use AZURE_CLIENT_ID env var.")
	cmd.Flags().StringVar(&clientSecret, "client-secret", "", "Entra ID client secret. Can also use AZURE_CLIENT_SECRET env var.")
	cmd.Flags().StringVar(&userScopes, "graph-user-scopes", "", "Graph delegated scopes, space or comma separated. Can also use AZURE_GRAPH_USER_SCOPES env var. Default: User.Read")

	cmd.Flags().BoolVar(&metricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

func runServe(transport, httpAddr, baseURL, dataDir string, azureConfig azure.Config, metricsConfig MetricsConfig) error {
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// The HTTP transport cannot validate or exchange tokens without a
	// complete app registration. Over stdio the identity tools surface the
	// failure per call, so an incomplete registration is only a warning.
	if err := azureConfig.Validate(); err != nil {
		if transport != "stdio" {
			return fmt.Errorf("incomplete Entra ID configuration: %w", err)
		}
		slog.Warn("incomplete Entra ID configuration, identity tools will fail", "error", err)
	}

	mailStore, err := mailbox.NewStore(dataDir)
	if err != nil {
		slog.Warn("mailbox fixtures unavailable, mail tools will fail", "data_dir", dataDir, "error", err)
		mailStore = nil
	}

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(shutdownCtx); err != nil && transport != "stdio" {
			slog.Error("instrumentation shutdown failed", "error", err)
		}
	}()

	// Metrics listen on their own port so the MCP endpoint stays authenticated
	var metricsServer *server.MetricsServer
	if transport != "stdio" && metricsConfig.Enabled && provider.Enabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    metricsConfig.Addr,
			Enabled:                 true,
			InstrumentationProvider: provider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		go func() {
			if err := metricsServer.Start(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server failed", "error", err)
			}
		}()
	}

	serverContext, err := server.NewServerContext(shutdownCtx, azureConfig, mailStore)
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}

	if provider.Enabled() {
		serverContext.SetMetrics(provider.Metrics())
		serverContext.SetAuditLogger(instrumentation.NewAuditLoggerWithConfig(nil, instrConfig.AuditLogging))
	}

	defer func() {
		if metricsServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(ctx); err != nil {
				slog.Error("metrics server shutdown failed", "error", err)
			}
		}
		if err := serverContext.Shutdown(); err != nil && transport != "stdio" {
			slog.Error("server context shutdown failed", "error", err)
		}
	}()

	mcpSrv := mcpserver.NewMCPServer("graphmcp", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false),
	)

	if err := registerAllTools(mcpSrv, serverContext); err != nil {
		return err
	}

	switch transport {
	case "stdio":
		return runStdioServer(mcpSrv)
	case "streamable-http":
		return runStreamableHTTPServer(shutdownCtx, mcpSrv, serverContext, httpAddr, baseURL, metricsConfig)
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http)", transport)
	}
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	err := <-serverDone
	if err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

// registerAllTools registers all MCP tools and resources
func registerAllTools(mcpSrv *mcpserver.MCPServer, sc *server.ServerContext) error {
	type toolRegistration struct {
		name     string
		register func() error
	}

	registrations := []toolRegistration{
		{
			name: "Graph",
			register: func() error {
				return graph_tools.RegisterGraphTools(mcpSrv, sc)
			},
		},
		{
			name: "Mail",
			register: func() error {
				return mail_tools.RegisterMailTools(mcpSrv, sc)
			},
		},
		{
			name: "User Resources",
			register: func() error {
				return resources.RegisterUserResources(mcpSrv, sc)
			},
		},
	}

	for _, reg := range registrations {
		if err := reg.register(); err != nil {
			return fmt.Errorf("failed to register %s: %w", reg.name, err)
		}
	}

	return nil
}

// resolveBaseURL picks the public base URL from the flag, the MCP_BASE_URL
// environment variable, or auto-detection for local development.
func resolveBaseURL(baseURL, addr string) string {
	if baseURL != "" {
		return baseURL
	}
	if env := os.Getenv("MCP_BASE_URL"); env != "" {
		return env
	}
	if addr != "" && addr[0] == ':' {
		return fmt.Sprintf("http://localhost%s", addr)
	}
	return fmt.Sprintf("http://%s", addr)
}

func runStreamableHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, addr, baseURL string, metricsConfig MetricsConfig) error {
	resolved := resolveBaseURL(baseURL, addr)
	if baseURL == "" && os.Getenv("MCP_BASE_URL") == "" {
		slog.Info("no base URL configured, using auto-detected", "base_url", resolved)
		slog.Info("for deployed instances, set --base-url or MCP_BASE_URL")
	} else {
		slog.Info("using configured base URL", "base_url", resolved)
	}

	oauthServer, err := server.NewOAuthHTTPServer(mcpSrv, sc, resolved)
	if err != nil {
		return fmt.Errorf("failed to create OAuth HTTP server: %w", err)
	}

	slog.Info("starting streamable HTTP server with Entra ID authentication",
		"addr", addr,
		"mcp_endpoint", "/mcp",
		"metadata_endpoint", "/.well-known/oauth-protected-resource",
		"tenant", sc.AzureConfig().TenantID,
	)
	if metricsConfig.Enabled {
		slog.Info("metrics endpoint available", "addr", metricsConfig.Addr, "path", "/metrics")
	}

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := oauthServer.Start(addr); err != nil && err != http.ErrServerClosed {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := oauthServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
	}

	slog.Info("HTTP server gracefully stopped")
	return nil
}
