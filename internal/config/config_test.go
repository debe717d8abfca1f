package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func clearAzureEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"AZURE_TENANT_ID", "AZURE_CLIENT_ID", "AZURE_CLIENT_SECRET",
		"AZURE_GRAPH_USER_SCOPES", "MCP_BASE_URL", "METRICS_ADDR",
	} {
		t.Setenv(key, "")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "stdio", cfg.Transport)
	assert.Equal(t, ":8000", cfg.Addr)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, []string{"User.Read"}, cfg.Azure.UserScopes)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
}

func TestLoad(t *testing.T) {
	path := writeConfigFile(t, `
transport: streamable-http
addr: ":9000"
baseUrl: https://mcp.example.com
dataDir: /srv/mail
azure:
  tenantId: file-tenant
  clientId: file-client
  clientSecret: file-secret
  userScopes:
    - User.Read
    - Mail.Read
metrics:
  enabled: false
  addr: ":9100"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "streamable-http", cfg.Transport)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, "https://mcp.example.com", cfg.BaseURL)
	assert.Equal(t, "/srv/mail", cfg.DataDir)
	assert.Equal(t, "file-tenant", cfg.Azure.TenantID)
	assert.Equal(t, []string{"User.Read", "Mail.Read"}, cfg.Azure.UserScopes)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfigFile(t, `
azure:
  tenantId: file-tenant
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "file-tenant", cfg.Azure.TenantID)
	assert.Equal(t, "stdio", cfg.Transport)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, []string{"User.Read"}, cfg.Azure.UserScopes)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfigFile(t, "transport: [unclosed")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestApplyEnvironment(t *testing.T) {
	clearAzureEnv(t)
	t.Setenv("AZURE_TENANT_ID", "env-tenant")
	t.Setenv("AZURE_CLIENT_ID", "env-client")
	t.Setenv("AZURE_GRAPH_USER_SCOPES", "User.Read Mail.Read")
	t.Setenv("MCP_BASE_URL", "https://env.example.com")

	cfg := Default()
	cfg.Azure.TenantID = "file-tenant"
	cfg.ApplyEnvironment()

	assert.Equal(t, "env-tenant", cfg.Azure.TenantID)
	assert.Equal(t, "env-client", cfg.Azure.ClientID)
	assert.Equal(t, []string{"User.Read", "Mail.Read"}, cfg.Azure.UserScopes)
	assert.Equal(t, "https://env.example.com", cfg.BaseURL)
}

func TestApplyEnvironment_EmptyEnvKeepsFileValues(t *testing.T) {
	clearAzureEnv(t)

	cfg := Default()
	cfg.Azure.TenantID = "file-tenant"
	cfg.Azure.UserScopes = []string{"Mail.Read"}
	cfg.ApplyEnvironment()

	assert.Equal(t, "file-tenant", cfg.Azure.TenantID)
	assert.Equal(t, []string{"Mail.Read"}, cfg.Azure.UserScopes)
}

func TestAzureClientConfig(t *testing.T) {
	cfg := Default()
	cfg.Azure = AzureConfig{
		TenantID:     "tenant",
		ClientID:     "client",
		ClientSecret: "secret",
		UserScopes:   []string{"User.Read"},
	}

	azureConfig := cfg.AzureClientConfig()
	assert.Equal(t, "tenant", azureConfig.TenantID)
	assert.Equal(t, "client", azureConfig.ClientID)
	assert.Equal(t, "secret", azureConfig.ClientSecret)
	assert.NoError(t, azureConfig.Validate())
}
