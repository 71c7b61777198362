package vault

import (
	"context"
	"fmt"

	vaultapi "github.com/hashicorp/vault/api"
	"github.com/rs/zerolog"
)

// Credentials are the exchange API keys held in Vault.
type Credentials struct {
	APIKey    string
	SecretKey string
}

// Client reads exchange credentials from a Vault KV v2 mount so they never
// live in config files on disk.
type Client struct {
	client     *vaultapi.Client
	mountPath  string
	secretPath string
	logger     zerolog.Logger
}

func NewClient(address, token, mountPath, secretPath string, tlsEnabled bool, caCert string, logger zerolog.Logger) (*Client, error) {
	cfg := vaultapi.DefaultConfig()
	cfg.Address = address
	if tlsEnabled && caCert != "" {
		if err := cfg.ConfigureTLS(&vaultapi.TLSConfig{CACert: caCert}); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := vaultapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(token)

	return &Client{
		client:     client,
		mountPath:  mountPath,
		secretPath: secretPath,
		logger:     logger.With().Str("component", "vault_client").Logger(),
	}, nil
}

// FetchCredentials reads the API key pair from the configured KV v2 path.
func (c *Client) FetchCredentials(ctx context.Context) (*Credentials, error) {
	secret, err := c.client.KVv2(c.mountPath).Get(ctx, c.secretPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read vault secret %s/%s: %w", c.mountPath, c.secretPath, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("vault secret %s/%s is empty", c.mountPath, c.secretPath)
	}

	apiKey, _ := secret.Data["api_key"].(string)
	secretKey, _ := secret.Data["secret_key"].(string)
	if apiKey == "" || secretKey == "" {
		return nil, fmt.Errorf("vault secret %s/%s missing api_key or secret_key", c.mountPath, c.secretPath)
	}

	c.logger.Info().Str("path", c.secretPath).Msg("exchange credentials loaded from vault")
	return &Credentials{APIKey: apiKey, SecretKey: secretKey}, nil
}

// Health verifies the Vault connection and seal status.
func (c *Client) Health(ctx context.Context) error {
	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}
