package clients

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// AuthMode selects how requests are authenticated.
type AuthMode string

const (
	AuthModeAPIKey          AuthMode = "ApiKey"
	AuthModeManagedIdentity AuthMode = "ManagedIdentity"
)

// ParseAuthMode accepts the canonical names plus the labels used by older
// settings ("Subscription Key", "Azure AD"). Empty means ApiKey.
func ParseAuthMode(value string) (AuthMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "apikey", "api_key", "key", "subscription key":
		return AuthModeAPIKey, nil
	case "managedidentity", "managed_identity", "azure ad", "aad":
		return AuthModeManagedIdentity, nil
	default:
		return "", &ConfigurationError{Field: "authMode", Reason: fmt.Sprintf("unknown auth mode %q", value)}
	}
}

// ConfigurationError reports a malformed or incomplete configuration.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid face configuration: %s: %s", e.Field, e.Reason)
}

// Configuration identifies a face service deployment and how to reach it.
type Configuration struct {
	Endpoint string   `json:"endpoint"`
	AuthMode AuthMode `json:"authMode"`
	Key      string   `json:"key,omitempty"`
}

// ParseConfiguration reads the endpoint, authMode and key entries of a
// settings mapping.
func ParseConfiguration(values map[string]string) (Configuration, error) {
	mode, err := ParseAuthMode(values["authMode"])
	if err != nil {
		return Configuration{}, err
	}
	cfg := Configuration{
		Endpoint: strings.TrimSpace(values["endpoint"]),
		AuthMode: mode,
		Key:      strings.TrimSpace(values["key"]),
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration invariants.
func (c Configuration) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return &ConfigurationError{Field: "endpoint", Reason: "endpoint is required"}
	}
	mode, err := ParseAuthMode(string(c.AuthMode))
	if err != nil {
		return err
	}
	if mode == AuthModeAPIKey && strings.TrimSpace(c.Key) == "" {
		return &ConfigurationError{Field: "key", Reason: "key is required for ApiKey auth"}
	}
	return nil
}

// Mode returns the effective auth mode, defaulting to ApiKey.
func (c Configuration) Mode() AuthMode {
	mode, err := ParseAuthMode(string(c.AuthMode))
	if err != nil {
		return c.AuthMode
	}
	return mode
}

// Redacted returns a copy safe to log or display.
func (c Configuration) Redacted() Configuration {
	if c.Key != "" {
		c.Key = "***"
	}
	return c
}

// Fingerprint identifies the configuration without exposing the key.
func (c Configuration) Fingerprint() string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		strings.TrimRight(strings.TrimSpace(c.Endpoint), "/"),
		string(c.Mode()),
		c.Key,
	}, "\x00")))
	return hex.EncodeToString(sum[:12])
}
