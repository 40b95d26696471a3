package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

// resolveSecret fills the shared signing secret from its configured source.
// SERVICE_SECRET is honoured for compatibility with existing deployments.
func resolveSecret(auth *AuthConfig) error {
	switch strings.ToLower(strings.TrimSpace(auth.SecretSource)) {
	case "", "env":
		if auth.Secret == "" {
			auth.Secret = os.Getenv("SERVICE_SECRET")
		}
		return nil
	case "keyring":
		if auth.Secret != "" {
			return nil
		}
		secret, err := keyring.Get(DefaultKeyringService, auth.ServiceID)
		if err != nil {
			return fmt.Errorf("read secret for %s from keyring: %w", auth.ServiceID, err)
		}
		auth.Secret = secret
		return nil
	default:
		return fmt.Errorf("unknown auth.secret_source %q", auth.SecretSource)
	}
}

// StoreSecret writes the shared secret for serviceID into the OS keyring.
func StoreSecret(serviceID, secret string) error {
	if serviceID == "" || secret == "" {
		return fmt.Errorf("service id and secret are required")
	}
	return keyring.Set(DefaultKeyringService, serviceID, secret)
}
