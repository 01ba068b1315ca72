package config

import (
	"fmt"
	"net/url"
)

type Config struct {
	ServerURL        string
	CollaborationURL string
	SessionToken     string
	DebugAddr        string
}

func validateWsURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme %q, want ws or wss", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", rawURL)
	}
	return nil
}

func NewConfig(serverURL, collaborationURL, sessionToken, debugAddr string) (*Config, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("server url cannot be empty")
	}
	if err := validateWsURL(serverURL); err != nil {
		return nil, fmt.Errorf("server url: %w", err)
	}
	if collaborationURL != "" {
		if err := validateWsURL(collaborationURL); err != nil {
			return nil, fmt.Errorf("collaboration url: %w", err)
		}
	}
	if sessionToken == "" {
		return nil, fmt.Errorf("session token cannot be empty")
	}

	return &Config{
		ServerURL:        serverURL,
		CollaborationURL: collaborationURL,
		SessionToken:     sessionToken,
		DebugAddr:        debugAddr,
	}, nil
}
