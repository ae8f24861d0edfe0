// Package gateway talks to the card gateway over HTTPS: it builds the wire
// payloads, performs one authenticated exchange per call and classifies the
// decoded response into a payment outcome.
package gateway

import (
	"fmt"
	"strings"

	"github.com/cassiomorais/cardgateway/internal/infrastructure/config"
	"github.com/rs/zerolog"
)

// Credentials identify the merchant to the gateway.
type Credentials struct {
	Username string
	Token    string
	BaseURL  string
	TestMode bool
}

// NewCredentials validates cfg and resolves the sandbox or production base URL.
func NewCredentials(cfg config.GatewayConfig) (Credentials, error) {
	if err := cfg.Validate(); err != nil {
		return Credentials{}, fmt.Errorf("gateway credentials: %w", err)
	}
	return Credentials{
		Username: cfg.Username,
		Token:    cfg.Token,
		BaseURL:  cfg.Endpoint(),
		TestMode: cfg.TestMode,
	}, nil
}

func (c Credentials) String() string {
	return fmt.Sprintf("%s@%s (token %s)", c.Username, c.BaseURL, maskToken(c.Token))
}

func (c Credentials) MarshalZerologObject(e *zerolog.Event) {
	e.Str("username", c.Username).
		Str("base_url", c.BaseURL).
		Str("token", maskToken(c.Token)).
		Bool("test_mode", c.TestMode)
}

func maskToken(token string) string {
	if len(token) <= 4 {
		return strings.Repeat("*", len(token))
	}
	return strings.Repeat("*", len(token)-4) + token[len(token)-4:]
}
