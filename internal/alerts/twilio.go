// Package alerts wraps the Twilio API for out-of-band notification copies.
//
// This is the best-effort side channel: each delivery item may additionally
// be pushed as an SMS so the user hears about a firing even with no chat
// client open. No delivery guarantee attaches to this path.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Opts holds configuration options for the Twilio alert client.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	ToNumber   string
}

// Option defines a configuration option for the Twilio alert client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromNumber sets the sending phone number.
func WithFromNumber(from string) Option {
	return func(o *Opts) { o.FromNumber = from }
}

// WithToNumber sets the alert recipient phone number.
func WithToNumber(to string) Option {
	return func(o *Opts) { o.ToNumber = to }
}

// Client sends alert copies over Twilio SMS.
type Client struct {
	client *twilio.RestClient
	from   string
	to     string
}

// NewClient creates a Twilio alert client. Options fall back to the
// TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, TWILIO_FROM_NUMBER, and
// ALERT_TO_NUMBER environment variables.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromNumber == "" {
		cfg.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	}
	if cfg.ToNumber == "" {
		cfg.ToNumber = os.Getenv("ALERT_TO_NUMBER")
	}
	slog.Debug("Twilio alert client config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromNumber_set", cfg.FromNumber != "",
		"ToNumber_set", cfg.ToNumber != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromNumber == "" || cfg.ToNumber == "" {
		return nil, fmt.Errorf("from and to numbers must be provided")
	}

	client := twilio.NewRestClientWithParams(
		twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		},
	)

	return &Client{client: client, from: cfg.FromNumber, to: cfg.ToNumber}, nil
}

// Notify sends one alert copy as an SMS.
func (c *Client) Notify(ctx context.Context, ownerID, payload string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(c.to)
	params.SetFrom(c.from)
	params.SetBody(payload)

	_, err := c.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio alert send failed", "ownerID", ownerID, "error", err)
		return fmt.Errorf("failed to send alert for %s: %w", ownerID, err)
	}

	slog.Debug("Twilio alert sent", "ownerID", ownerID)
	return nil
}
