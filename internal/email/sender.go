// Package email renders and delivers transactional email over SMTP.
package email

import (
	"context"

	"property_market_backend/platform/config"
)

// LeadNotification is everything the agent-notification email needs.
type LeadNotification struct {
	AgentEmail  string `json:"agentEmail"`
	AgentName   string `json:"agentName"`
	LeadName    string `json:"leadName"`
	LeadEmail   string `json:"leadEmail"`
	LeadPhone   string `json:"leadPhone"`
	LeadMessage string `json:"leadMessage"`
	LeadType    string `json:"leadType"`
	Suburb      string `json:"suburb"`
}

type Sender interface {
	SendLeadNotification(ctx context.Context, notification LeadNotification) error
	SendCustomEmail(ctx context.Context, toEmail, subject, htmlContent string) error
}

// NoopSender drops all email. Used when email delivery is disabled.
type NoopSender struct{}

func (NoopSender) SendLeadNotification(ctx context.Context, notification LeadNotification) error {
	return nil
}

func (NoopSender) SendCustomEmail(ctx context.Context, toEmail, subject, htmlContent string) error {
	return nil
}

// NewSender builds a Sender from configuration. A disabled or incomplete
// email config yields a NoopSender so environments without SMTP still run.
func NewSender(cfg config.EmailConfig) Sender {
	if !cfg.GetEmailEnabled() || cfg.GetSMTPHost() == "" {
		return NoopSender{}
	}
	return NewSMTPSender(
		cfg.GetSMTPHost(),
		cfg.GetSMTPPort(),
		cfg.GetSMTPUsername(),
		cfg.GetSMTPPassword(),
		cfg.GetEmailFromAddress(),
		cfg.GetEmailFromName(),
	)
}
