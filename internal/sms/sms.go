// Package sms delivers alert text through Africa's Talking.
package sms

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mr1hm/go-hazard-watch/internal/config"
)

// Gateway sends one message to many recipients.
type Gateway interface {
	Send(ctx context.Context, recipients []string, message string) (Result, error)
}

type RecipientStatus struct {
	Number  string `json:"number"`
	Status  string `json:"status"`
	Success bool   `json:"success"`
}

type Result struct {
	Sent       int               `json:"sent"`
	Failed     int               `json:"failed"`
	Sandbox    bool              `json:"sandbox"`
	Mock       bool              `json:"mock,omitempty"`
	Recipients []RecipientStatus `json:"recipients,omitempty"`
}

// NormalizePhone rewrites a local number into international form:
// trunk prefixes 07 and 01 become +<country code>, and a bare
// <country code> number gains a leading +.
func NormalizePhone(raw, countryCode string) string {
	n := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	n = strings.ReplaceAll(n, "-", "")

	switch {
	case n == "":
		return ""
	case strings.HasPrefix(n, "+"):
		return n
	case strings.HasPrefix(n, "07"), strings.HasPrefix(n, "01"):
		return "+" + countryCode + n[1:]
	case strings.HasPrefix(n, countryCode):
		return "+" + n
	default:
		return n
	}
}

// NormalizeAll normalizes and drops empty or repeated numbers, keeping order.
func NormalizeAll(raw []string, countryCode string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		n := NormalizePhone(r, countryCode)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// New returns the live client when an API key is configured and a logging
// mock otherwise.
func New(cfg config.SMSConfig, logger *slog.Logger) Gateway {
	if cfg.APIKey == "" {
		return &MockGateway{logger: logger}
	}
	return NewClient(cfg)
}

// MockGateway reports every recipient as delivered without sending anything.
type MockGateway struct {
	logger *slog.Logger
}

func NewMockGateway(logger *slog.Logger) *MockGateway {
	return &MockGateway{logger: logger}
}

func (m *MockGateway) Send(ctx context.Context, recipients []string, message string) (Result, error) {
	preview := message
	if r := []rune(preview); len(r) > 60 {
		preview = string(r[:60]) + "..."
	}
	m.logger.Info("mock sms send", "recipients", len(recipients), "message", preview)

	res := Result{Sent: len(recipients), Sandbox: true, Mock: true}
	for _, n := range recipients {
		res.Recipients = append(res.Recipients, RecipientStatus{Number: n, Status: "Success", Success: true})
	}
	return res, nil
}
