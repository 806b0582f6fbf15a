package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/mr1hm/go-hazard-watch/internal/config"
)

type atResponse struct {
	SMSMessageData struct {
		Message    string `json:"Message"`
		Recipients []struct {
			Number     string `json:"number"`
			Status     string `json:"status"`
			StatusCode int    `json:"statusCode"`
		} `json:"Recipients"`
	} `json:"SMSMessageData"`
}

// Client talks to the Africa's Talking bulk messaging endpoint.
type Client struct {
	client   *http.Client
	url      string
	username string
	apiKey   string
	senderID string
}

func NewClient(cfg config.SMSConfig) *Client {
	return &Client{
		client:   &http.Client{Timeout: cfg.Timeout},
		url:      cfg.URL,
		username: cfg.Username,
		apiKey:   cfg.APIKey,
		senderID: cfg.SenderID,
	}
}

func (c *Client) Send(ctx context.Context, recipients []string, message string) (Result, error) {
	res := Result{Sandbox: c.username == "sandbox"}
	if len(recipients) == 0 {
		return res, nil
	}

	form := url.Values{}
	form.Set("username", c.username)
	form.Set("to", strings.Join(recipients, ","))
	form.Set("message", message)
	if c.senderID != "" {
		form.Set("from", c.senderID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(form.Encode()))
	if err != nil {
		return res, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apiKey", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		res.Failed = len(recipients)
		return res, fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		res.Failed = len(recipients)
		return res, fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}

	var data atResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		res.Failed = len(recipients)
		return res, fmt.Errorf("error decoding resp.Body: %w", err)
	}

	for _, r := range data.SMSMessageData.Recipients {
		ok := r.Status == "Success"
		if ok {
			res.Sent++
		}
		res.Recipients = append(res.Recipients, RecipientStatus{Number: r.Number, Status: r.Status, Success: ok})
	}
	res.Failed = len(recipients) - res.Sent
	return res, nil
}
