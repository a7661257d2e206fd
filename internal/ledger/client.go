// Package ledger talks to the bridge service that owns the proposal
// contract and the consensus topics.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

var ErrNotFound = errors.New("proposal not found")

const defaultTimeout = 30 * time.Second

type Options struct {
	BaseURL string
	Network string
	// Client credentials for bridges behind an OAuth2 gateway. All three
	// must be set to enable token auth.
	ClientID     string
	ClientSecret string
	TokenURL     string
	Timeout      time.Duration
}

type Client struct {
	baseURL string
	network string
	http    *http.Client
	logger  *zap.Logger
	now     func() time.Time
}

func NewClient(opts Options, logger *zap.Logger) *Client {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	network := opts.Network
	if network == "" {
		network = "testnet"
	}

	httpClient := &http.Client{Timeout: timeout}
	if opts.ClientID != "" && opts.ClientSecret != "" && opts.TokenURL != "" {
		cc := &clientcredentials.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			TokenURL:     opts.TokenURL,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: timeout})
		httpClient = cc.Client(ctx)
		httpClient.Timeout = timeout
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		network: network,
		http:    httpClient,
		logger:  logger.Named("ledger"),
		now:     time.Now,
	}
}

// Network is the ledger network name used in explorer links.
func (c *Client) Network() string {
	return c.network
}

// ExplorerURL links a transaction on the public explorer.
func (c *Client) ExplorerURL(txID string) string {
	return fmt.Sprintf("https://hashscan.io/%s/transaction/%s", c.network, txID)
}

// IsConnected reports whether the bridge answers its health check.
func (c *Client) IsConnected(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("ledger bridge unreachable", zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// envelope is the common shape of bridge responses.
type envelope struct {
	Success       bool   `json:"success"`
	Error         string `json:"error"`
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
}

// Result is the outcome of any state-changing bridge call. Success false
// with a nil error means the bridge answered and refused.
type Result struct {
	Success       bool   `json:"success"`
	ProposalID    int64  `json:"proposalId,omitempty"`
	TransactionID string `json:"transactionHash,omitempty"`
	Status        string `json:"status,omitempty"`
	ExplorerURL   string `json:"explorerUrl,omitempty"`
	Error         string `json:"error,omitempty"`
}

func (c *Client) result(env envelope) Result {
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = "Unknown error"
		}
		return Result{Error: msg}
	}
	r := Result{
		Success:       true,
		TransactionID: env.TransactionID,
		Status:        env.Status,
	}
	if env.TransactionID != "" {
		r.ExplorerURL = c.ExplorerURL(env.TransactionID)
	}
	return r
}

// do sends in as JSON (when non-nil) and decodes the response into out.
// 404 maps to ErrNotFound; other non-2xx statuses are errors.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ledger bridge returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode ledger response: %w", err)
	}
	return nil
}
