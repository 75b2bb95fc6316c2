// Package ssrs publishes report definitions to SQL Server Reporting Services
// over the ReportService2010 SOAP endpoint and the v2.0 REST API.
package ssrs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/go-ntlmssp"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reports/pkg/retry"
)

// DefaultTimeout is the maximum time to wait for report server responses.
const DefaultTimeout = 30 * time.Second

const restAPIPath = "/reports/api/v2.0"

// Config holds report server endpoints and credentials.
type Config struct {
	SOAPURL    string // .../ReportServer/ReportService2010.asmx
	RESTURL    string // .../reports/api/v2.0; derived from SOAPURL when empty
	RenderBase string // .../ReportServer; derived from SOAPURL when empty
	Domain     string
	User       string
	Password   string
	Timeout    time.Duration
	Retry      *retry.Config
}

// Client talks to one report server. When a user is configured, requests
// authenticate with NTLM.
type Client struct {
	httpClient *http.Client
	soapURL    string
	restURL    string
	renderBase string
	username   string
	password   string
	retry      *retry.Config
	logger     *zap.Logger
}

// NewClient creates a report server client.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SOAPURL == "" {
		return nil, fmt.Errorf("SOAP URL is required")
	}
	soap, err := url.Parse(cfg.SOAPURL)
	if err != nil || soap.Scheme == "" || soap.Host == "" {
		return nil, fmt.Errorf("invalid SOAP URL %q", cfg.SOAPURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var transport http.RoundTripper = http.DefaultTransport.(*http.Transport).Clone()
	username := cfg.User
	if username != "" {
		transport = ntlmssp.Negotiator{RoundTripper: transport}
		if cfg.Domain != "" && !strings.Contains(username, `\`) {
			username = cfg.Domain + `\` + username
		}
	}

	c := &Client{
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		soapURL:    cfg.SOAPURL,
		restURL:    strings.TrimRight(cfg.RESTURL, "/"),
		renderBase: strings.TrimRight(cfg.RenderBase, "/"),
		username:   username,
		password:   cfg.Password,
		retry:      cfg.Retry,
		logger:     logger.Named("ssrs"),
	}
	if c.restURL == "" {
		c.restURL = soap.Scheme + "://" + soap.Host + restAPIPath
	}
	if c.renderBase == "" {
		base := *soap
		base.Path = strings.TrimSuffix(base.Path, "/ReportService2010.asmx")
		base.RawQuery = ""
		c.renderBase = strings.TrimRight(base.String(), "/")
	}
	return c, nil
}

// RenderBase returns the URL-access base used for render links.
func (c *Client) RenderBase() string {
	return c.renderBase
}

// HTTPError is a non-success response that carried no SOAP fault.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("report server returned status %d: %s", e.StatusCode, e.Body)
}

// IsRetryable reports whether the status is transient.
func (e *HTTPError) IsRetryable() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// do sends a request with credentials attached and returns the status and body.
func (c *Client) do(ctx context.Context, method, endpoint, contentType string, body []byte, header http.Header) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to call report server: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}
