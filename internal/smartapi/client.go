package smartapi

import (
	"net/http"
	"sync"
)

const defaultBaseURL = "https://apiconnect.angelone.in"

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=smartapi_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Tokens are the credentials issued by a successful login.
type Tokens struct {
	JWT     string
	Refresh string
	Feed    string
}

// Client is a client for the Angel One SmartAPI REST interface. A Client is
// bound to one API key; after Login (or SetTokens) it also carries the
// account's session tokens. It is safe for concurrent use.
type Client struct {
	// apiKey is sent as X-PrivateKey on every request.
	apiKey string
	// baseURL is the base URL for the API.
	baseURL string
	// httpClient is the HTTP client.
	httpClient HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header

	mu     sync.RWMutex
	tokens Tokens
}

// Option is a configuration option for the SmartAPI client.
type Option func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) Option {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// WithClientInfo sets the client identification headers SmartAPI requires.
func WithClientInfo(localIP, publicIP, macAddress string) Option {
	return func(c *Client) {
		c.header.Set("X-ClientLocalIP", localIP)
		c.header.Set("X-ClientPublicIP", publicIP)
		c.header.Set("X-MACAddress", macAddress)
	}
}

// NewClient creates a new SmartAPI client for apiKey.
func NewClient(apiKey string, options ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
	}
	c.header.Set("Content-Type", "application/json")
	c.header.Set("Accept", "application/json")
	c.header.Set("X-UserType", "USER")
	c.header.Set("X-SourceID", "WEB")
	c.header.Set("X-ClientLocalIP", "127.0.0.1")
	c.header.Set("X-ClientPublicIP", "127.0.0.1")
	c.header.Set("X-MACAddress", "00:00:00:00:00:00")
	for _, option := range options {
		option(c)
	}
	return c
}

// SetTokens binds previously issued session tokens to the client.
func (c *Client) SetTokens(t Tokens) {
	c.mu.Lock()
	c.tokens = t
	c.mu.Unlock()
}

// Tokens returns the session tokens currently bound to the client.
func (c *Client) Tokens() Tokens {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens
}
