// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/parley-chat/parley/lib/netutil"
	"github.com/parley-chat/parley/lib/ref"
	"github.com/parley-chat/parley/lib/secret"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// HomeserverURL is the base URL of the homeserver
	// (e.g., "https://matrix.example.org"). Required.
	HomeserverURL string

	// HTTPClient is the HTTP client for all requests. Defaults to a
	// client with no global timeout — /sync long-polls for tens of
	// seconds, so per-request deadlines come from the context instead.
	HTTPClient *http.Client

	// Logger receives client activity logs. Defaults to a discard logger.
	Logger *slog.Logger
}

// Client is an unauthenticated connection to a Matrix homeserver. It
// performs login and produces authenticated [DirectSession] values, and
// holds the HTTP transport shared by every session derived from it.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Matrix client for the given homeserver.
func NewClient(config ClientConfig) (*Client, error) {
	if config.HomeserverURL == "" {
		return nil, fmt.Errorf("messaging: homeserver URL is required")
	}
	parsed, err := url.Parse(config.HomeserverURL)
	if err != nil {
		return nil, fmt.Errorf("messaging: invalid homeserver URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("messaging: homeserver URL must be http or https, got %q", config.HomeserverURL)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("messaging: homeserver URL missing host: %q", config.HomeserverURL)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Client{
		baseURL:    trimTrailingSlash(config.HomeserverURL),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

func trimTrailingSlash(u string) string {
	for len(u) > 0 && u[len(u)-1] == '/' {
		u = u[:len(u)-1]
	}
	return u
}

// CloseIdleConnections closes idle HTTP connections held by the
// underlying transport.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// ServerVersions fetches the client-server API versions the homeserver
// supports. Useful as a connectivity probe before login.
func (c *Client) ServerVersions(ctx context.Context) (*ServerVersionsResponse, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/_matrix/client/versions", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: fetching server versions: %w", err)
	}
	var versions ServerVersionsResponse
	if err := json.Unmarshal(body, &versions); err != nil {
		return nil, fmt.Errorf("messaging: parsing server versions: %w", err)
	}
	return &versions, nil
}

// Login authenticates with a username and password and returns an
// authenticated session. username may be a bare localpart or a
// fully-qualified user ID. deviceID, when non-zero, asks the server to
// reuse an existing device rather than mint a new one.
//
// The caller retains ownership of password; Login reads it at the JSON
// serialization boundary and does not close it.
func (c *Client) Login(ctx context.Context, username string, password *secret.Buffer, deviceID ref.DeviceID) (*DirectSession, error) {
	if username == "" {
		return nil, fmt.Errorf("messaging: login requires a username")
	}
	if password == nil {
		return nil, fmt.Errorf("messaging: login requires a password")
	}

	loginRequest := LoginRequest{
		Type: "m.login.password",
		Identifier: LoginIdentifier{
			Type: "m.id.user",
			User: username,
		},
		Password:                 password.String(),
		DeviceID:                 deviceID.String(),
		InitialDeviceDisplayName: "parley",
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/login", nil, loginRequest)
	if err != nil {
		return nil, fmt.Errorf("messaging: login failed: %w", err)
	}

	var authResponse AuthResponse
	if err := json.Unmarshal(body, &authResponse); err != nil {
		return nil, fmt.Errorf("messaging: parsing login response: %w", err)
	}

	c.logger.Info("logged in",
		"user_id", authResponse.UserID,
		"device_id", authResponse.DeviceID,
	)

	return c.sessionFromAuth(&authResponse)
}

// SessionFromToken creates a session from a previously saved access
// token. The token is moved into mmap-backed memory (locked against
// swap, excluded from core dumps); the original string remains on the
// heap briefly until collected.
//
// The token is not validated — the first API call fails if it has been
// revoked. The caller must Close the returned session when done.
func (c *Client) SessionFromToken(userID ref.UserID, deviceID ref.DeviceID, accessToken string) (*DirectSession, error) {
	if userID.IsZero() {
		return nil, fmt.Errorf("messaging: session requires a user ID")
	}
	tokenBuffer, err := secret.NewFromBytes([]byte(accessToken))
	if err != nil {
		return nil, fmt.Errorf("messaging: protecting access token: %w", err)
	}
	return &DirectSession{
		client:      c,
		accessToken: tokenBuffer,
		userID:      userID,
		deviceID:    deviceID,
	}, nil
}

func (c *Client) sessionFromAuth(auth *AuthResponse) (*DirectSession, error) {
	tokenBuffer, err := secret.NewFromBytes([]byte(auth.AccessToken))
	if err != nil {
		return nil, fmt.Errorf("messaging: protecting access token: %w", err)
	}
	return &DirectSession{
		client:      c,
		accessToken: tokenBuffer,
		userID:      auth.UserID,
		deviceID:    auth.DeviceID,
	}, nil
}

// doRequest performs an HTTP request to the homeserver and returns the
// response body. On 2xx, returns the body. On 4xx/5xx, returns a
// *MatrixError. accessToken may be nil for unauthenticated endpoints.
// query may be omitted for endpoints without query parameters.
//
// Request URLs are built by string concatenation rather than url.URL to
// avoid double-encoding path segments that already contain URL-encoded
// characters (room IDs and aliases).
func (c *Client) doRequest(ctx context.Context, method, path string, accessToken *secret.Buffer, requestBody any, query ...url.Values) ([]byte, error) {
	requestURL := c.baseURL + path
	if len(query) > 0 && query[0] != nil {
		requestURL += "?" + query[0].Encode()
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("messaging: encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("messaging: creating request: %w", err)
	}

	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if accessToken != nil {
		request.Header.Set("Authorization", "Bearer "+accessToken.String())
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("messaging: request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, fmt.Errorf("messaging: reading response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}
	return nil, matrixErrorFromResponse(method, path, response.StatusCode, responseBody)
}

// doRequestRaw performs an HTTP request with a raw, non-JSON body
// (media upload).
func (c *Client) doRequestRaw(ctx context.Context, method, path string, accessToken *secret.Buffer, contentType string, body io.Reader, query ...url.Values) ([]byte, error) {
	requestURL := c.baseURL + path
	if len(query) > 0 && query[0] != nil {
		requestURL += "?" + query[0].Encode()
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, body)
	if err != nil {
		return nil, fmt.Errorf("messaging: creating request: %w", err)
	}

	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	if accessToken != nil {
		request.Header.Set("Authorization", "Bearer "+accessToken.String())
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("messaging: request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, fmt.Errorf("messaging: reading response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}
	return nil, matrixErrorFromResponse(method, path, response.StatusCode, responseBody)
}

// doRequestStream performs a GET whose response body the caller streams
// (media download). On 2xx the caller owns response.Body and must close
// it. On 4xx/5xx the body is consumed and a *MatrixError returned.
func (c *Client) doRequestStream(ctx context.Context, path string, accessToken *secret.Buffer) (*http.Response, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: creating request: %w", err)
	}
	if accessToken != nil {
		request.Header.Set("Authorization", "Bearer "+accessToken.String())
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("messaging: request to GET %s failed: %w", path, err)
	}
	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return response, nil
	}

	responseBody, readErr := netutil.ReadResponse(response.Body)
	response.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("messaging: reading error response: %w", readErr)
	}
	return nil, matrixErrorFromResponse(http.MethodGet, path, response.StatusCode, responseBody)
}

// matrixErrorFromResponse parses a non-2xx response body into a
// *MatrixError. All Matrix error responses share the same JSON shape; a
// non-JSON body (misconfigured reverse proxy, HTML error page) fails
// loud with the raw body.
func matrixErrorFromResponse(method, path string, statusCode int, body []byte) error {
	var matrixErr MatrixError
	if jsonErr := json.Unmarshal(body, &matrixErr); jsonErr != nil || matrixErr.Code == "" {
		return fmt.Errorf("messaging: unexpected %d response from %s %s: %s",
			statusCode, method, path, string(body))
	}
	matrixErr.StatusCode = statusCode
	return &matrixErr
}
