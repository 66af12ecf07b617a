// Package graph implements an Adapter that sends messages via the Microsoft
// Graph API.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/shineum/mailkit/adapter"
	"github.com/shineum/mailkit/email"
)

// maxRetries is the maximum number of retry attempts for transient failures.
const maxRetries = 3

// baseRetryDelay is the initial delay for exponential backoff.
const baseRetryDelay = 1 * time.Second

const graphScope = "https://graph.microsoft.com/.default"

// Config holds the configuration for creating an Adapter.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	// Sender is the mailbox the message is sent from.
	Sender          string
	SaveToSentItems bool
	Logger          *slog.Logger
}

// Adapter sends messages via the Graph sendMail endpoint using OAuth2
// client credentials.
type Adapter struct {
	sender          string
	graphURL        string
	saveToSentItems bool
	httpClient      *http.Client
	logger          *slog.Logger
	baseDelay       time.Duration

	credentials *clientcredentials.Config
	tokenCtx    context.Context

	mu     sync.Mutex
	tokens oauth2.TokenSource
}

// New creates an Adapter for the tenant and sender in cfg.
func New(cfg Config) *Adapter {
	tokenURL := fmt.Sprintf(
		"https://login.microsoftonline.com/%s/oauth2/v2.0/token",
		url.PathEscape(cfg.TenantID),
	)
	graphURL := fmt.Sprintf(
		"https://graph.microsoft.com/v1.0/users/%s/sendMail",
		url.PathEscape(cfg.Sender),
	)
	return newWithOverrides(cfg, graphURL, tokenURL, &http.Client{Timeout: 30 * time.Second})
}

// newWithOverrides creates an Adapter with custom URLs and HTTP client.
func newWithOverrides(cfg Config, graphURL, tokenURL string, client *http.Client) *Adapter {
	credentials := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{graphScope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, client)

	return &Adapter{
		sender:          cfg.Sender,
		graphURL:        graphURL,
		saveToSentItems: cfg.SaveToSentItems,
		httpClient:      client,
		logger:          adapter.Logger(cfg.Logger),
		baseDelay:       baseRetryDelay,
		credentials:     credentials,
		tokenCtx:        tokenCtx,
		tokens:          credentials.TokenSource(tokenCtx),
	}
}

// Send reports whether Graph accepted msg.
func (a *Adapter) Send(ctx context.Context, msg *email.Message) bool {
	return adapter.Report(a.logger, a.Name(), a.Deliver(ctx, msg))
}

// Deliver sends msg via the Graph API.
// It retries transient failures with exponential backoff, honors Retry-After
// on HTTP 429 and refreshes the token once on HTTP 401.
func (a *Adapter) Deliver(ctx context.Context, msg *email.Message) error {
	if !adapter.HasTo(msg) {
		return adapter.ErrNoRecipients
	}

	bodyJSON, err := json.Marshal(buildSendMailRequest(msg, a.saveToSentItems))
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	var lastErr error
	tokenRefreshed := false

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			a.logger.Debug("retrying Graph API request",
				"attempt", attempt,
				"max_retries", maxRetries,
			)
		}

		err := a.doSendRequest(ctx, bodyJSON)
		if err == nil {
			return nil
		}

		lastErr = err

		var graphErr *sendError
		if !errors.As(err, &graphErr) {
			return err
		}

		switch {
		case graphErr.permanent:
			return graphErr
		case graphErr.statusCode == http.StatusUnauthorized && !tokenRefreshed:
			a.logger.Info("refreshing Graph API token after 401")
			if refreshErr := a.refreshToken(); refreshErr != nil {
				return fmt.Errorf("token refresh failed: %w", refreshErr)
			}
			tokenRefreshed = true
			continue
		case graphErr.statusCode == http.StatusTooManyRequests:
			delay := a.retryAfterDelay(graphErr.retryAfter, attempt)
			a.logger.Info("rate limited by Graph API",
				"retry_after", delay,
			)
			if err := sleepWithContext(ctx, delay); err != nil {
				return fmt.Errorf("context cancelled during retry wait: %w", err)
			}
			continue
		case graphErr.transient:
			delay := a.backoffDelay(attempt)
			a.logger.Info("transient Graph API error, retrying",
				"status", graphErr.statusCode,
				"delay", delay,
			)
			if err := sleepWithContext(ctx, delay); err != nil {
				return fmt.Errorf("context cancelled during retry wait: %w", err)
			}
			continue
		default:
			return graphErr
		}
	}

	return fmt.Errorf("Graph API request failed after %d retries: %w", maxRetries, lastErr)
}

// Driver returns the HTTP client used for Graph and token requests.
func (a *Adapter) Driver() any {
	return a.httpClient
}

// Name returns the adapter name.
func (a *Adapter) Name() string {
	return "msgraph"
}

func (a *Adapter) token() (*oauth2.Token, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tokens.Token()
}

// refreshToken discards the cached token and fetches a new one.
func (a *Adapter) refreshToken() error {
	tok, err := a.credentials.Token(a.tokenCtx)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.tokens = oauth2.ReuseTokenSource(tok, a.credentials.TokenSource(a.tokenCtx))
	a.mu.Unlock()
	return nil
}

// doSendRequest performs a single HTTP request to the Graph API sendMail endpoint.
func (a *Adapter) doSendRequest(ctx context.Context, bodyJSON []byte) error {
	tok, err := a.token()
	if err != nil {
		return fmt.Errorf("failed to get access token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.graphURL, bytes.NewReader(bodyJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	tok.SetAuthHeader(req)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return &sendError{
			message:   fmt.Sprintf("HTTP request failed: %v", err),
			transient: true,
		}
	}
	defer resp.Body.Close()

	// HTTP 202 Accepted is success for sendMail
	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK {
		return nil
	}

	body, _ := io.ReadAll(resp.Body)

	var graphErrResp graphErrorResponse
	if jsonErr := json.Unmarshal(body, &graphErrResp); jsonErr == nil && graphErrResp.Error.Message != "" {
		return classifyError(resp.StatusCode, graphErrResp.Error.Message, resp.Header.Get("Retry-After"))
	}

	return classifyError(resp.StatusCode, string(body), resp.Header.Get("Retry-After"))
}

// sendError represents an error from the Graph API send operation with
// classification for retry logic.
type sendError struct {
	message    string
	statusCode int
	permanent  bool
	transient  bool
	retryAfter string
}

func (e *sendError) Error() string {
	return fmt.Sprintf("Graph API error (HTTP %d): %s", e.statusCode, e.message)
}

// classifyError categorizes an HTTP error response for retry decisions.
func classifyError(statusCode int, message, retryAfter string) *sendError {
	err := &sendError{
		message:    message,
		statusCode: statusCode,
		retryAfter: retryAfter,
	}

	switch {
	case statusCode == http.StatusBadRequest || statusCode == http.StatusForbidden:
		err.permanent = true
	case statusCode == http.StatusUnauthorized,
		statusCode == http.StatusTooManyRequests,
		statusCode >= 500:
		err.transient = true
	default:
		err.permanent = true
	}

	return err
}

// retryAfterDelay parses the Retry-After header value, falling back to
// exponential backoff when it is missing or unparseable.
func (a *Adapter) retryAfterDelay(retryAfter string, attempt int) time.Duration {
	seconds, err := strconv.Atoi(retryAfter)
	if err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return a.backoffDelay(attempt)
}

// backoffDelay returns the exponential backoff delay for the given attempt number.
func (a *Adapter) backoffDelay(attempt int) time.Duration {
	delay := a.baseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// sleepWithContext waits for the specified duration or until the context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
