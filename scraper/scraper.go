// Package scraper handles authenticating against the 1557 portal and parsing its pages.
package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"kyiv1557-notifier/pkg/notifier"
)

const (
	// DefaultBaseURL is the public portal address.
	DefaultBaseURL = "https://1557.kyiv.ua"

	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
)

// Options configures a portal client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Client talks to the portal on behalf of one account.
// It owns its HTTP client and cookie jar for the duration of one run.
type Client struct {
	http    *resty.Client
	jar     http.CookieJar
	baseURL *url.URL
	logger  *slog.Logger
}

// New creates a portal client. Call Close when the run is done.
func New(opts Options, logger *slog.Logger) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}

	baseURL, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	client := resty.New()
	client.SetBaseURL(baseURL.String())
	client.SetCookieJar(jar)
	client.SetTimeout(opts.Timeout)
	client.SetHeader("User-Agent", opts.UserAgent)
	client.SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseURL.Hostname()))

	return &Client{
		http:    client,
		jar:     jar,
		baseURL: baseURL,
		logger:  logger,
	}, nil
}

// Close releases idle connections held by the client.
func (c *Client) Close() {
	c.http.GetClient().CloseIdleConnections()
}

// Login posts the phone, follows the redirect, then posts the password.
// It starts from an empty cookie jar so the resulting session holds only
// cookies issued by this login.
func (c *Client) Login(ctx context.Context, phone, password string) (*notifier.Snapshot, error) {
	c.logger.Info("Logging in to portal", "base_url", c.baseURL.String())

	if err := c.resetCookies(); err != nil {
		return nil, err
	}

	res, err := c.post(ctx, "/login", map[string]string{"phone": phone}, "login_phone")
	if err != nil {
		return nil, err
	}
	if !res.IsSuccess() {
		return nil, &AuthError{Step: "phone", StatusCode: res.StatusCode(), Body: bodyContext(res.Body())}
	}

	passwordURL := res.RawResponse.Request.URL.String()
	res, err = c.post(ctx, passwordURL, map[string]string{"pass": password}, "login_password")
	if err != nil {
		return nil, err
	}
	if !res.IsSuccess() {
		return nil, &AuthError{Step: "password", StatusCode: res.StatusCode(), Body: bodyContext(res.Body())}
	}

	return c.parse(res)
}

// RestoreSession loads saved cookies and fetches the main page.
// A nil snapshot with a nil error means the session has expired.
func (c *Client) RestoreSession(ctx context.Context, session notifier.Session) (*notifier.Snapshot, error) {
	cookies := make([]*http.Cookie, 0, len(session))
	for name, value := range session {
		cookies = append(cookies, &http.Cookie{Name: name, Value: value, Path: "/"})
	}
	c.jar.SetCookies(c.baseURL, cookies)

	res, err := c.request(ctx, http.MethodGet, "/", nil, "restore_session")
	if err != nil {
		return nil, err
	}

	switch {
	case res.StatusCode() == http.StatusUnauthorized || res.StatusCode() == http.StatusForbidden:
		c.logger.Info("Saved session rejected", "status_code", res.StatusCode())
		return nil, nil
	case !res.IsSuccess():
		return nil, requestError(res)
	}

	snap, err := c.parse(res)
	if err != nil {
		return nil, err
	}
	if snap.CurrentAddress == nil {
		c.logger.Info("Saved session expired, no address on page")
		return nil, nil
	}
	return snap, nil
}

// SelectAddress switches the active address server-side.
func (c *Client) SelectAddress(ctx context.Context, address notifier.Address) (*notifier.Snapshot, error) {
	c.logger.Info("Selecting address", "address_id", address.ID)

	res, err := c.post(ctx, "/", map[string]string{"main-address": address.ID}, "select_address")
	if err != nil {
		return nil, err
	}
	if !res.IsSuccess() {
		return nil, requestError(res)
	}
	return c.parse(res)
}

func (c *Client) resetCookies() error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("create cookie jar: %w", err)
	}
	c.jar = jar
	c.http.SetCookieJar(jar)
	return nil
}

// Session returns the cookies currently held for the portal.
func (c *Client) Session() notifier.Session {
	session := notifier.Session{}
	for _, cookie := range c.jar.Cookies(c.baseURL) {
		session[cookie.Name] = cookie.Value
	}
	return session
}

func (c *Client) post(ctx context.Context, target string, form map[string]string, purpose string) (*resty.Response, error) {
	return c.request(ctx, http.MethodPost, target, form, purpose)
}

func (c *Client) request(ctx context.Context, method, target string, form map[string]string, purpose string) (*resty.Response, error) {
	c.logger.Info("HTTP request starting", "method", method, "url", target, "purpose", purpose)

	req := c.http.R().SetContext(ctx)
	if form != nil {
		req.SetFormData(form)
	}

	startTime := time.Now()
	res, err := req.Execute(method, target)
	duration := time.Since(startTime)

	if err != nil {
		c.logger.Warn("HTTP request failed",
			"url", target,
			"duration_ms", duration.Milliseconds(),
			"error", err)
		return nil, &RequestError{URL: target, Err: err}
	}

	c.logger.Info("HTTP request completed",
		"url", target,
		"final_url", res.RawResponse.Request.URL.String(),
		"status_code", res.StatusCode(),
		"duration_ms", duration.Milliseconds(),
		"content_length", len(res.Body()))

	return res, nil
}

func (c *Client) parse(res *resty.Response) (*notifier.Snapshot, error) {
	snap, err := Parse(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, err
	}

	c.logger.Info("Portal page parsed",
		"url", res.RawResponse.Request.URL.String(),
		"addresses", len(snap.Addresses),
		"has_current_address", snap.CurrentAddress != nil,
		"has_messages", snap.HasMessages(),
		"messages", len(snap.Messages))

	return snap, nil
}

func requestError(res *resty.Response) error {
	return &RequestError{
		URL:        res.Request.URL,
		StatusCode: res.StatusCode(),
		Body:       bodyContext(res.Body()),
	}
}
