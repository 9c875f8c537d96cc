package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/chatgate/internal/domain/chat"
	"github.com/GriffinCanCode/chatgate/internal/domain/pool"
	"github.com/GriffinCanCode/chatgate/internal/infrastructure/config"
	"github.com/GriffinCanCode/chatgate/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/chatgate/internal/providers/browser/sandbox"
	"github.com/GriffinCanCode/chatgate/internal/providers/http/client"
	"github.com/GriffinCanCode/chatgate/internal/shared/id"
)

var (
	ErrNotWarmed     = errors.New("session is not warmed")
	ErrTokenNotFound = errors.New("session token not found on page")
)

// Options holds the collaborators every driver shares
type Options struct {
	Profile config.SiteProfile
	// Breaker guards raw HTTP calls to the site. It must not be the breaker
	// the pool wraps warm-ups in.
	Breaker *resilience.Breaker
	Scripts *sandbox.Pool
	Timeout time.Duration
	RPS     float64
	Logger  *zap.Logger
}

// Driver is one automated browsing context against the target site. It keeps
// its own cookie jar, client identifier and anti-automation token.
type Driver struct {
	sessionID id.SessionID
	profile   config.SiteProfile
	http      *client.Client
	scripts   *sandbox.Pool
	logger    *zap.Logger

	mu       sync.Mutex
	warmed   bool
	clientID string
	token    string
	page     *page
}

// NewFactory returns a pool.DriverFactory building drivers from opts
func NewFactory(opts Options) pool.DriverFactory {
	return func(sessionID id.SessionID) pool.Driver {
		return New(sessionID, opts)
	}
}

// New creates a cold driver for one session
func New(sessionID id.SessionID, opts Options) *Driver {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	http := client.New(client.Config{
		BaseURL:   opts.Profile.BaseURL,
		UserAgent: opts.Profile.UserAgent,
		Timeout:   opts.Timeout,
		Retries:   2,
		RPS:       opts.RPS,
		Breaker:   opts.Breaker,
	})
	for k, v := range navigationHeaders {
		http.SetHeader(k, v)
	}

	return &Driver{
		sessionID: sessionID,
		profile:   opts.Profile,
		http:      http,
		scripts:   opts.Scripts,
		logger:    logger.With(zap.String("session_id", sessionID.String())),
	}
}

// Warm loads the home page with a fresh identity and resolves the session
// token. A warmed driver returns immediately.
func (d *Driver) Warm(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.warmed {
		return nil
	}

	d.http.ResetCookies()
	clientID := uuid.NewString()

	resp, err := d.http.Execute(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.Get(d.profile.HomePath)
	})
	if err != nil {
		return d.upstream(ctx, "site home page unreachable", err)
	}
	if resp.IsError() {
		return chat.Unavailable("site home page unavailable", fmt.Errorf("status %s", resp.Status()))
	}

	pageURL := resp.Request.URL
	if resp.RawResponse != nil && resp.RawResponse.Request != nil {
		pageURL = resp.RawResponse.Request.URL.String()
	}
	p, err := parsePage(resp.Body(), resp.Header().Get("Content-Type"), pageURL)
	if err != nil {
		return chat.Unavailable("site home page unreadable", err)
	}

	token, err := d.resolveToken(ctx, p)
	if err != nil {
		return d.upstream(ctx, "session token unavailable", err)
	}

	d.clientID = clientID
	d.token = token
	d.page = p
	d.warmed = true
	d.logger.Debug("Session warmed",
		zap.Int("hidden_fields", len(p.hidden)),
		zap.Bool("token", token != ""))
	return nil
}

// resolveToken prefers a token rendered into an input and falls back to
// evaluating the inline token script.
func (d *Driver) resolveToken(ctx context.Context, p *page) (string, error) {
	tok := d.profile.Token
	if tok.Input == "" && tok.Script == "" {
		return "", nil
	}
	if tok.Input != "" {
		if v := p.inputValue(tok.Input); v != "" {
			return v, nil
		}
	}
	if tok.Script == "" {
		return "", ErrTokenNotFound
	}

	src := p.scriptSource(tok.Script)
	if src == "" {
		return "", ErrTokenNotFound
	}
	if d.scripts == nil {
		return "", errors.New("no script sandbox configured")
	}

	result, err := d.scripts.Execute(ctx, src, sandbox.NewDOM(p.doc, p.url))
	if err != nil {
		return "", fmt.Errorf("token script: %w", err)
	}
	for _, entry := range result.Console {
		d.logger.Debug("Token script console", zap.String("level", entry.Level), zap.String("message", entry.Message))
	}
	if result.Value == nil {
		return "", ErrTokenNotFound
	}
	token := strings.TrimSpace(fmt.Sprint(result.Value))
	if token == "" {
		return "", ErrTokenNotFound
	}
	return token, nil
}

// Interact submits one prompt and returns the unprocessed reply
func (d *Driver) Interact(ctx context.Context, script chat.SiteScript) (chat.RawReply, error) {
	d.mu.Lock()
	if !d.warmed {
		d.mu.Unlock()
		return chat.RawReply{}, chat.Unavailable("session not ready", ErrNotWarmed)
	}
	form := d.formLocked(script)
	referer := d.page.url
	d.mu.Unlock()

	start := time.Now()
	resp, err := d.http.Execute(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.
			SetHeader("Referer", referer).
			SetHeader("Origin", strings.TrimRight(d.profile.BaseURL, "/")).
			SetHeader("X-Requested-With", "XMLHttpRequest").
			SetFormDataFromValues(form).
			Post(d.profile.ChatPath)
	})
	if err != nil {
		return chat.RawReply{}, d.upstream(ctx, "site interaction failed", err)
	}
	if resp.IsError() {
		return chat.RawReply{}, chat.Unavailable("site rejected the prompt", fmt.Errorf("status %s", resp.Status()))
	}

	d.logger.Debug("Site interaction finished",
		zap.Int("status", resp.StatusCode()),
		zap.Int("bytes", len(resp.Body())),
		zap.Duration("duration", time.Since(start)))

	return chat.RawReply{
		Body:        resp.Body(),
		ContentType: resp.Header().Get("Content-Type"),
		Status:      resp.StatusCode(),
	}, nil
}

func (d *Driver) formLocked(script chat.SiteScript) url.Values {
	fields := d.profile.Form
	form := url.Values{}
	for k, v := range d.page.hidden {
		form[k] = append([]string(nil), v...)
	}
	form.Set(fields.Prompt, script.Prompt)
	if fields.Model != "" && script.Model != "" {
		form.Set(fields.Model, script.Model)
	}
	if fields.Token != "" {
		form.Set(fields.Token, d.token)
	}
	if fields.Client != "" {
		form.Set(fields.Client, d.clientID)
	}
	return form
}

// Teardown drops the identity, token and page. Safe on a cold driver.
func (d *Driver) Teardown(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.warmed {
		d.logger.Debug("Session torn down")
	}
	d.warmed = false
	d.clientID = ""
	d.token = ""
	d.page = nil
	d.http.ResetCookies()
	return nil
}

// Warmed reports whether the driver holds a usable identity
func (d *Driver) Warmed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.warmed
}

// upstream wraps transport failures. Context errors pass through so the
// caller can tell a timeout or cancellation from a site failure.
func (d *Driver) upstream(ctx context.Context, msg string, err error) error {
	if ctx.Err() != nil {
		return err
	}
	return chat.Unavailable(msg, err)
}
