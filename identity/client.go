package identity

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
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultCollection = "users"
	defaultTimeout    = 10 * time.Second
	defaultUserAgent  = "authsession/1"

	maxResponseBytes = 1 << 20

	opAuthenticate  = "authenticate"
	opCreateAccount = "create_account"
	opInvalidate    = "invalidate"
)

// Uniqueness codes reported on data.email by PocketBase releases.
var emailTakenCodes = map[string]struct{}{
	"validation_not_unique": {},
	"validation.unique":     {},
}

// Config describes how to reach the identity service. Timeout belongs to the
// transport: any request exceeding it surfaces as ErrServiceUnavailable.
type Config struct {
	BaseURL    string
	Collection string
	// RevokePath is the optional token-revocation endpoint, relative to BaseURL.
	// Empty disables server-side revocation.
	RevokePath string
	Timeout    time.Duration
	UserAgent  string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Account is a successful authentication: a bearer token and the user record the
// service returned with it.
type Account struct {
	Token  string
	Record map[string]any
}

// Client talks to the identity service. It is safe for concurrent use.
type Client struct {
	base       *url.URL
	collection string
	revokePath string
	userAgent  string
	http       *http.Client
	logger     *slog.Logger
}

// NewClient validates cfg and builds a Client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("identity base URL required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse identity base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported identity URL scheme %q", base.Scheme)
	}
	if base.Host == "" {
		return nil, errors.New("identity base URL has no host")
	}
	if cfg.Collection == "" {
		cfg.Collection = defaultCollection
	}
	if cfg.Timeout < 0 {
		return nil, errors.New("identity timeout must be >= 0")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		base:       base,
		collection: cfg.Collection,
		revokePath: strings.TrimSpace(cfg.RevokePath),
		userAgent:  cfg.UserAgent,
		http:       cfg.HTTPClient,
		logger:     cfg.Logger,
	}, nil
}

type authRequest struct {
	Identity string `json:"identity"`
	Password string `json:"password"`
}

type authResponse struct {
	Token  string         `json:"token"`
	Record map[string]any `json:"record"`
}

type registerRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

type fieldError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiError struct {
	Message string                `json:"message"`
	Data    map[string]fieldError `json:"data"`
}

// Authenticate exchanges an email/password pair for a token and user record.
func (c *Client) Authenticate(ctx context.Context, email, password string) (Account, error) {
	var out authResponse
	status, apiErr, err := c.post(ctx, opAuthenticate,
		c.base.JoinPath("api", "collections", c.collection, "auth-with-password"),
		authRequest{Identity: email, Password: password}, "", &out)
	if err != nil {
		return Account{}, err
	}
	if apiErr != nil {
		return Account{}, classifyAuthError(status, apiErr)
	}
	if out.Token == "" || len(out.Record) == 0 {
		return Account{}, unavailable(opAuthenticate, errors.New("response missing token or record"))
	}
	return Account{Token: out.Token, Record: out.Record}, nil
}

// CreateAccount registers a new account and then authenticates with the same
// credentials, since registration alone does not yield a session.
func (c *Client) CreateAccount(ctx context.Context, email, password, passwordConfirm string) (Account, error) {
	status, apiErr, err := c.post(ctx, opCreateAccount,
		c.base.JoinPath("api", "collections", c.collection, "records"),
		registerRequest{Email: email, Password: password, PasswordConfirm: passwordConfirm}, "", nil)
	if err != nil {
		return Account{}, err
	}
	if apiErr != nil {
		return Account{}, classifyRegisterError(status, apiErr)
	}
	return c.Authenticate(ctx, email, password)
}

// Invalidate asks the service to revoke token. It is best-effort: failures are
// logged and never returned, because local logout must always succeed.
func (c *Client) Invalidate(ctx context.Context, token string) {
	if c.revokePath == "" || token == "" {
		return
	}
	status, apiErr, err := c.post(ctx, opInvalidate, c.base.JoinPath(c.revokePath), nil, token, nil)
	switch {
	case err != nil:
		c.logger.WarnContext(ctx, "token revocation failed", "error", err)
	case apiErr != nil:
		c.logger.WarnContext(ctx, "token revocation rejected", "status", status, "message", apiErr.Message)
	}
}

// post sends a JSON POST. Transport and decoding failures come back as err; a
// non-2xx reply comes back as (status, apiErr, nil) for the caller to classify.
func (c *Client) post(ctx context.Context, op string, endpoint *url.URL, payload any, bearer string, out any) (int, *apiError, error) {
	var body io.Reader = http.NoBody
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, unavailable(op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), body)
	if err != nil {
		return 0, nil, unavailable(op, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-Id", requestID)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.DebugContext(ctx, "identity request failed", "op", op, "request_id", requestID, "error", err)
		return 0, nil, unavailable(op, err)
	}
	defer resp.Body.Close()

	c.logger.DebugContext(ctx, "identity request",
		"op", op,
		"request_id", requestID,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, unavailable(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &apiError{}
		// Error bodies are advisory; a non-JSON body still classifies by status.
		_ = json.Unmarshal(raw, apiErr)
		return resp.StatusCode, apiErr, nil
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return 0, nil, unavailable(op, fmt.Errorf("decode response: %w", err))
		}
	}
	return resp.StatusCode, nil, nil
}

func classifyAuthError(status int, apiErr *apiError) error {
	kind := ErrServiceUnavailable
	switch status {
	case http.StatusBadRequest:
		kind = ErrInvalidCredentials
	case http.StatusNotFound:
		kind = ErrAccountNotFound
	}
	return &ServiceError{
		Kind:    kind,
		Op:      opAuthenticate,
		Status:  status,
		Message: apiErr.Message,
	}
}

func classifyRegisterError(status int, apiErr *apiError) error {
	se := &ServiceError{
		Kind:    ErrServiceUnavailable,
		Op:      opCreateAccount,
		Status:  status,
		Message: apiErr.Message,
	}
	if field, ok := apiErr.Data["email"]; ok {
		if _, taken := emailTakenCodes[field.Code]; taken {
			se.Kind = ErrEmailTaken
			se.Code = field.Code
			return se
		}
	}
	if status == http.StatusBadRequest {
		se.Kind = ErrInvalidRegistration
		se.Code = firstFieldCode(apiErr.Data)
	}
	return se
}

func firstFieldCode(data map[string]fieldError) string {
	// Deterministic pick for error messages: smallest field name wins.
	var name, code string
	for k, v := range data {
		if name == "" || k < name {
			name, code = k, v.Code
		}
	}
	if name == "" {
		return ""
	}
	return name + ":" + code
}
