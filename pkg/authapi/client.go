package authapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/amiskov/authgate/pkg/autherr"
	"github.com/amiskov/authgate/pkg/logger"
	"github.com/amiskov/authgate/pkg/user"
)

const (
	loginPath    = "/api/auth/login"
	registerPath = "/api/auth/register"
	mePath       = "/api/auth/me"
	logoutPath   = "/api/auth/logout"
)

var errEmptyAuthResponse = errors.New("authapi: response has no token or user")

// Client talks to the remote authentication API.
type Client struct {
	client  *resty.Client
	timeout time.Duration
}

func New(addr string, timeout time.Duration) (*Client, error) {
	base := strings.TrimSpace(addr)
	if base == "" {
		return nil, errors.New("authapi: empty api address")
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(base, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &Client{
		client:  c,
		timeout: timeout,
	}, nil
}

func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Login exchanges credentials for an API token and the user profile.
func (c *Client) Login(ctx context.Context, email, password string) (string, *user.User, error) {
	return c.authenticate(ctx, loginPath, credentials{Email: email, Password: password})
}

func (c *Client) Register(ctx context.Context, name, email, password string) (string, *user.User, error) {
	return c.authenticate(ctx, registerPath, credentials{Name: name, Email: email, Password: password})
}

// Me fetches the profile behind token.
func (c *Client) Me(ctx context.Context, token string) (*user.User, error) {
	out := new(meResponse)
	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(out).
		SetError(&errorResponse{}).
		Get(mePath)
	if err := classify(resp, err); err != nil {
		logger.Log(ctx).Debugf("authapi: me request failed, %v", err)
		return nil, err
	}
	if out.User == nil {
		return nil, errEmptyAuthResponse
	}
	return out.User, nil
}

func (c *Client) Logout(ctx context.Context, token string) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetError(&errorResponse{}).
		Post(logoutPath)
	return classify(resp, err)
}

func (c *Client) authenticate(ctx context.Context, path string, body credentials) (string, *user.User, error) {
	out := new(authResponse)
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(out).
		SetError(&errorResponse{}).
		Post(path)
	if err := classify(resp, err); err != nil {
		logger.Log(ctx).Infof("authapi: %s failed for `%s`, %v", path, body.Email, err)
		return ``, nil, err
	}
	if out.Token == "" || out.User == nil {
		return ``, nil, &autherr.NetworkError{Err: errEmptyAuthResponse}
	}
	return out.Token, out.User, nil
}

// classify maps transport failures and 5xx to NetworkError and other
// non-2xx answers to AuthenticationError.
func classify(resp *resty.Response, err error) error {
	if err != nil {
		return &autherr.NetworkError{Err: err}
	}
	if resp == nil {
		return &autherr.NetworkError{Err: errors.New("authapi: no response")}
	}
	if !resp.IsError() {
		return nil
	}
	status := resp.StatusCode()
	if status >= http.StatusInternalServerError {
		return &autherr.NetworkError{Err: fmt.Errorf("authapi: server responded %d", status)}
	}
	msg := ""
	if apiErr, ok := resp.Error().(*errorResponse); ok {
		msg = strings.TrimSpace(apiErr.text())
	}
	return &autherr.AuthenticationError{Status: status, Message: msg}
}
