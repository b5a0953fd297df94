package api

import (
	"context"
	"errors"
	"net/http"
)

// Login exchanges credentials for a bearer token. The token is returned,
// not stored; the session controller decides when to persist it.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	r := request{
		op:      "login",
		method:  http.MethodPost,
		path:    "/user/login",
		public:  true,
		failMsg: "Invalid email or password",
		body:    Credentials{Email: email, Password: password},
	}
	var resp loginResponse
	if err := c.do(ctx, r, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", c.fail(ctx, r, http.StatusOK, "", errors.New("login response has no token"))
	}
	return resp.Token, nil
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, email, password string) error {
	return c.do(ctx, request{
		op:      "register",
		method:  http.MethodPost,
		path:    "/user/",
		public:  true,
		failMsg: "Registration failed",
		body:    Credentials{Email: email, Password: password},
	}, nil)
}

// UserInfo returns the user the stored token belongs to.
func (c *Client) UserInfo(ctx context.Context) (*UserInfo, error) {
	var info UserInfo
	err := c.do(ctx, request{
		op:      "user_info",
		method:  http.MethodGet,
		path:    "/user_info/",
		failMsg: "Failed to load user info",
	}, &info)
	if err != nil {
		return nil, err
	}
	return &info, nil
}
