package smartapi

import (
	"context"
	"fmt"
)

const loginPath = "/rest/auth/angelbroking/user/v1/loginByPassword"

type loginRequest struct {
	ClientCode string `json:"clientcode"`
	Password   string `json:"password"`
	TOTP       string `json:"totp"`
}

type loginData struct {
	JWTToken     string `json:"jwtToken"`
	RefreshToken string `json:"refreshToken"`
	FeedToken    string `json:"feedToken"`
}

// Login authenticates clientCode with password and a current one-time code.
// On success the returned tokens are also bound to the client. A rejection by
// SmartAPI is returned as *APIError.
func (c *Client) Login(ctx context.Context, clientCode, password, totp string) (Tokens, error) {
	var data loginData
	err := c.post(ctx, loginPath, false, loginRequest{
		ClientCode: clientCode,
		Password:   password,
		TOTP:       totp,
	}, &data)
	if err != nil {
		return Tokens{}, err
	}

	if data.JWTToken == "" {
		return Tokens{}, fmt.Errorf("login response without jwtToken: %w", ErrMalformedResponse)
	}
	if data.FeedToken == "" {
		return Tokens{}, fmt.Errorf("login response without feedToken: %w", ErrMalformedResponse)
	}

	tokens := Tokens{JWT: data.JWTToken, Refresh: data.RefreshToken, Feed: data.FeedToken}
	c.SetTokens(tokens)
	return tokens, nil
}
