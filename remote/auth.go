package remote

import (
	"context"
	"net/http"

	contaconmigo "github.com/contaconmigo/contaconmigo-go"
	"github.com/contaconmigo/contaconmigo-go/auth"
	"github.com/contaconmigo/contaconmigo-go/httpapi"
)

// authBackend implements auth.Backend over the /auth endpoints. These calls
// do not need identity and bypass the dispatcher.
type authBackend struct {
	caller *httpapi.Caller
}

var _ auth.Backend = (*authBackend)(nil)

type credentialsBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Message      string                   `json:"message"`
	AccessToken  string                   `json:"access_token"`
	RefreshToken string                   `json:"refresh_token"`
	User         contaconmigo.UserProfile `json:"user"`
}

func (b *authBackend) SignUp(ctx context.Context, email, password string) (*contaconmigo.SignUpResult, error) {
	var res contaconmigo.SignUpResult
	err := b.caller.Do(ctx, httpapi.Request{
		Method: http.MethodPost,
		Path:   "/auth/signup",
		Body:   credentialsBody{Email: email, Password: password},
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (b *authBackend) Login(ctx context.Context, email, password string) (*auth.LoginResult, error) {
	var res loginResponse
	err := b.caller.Do(ctx, httpapi.Request{
		Method: http.MethodPost,
		Path:   "/auth/login",
		Body:   credentialsBody{Email: email, Password: password},
	}, &res)
	if err != nil {
		return nil, err
	}
	return &auth.LoginResult{
		Tokens: contaconmigo.Tokens{AccessToken: res.AccessToken, RefreshToken: res.RefreshToken},
		User:   res.User,
	}, nil
}

func (b *authBackend) Logout(ctx context.Context, accessToken string) error {
	req := httpapi.Request{Method: http.MethodPost, Path: "/auth/logout"}
	if accessToken != "" {
		req.Header = http.Header{"Authorization": {"Bearer " + accessToken}}
	}
	return b.caller.Do(ctx, req, nil)
}

func (b *authBackend) ForgotPassword(ctx context.Context, email string) error {
	return b.caller.Do(ctx, httpapi.Request{
		Method: http.MethodPost,
		Path:   "/auth/forgot-password",
		Body:   map[string]string{"email": email},
	}, nil)
}

func (b *authBackend) ResetPassword(ctx context.Context, accessToken, newPassword string) error {
	return b.caller.Do(ctx, httpapi.Request{
		Method: http.MethodPost,
		Path:   "/auth/reset-password",
		Body:   map[string]string{"access_token": accessToken, "new_password": newPassword},
	}, nil)
}

func (b *authBackend) Health(ctx context.Context) error {
	return b.caller.Do(ctx, httpapi.Request{Method: http.MethodGet, Path: "/health"}, nil)
}
