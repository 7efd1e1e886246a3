package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/and161185/docdesk/internal/errs"
)

// Token is the result of a credential exchange.
type Token struct {
	AccessToken string
	Expiry      time.Time // zero when the server does not say
}

// Exchange trades a username and password for a bearer token via the
// password grant on POST /token. A rejection never expires the live session.
func (c *Client) Exchange(ctx context.Context, username, password string) (Token, error) {
	conf := &oauth2.Config{
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.endpoint("/token", nil),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)

	tok, err := conf.PasswordCredentialsToken(ctx, username, password)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			switch re.Response.StatusCode {
			case http.StatusBadRequest, http.StatusUnauthorized:
				return Token{}, &errs.AuthError{Reason: Reason(re.Body)}
			default:
				return Token{}, &errs.RequestError{Status: re.Response.StatusCode, Reason: Reason(re.Body)}
			}
		}
		if ctx.Err() != nil {
			return Token{}, &errs.TransportError{Op: "POST /token", Err: err}
		}
		var ue *url.Error
		if errors.As(err, &ue) {
			return Token{}, &errs.TransportError{Op: "POST /token", Err: err}
		}
		return Token{}, fmt.Errorf("token exchange: %w", err)
	}
	return Token{AccessToken: tok.AccessToken, Expiry: tok.Expiry}, nil
}
