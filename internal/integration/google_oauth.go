package integration

import (
	"context"
	"errors"
	"fmt"
	"log"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// ErrInvalidGrant is returned when the refresh token was revoked or expired
var ErrInvalidGrant = errors.New("invalid grant")

// GoogleOAuth performs the OAuth flows needed to act on a user's calendar
type GoogleOAuth struct {
	config *oauth2.Config
}

// NewGoogleOAuth creates the OAuth helper for the calendar events scope
func NewGoogleOAuth(clientID, clientSecret, redirectURL string) *GoogleOAuth {
	return NewGoogleOAuthWithEndpoint(clientID, clientSecret, redirectURL, google.Endpoint)
}

// NewGoogleOAuthWithEndpoint is NewGoogleOAuth with a custom token endpoint
func NewGoogleOAuthWithEndpoint(clientID, clientSecret, redirectURL string, endpoint oauth2.Endpoint) *GoogleOAuth {
	return &GoogleOAuth{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{calendar.CalendarEventsScope},
			Endpoint:     endpoint,
		},
	}
}

// AuthCodeURL returns the consent page URL. Offline access with a forced consent
// prompt makes Google return a refresh token on every link.
func (g *GoogleOAuth) AuthCodeURL(state string) string {
	return g.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

// Exchange trades an authorization code for tokens
func (g *GoogleOAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", classifyTokenError(err))
	}
	return tok, nil
}

// Refresh obtains a new access token. The returned token carries a refresh
// token only when the provider issued one.
func (g *GoogleOAuth) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	src := g.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", classifyTokenError(err))
	}
	// x/oauth2 copies the old refresh token forward when none is rotated
	if tok.RefreshToken == refreshToken {
		tok.RefreshToken = ""
	}
	log.Printf("Refreshed calendar access token, expires %s", tok.Expiry.Format("2006-01-02 15:04:05"))
	return tok, nil
}

// CalendarClient returns a calendar client authorized with accessToken
func (g *GoogleOAuth) CalendarClient(ctx context.Context, accessToken string) (CalendarClient, error) {
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	return NewGoogleCalendar(ctx, option.WithHTTPClient(httpClient))
}

func classifyTokenError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode == "invalid_grant" {
		return fmt.Errorf("%w: %v", ErrInvalidGrant, err)
	}
	return err
}
