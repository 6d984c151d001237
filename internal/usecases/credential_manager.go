package usecases

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/abelzeko/riego-bot/internal/entities"
	"github.com/abelzeko/riego-bot/internal/integration"
	"github.com/abelzeko/riego-bot/internal/repository"
	"golang.org/x/oauth2"
)

// TokenProvider refreshes tokens and builds authorized calendar clients
type TokenProvider interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
	CalendarClient(ctx context.Context, accessToken string) (integration.CalendarClient, error)
}

// CredentialManager hands out calendar clients with valid tokens
type CredentialManager struct {
	repo   repository.CredentialRepository
	tokens TokenProvider
	margin  time.Duration
	timeout time.Duration
	now     func() time.Time
}

// NewCredentialManager creates a manager that refreshes tokens expiring within
// margin. timeout bounds every call to the token endpoint.
func NewCredentialManager(repo repository.CredentialRepository, tokens TokenProvider, margin, timeout time.Duration) *CredentialManager {
	return &CredentialManager{
		repo:    repo,
		tokens:  tokens,
		margin:  margin,
		timeout: timeout,
		now:     time.Now,
	}
}

// GetClient returns a calendar client for the owner, refreshing the access token
// first when it is about to expire. It fails with ErrCredentialMissing when the
// owner never linked a calendar and ErrCredentialExpired when refreshing is impossible.
func (m *CredentialManager) GetClient(ctx context.Context, ownerID int64) (integration.CalendarClient, error) {
	cred, err := m.repo.GetCredential(ctx, ownerID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("owner %d: %w", ownerID, ErrCredentialMissing)
	}
	if err != nil {
		return nil, err
	}
	if cred.AccessToken == "" && cred.RefreshToken == "" {
		return nil, fmt.Errorf("owner %d: %w", ownerID, ErrCredentialMissing)
	}

	if m.needsRefresh(cred) {
		if err := m.refresh(ctx, cred); err != nil {
			return nil, err
		}
	}

	return m.tokens.CalendarClient(ctx, cred.AccessToken)
}

func (m *CredentialManager) needsRefresh(cred *entities.Credential) bool {
	if cred.AccessToken == "" {
		return true
	}
	if cred.Expiry.IsZero() {
		return false
	}
	return !m.now().Add(m.margin).Before(cred.Expiry)
}

// refresh obtains a new access token and persists it before returning
func (m *CredentialManager) refresh(ctx context.Context, cred *entities.Credential) error {
	if cred.RefreshToken == "" {
		return fmt.Errorf("owner %d has no refresh token: %w", cred.OwnerID, ErrCredentialExpired)
	}

	log.Printf("Refreshing calendar token of owner %d (expires %s)", cred.OwnerID, cred.Expiry.Format(time.RFC3339))
	rctx, cancel := context.WithTimeout(ctx, m.timeout)
	tok, err := m.tokens.Refresh(rctx, cred.RefreshToken)
	cancel()
	if errors.Is(err, integration.ErrInvalidGrant) {
		log.Printf("Calendar token of owner %d was revoked, relink required", cred.OwnerID)
		return fmt.Errorf("owner %d: %w: %v", cred.OwnerID, ErrCredentialExpired, err)
	}
	if err != nil {
		return fmt.Errorf("failed to refresh calendar token of owner %d: %w", cred.OwnerID, err)
	}

	cred.AccessToken = tok.AccessToken
	cred.Expiry = tok.Expiry
	// Google rotates refresh tokens only occasionally
	if tok.RefreshToken != "" {
		cred.RefreshToken = tok.RefreshToken
	}
	cred.UpdatedAt = m.now().UTC()

	if err := m.repo.SaveCredential(ctx, *cred); err != nil {
		return fmt.Errorf("failed to persist refreshed token of owner %d: %w", cred.OwnerID, err)
	}
	return nil
}

// Link stores the tokens obtained from the OAuth callback
func (m *CredentialManager) Link(ctx context.Context, ownerID int64, tok *oauth2.Token) error {
	if tok == nil || (tok.AccessToken == "" && tok.RefreshToken == "") {
		return &entities.ValidationError{Field: "token", Reason: "is empty"}
	}
	return m.repo.SaveCredential(ctx, entities.Credential{
		OwnerID:      ownerID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
		UpdatedAt:    m.now().UTC(),
	})
}

// Disconnect forgets every token of the owner
func (m *CredentialManager) Disconnect(ctx context.Context, ownerID int64) error {
	return m.repo.DeleteCredential(ctx, ownerID)
}

// IsLinked reports whether the owner has stored tokens
func (m *CredentialManager) IsLinked(ctx context.Context, ownerID int64) (bool, error) {
	cred, err := m.repo.GetCredential(ctx, ownerID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return cred.AccessToken != "" || cred.RefreshToken != "", nil
}
