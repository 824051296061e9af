package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"

	"github.com/GeorgiStavrev/konfig/pkg/authz"
)

// Token types carried in the typ claim. Access tokens authenticate requests;
// refresh tokens are only accepted by the refresh operation.
const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

const (
	defaultAccessTTL  = 30 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// TokenClaims are the verified contents of a session token.
type TokenClaims struct {
	UserID   string
	TenantID string
	Role     authz.Role
	Type     string
	Expiry   time.Time
}

type privateClaims struct {
	TenantID string `json:"tid"`
	Role     string `json:"role"`
	Type     string `json:"typ"`
}

// TokenSigner issues and verifies HMAC-signed session tokens.
type TokenSigner struct {
	secret     []byte
	signer     jose.Signer
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// SignerConfig configures a TokenSigner. Zero TTLs take the defaults
// (30 minutes access, 7 days refresh).
type SignerConfig struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Now overrides the clock in tests.
	Now func() time.Time
}

// NewTokenSigner builds a signer around an HS256 key. The secret must be at
// least 32 bytes.
func NewTokenSigner(cfg SignerConfig) (*TokenSigner, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("token secret must be at least 32 bytes")
	}
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: cfg.Secret},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create signer: %w", err)
	}

	s := &TokenSigner{
		secret:     cfg.Secret,
		signer:     signer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        cfg.Now,
	}
	if s.accessTTL == 0 {
		s.accessTTL = defaultAccessTTL
	}
	if s.refreshTTL == 0 {
		s.refreshTTL = defaultRefreshTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// IssuePair mints an access and refresh token for a user.
func (s *TokenSigner) IssuePair(userID, tenantID string, role authz.Role) (access, refresh string, err error) {
	access, err = s.issue(userID, tenantID, role, TokenAccess, s.accessTTL)
	if err != nil {
		return "", "", err
	}
	refresh, err = s.issue(userID, tenantID, role, TokenRefresh, s.refreshTTL)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (s *TokenSigner) issue(userID, tenantID string, role authz.Role, typ string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := jwt.Claims{
		Subject:  userID,
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(ttl)),
	}
	private := privateClaims{
		TenantID: tenantID,
		Role:     string(role),
		Type:     typ,
	}

	raw, err := jwt.Signed(s.signer).Claims(claims).Claims(private).Serialize()
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return raw, nil
}

// Verify parses and validates a token, requiring the given type. A token of
// the wrong type is an invalid credential, not a type-specific error, so an
// attacker learns nothing from presenting a refresh token as access.
func (s *TokenSigner) Verify(raw, wantType string) (*TokenClaims, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, ErrInvalidCredential
	}

	var claims jwt.Claims
	var private privateClaims
	if err := tok.Claims(s.secret, &claims, &private); err != nil {
		return nil, ErrInvalidCredential
	}

	if err := claims.ValidateWithLeeway(jwt.Expected{Time: s.now()}, 0); err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalidCredential
	}

	if private.Type != wantType || claims.Subject == "" || private.TenantID == "" {
		return nil, ErrInvalidCredential
	}

	return &TokenClaims{
		UserID:   claims.Subject,
		TenantID: private.TenantID,
		Role:     authz.Role(private.Role),
		Type:     private.Type,
		Expiry:   claims.Expiry.Time(),
	}, nil
}
