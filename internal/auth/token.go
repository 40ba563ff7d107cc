package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"classboard/pkg/types"
)

// Claims carry the server-trusted identity of a participant.
// An empty Channel means the token is valid for any channel.
type Claims struct {
	Name    string     `json:"name,omitempty"`
	Role    types.Role `json:"role"`
	Channel string     `json:"channel,omitempty"`
	jwt.RegisteredClaims
}

// UserID is the token subject.
func (c *Claims) UserID() string { return c.Subject }

// Issuer mints HS256 role tokens for strict-mode relays.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an issuer; issuer may be empty.
func NewIssuer(secret, issuer string, ttl time.Duration) (*Issuer, error) {
	if len(secret) < 16 {
		return nil, ErrWeakSecret
	}
	return &Issuer{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for userID acting as role, optionally scoped to channelID.
func (i *Issuer) Issue(userID, name string, role types.Role, channelID string) (string, error) {
	if userID == "" || !role.Valid() {
		return "", fmt.Errorf("%w: user id and a valid role are required", ErrInvalidToken)
	}
	now := i.now()
	claims := &Claims{
		Name:    name,
		Role:    role,
		Channel: channelID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verifier validates tokens presented at join time.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier creates a verifier; a non-empty issuer must match the iss claim.
func NewVerifier(secret, issuer string) (*Verifier, error) {
	if len(secret) < 16 {
		return nil, ErrWeakSecret
	}
	return &Verifier{secret: []byte(secret), issuer: issuer}, nil
}

// Verify checks the signature, expiry and scope of tokenString for a join of
// userID to channelID, returning the trusted claims.
func (v *Verifier) Verify(tokenString, channelID, userID string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: expired", ErrInvalidToken)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if userID != "" && claims.Subject != userID {
		return nil, ErrUserMismatch
	}
	if claims.Channel != "" && claims.Channel != channelID {
		return nil, ErrChannelMismatch
	}
	return claims, nil
}
