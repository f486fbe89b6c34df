package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bhandras/delight-chat/internal/chat"
)

// ErrMissingSubject is returned for tokens that do not name a user.
var ErrMissingSubject = errors.New("token has no subject")

// TokenClaims is the JWT payload identifying a chat user.
type TokenClaims struct {
	Name  string `json:"name,omitempty"`
	Image string `json:"image,omitempty"`
	jwt.RegisteredClaims
}

// User returns the chat user the claims describe.
func (c TokenClaims) User() chat.User {
	return chat.User{ID: c.Subject, Name: c.Name, Image: c.Image}
}

// Signer issues and verifies user tokens with an Ed25519 key derived from a
// shared secret.
type Signer struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	issuer     string
}

// NewSigner derives a signer from secret.
func NewSigner(secret, issuer string) *Signer {
	seed := sha256.Sum256([]byte(secret))
	privateKey := ed25519.NewKeyFromSeed(seed[:])
	return &Signer{
		privateKey: privateKey,
		publicKey:  privateKey.Public().(ed25519.PublicKey),
		issuer:     issuer,
	}
}

// Issue creates a token for u valid for ttl. A zero ttl never expires.
func (s *Signer) Issue(u chat.User, ttl time.Duration) (string, error) {
	if u.ID == "" {
		return "", ErrMissingSubject
	}
	now := time.Now()
	claims := TokenClaims{
		Name:  u.Name,
		Image: u.Image,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(s.privateKey)
}

// Verify checks the signature, issuer and validity window of a token.
func (s *Signer) Verify(tokenString string) (chat.User, error) {
	var opts []jwt.ParserOption
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.publicKey, nil
	}, opts...)
	if err != nil {
		return chat.User{}, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return chat.User{}, fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return chat.User{}, ErrMissingSubject
	}
	return claims.User(), nil
}

// UserFromToken reads the user out of a token without verifying it. Clients
// use it to learn who they are; the server does the verification.
func UserFromToken(tokenString string) (chat.User, error) {
	claims := &TokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return chat.User{}, fmt.Errorf("failed to parse token: %w", err)
	}
	if claims.Subject == "" {
		return chat.User{}, ErrMissingSubject
	}
	return claims.User(), nil
}
