package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

const (
	// Issuer is the issuer of the access tokens.
	Issuer = "divinechat"
	// KeyID is the key id of the signing secret.
	KeyID = "v1"
	// AccessTokenAudienceName is the audience name of the access token.
	AccessTokenAudienceName = "user.access-token"
	// DefaultAccessTokenDuration is used when no ttl is given.
	DefaultAccessTokenDuration = 30 * 24 * time.Hour
)

// ClaimsMessage is the claim set carried by an access token.
// The subject is the owner id.
type ClaimsMessage struct {
	jwt.RegisteredClaims
}

// GenerateAccessToken signs a token for ownerID. A zero ttl uses DefaultAccessTokenDuration.
func GenerateAccessToken(ownerID string, secret []byte, ttl time.Duration) (string, error) {
	if ownerID == "" {
		return "", errors.New("owner id is required")
	}
	if len(secret) == 0 {
		return "", errors.New("secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultAccessTokenDuration
	}

	now := time.Now()
	claims := &ClaimsMessage{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   ownerID,
			Audience:  jwt.ClaimStrings{AccessTokenAudienceName},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = KeyID

	signed, err := token.SignedString(secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign access token")
	}
	return signed, nil
}

// ParseAccessToken verifies tokenString and returns its claims.
func ParseAccessToken(tokenString string, secret []byte) (*ClaimsMessage, error) {
	claims := &ClaimsMessage{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if kid, ok := t.Header["kid"].(string); !ok || kid != KeyID {
			return nil, fmt.Errorf("unexpected kid: %v", t.Header["kid"])
		}
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(AccessTokenAudienceName),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("access token has no subject")
	}
	return claims, nil
}
