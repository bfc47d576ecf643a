package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const blobAudience = "blob-download"

var ErrInvalidToken = errors.New("invalid token")

// GenerateToken issues an HS256 token whose subject is the user id.
func GenerateToken(userID, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ExtractUserIDFromToken validates tokenString and returns its subject.
func ExtractUserIDFromToken(tokenString, secret string) (string, error) {
	claims, err := parse(tokenString, secret)
	if err != nil {
		return "", err
	}
	if len(claims.Audience) > 0 {
		// Download tokens must not authenticate API calls.
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// SignBlobKey issues a short-lived token granting download of one blob key.
func SignBlobKey(key, secret string, ttl time.Duration) (string, time.Time, error) {
	expires := time.Now().Add(ttl)
	claims := jwt.RegisteredClaims{
		Subject:   key,
		Audience:  jwt.ClaimStrings{blobAudience},
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	return token, expires, err
}

// VerifyBlobKey checks that tokenString grants access to key.
func VerifyBlobKey(tokenString, key, secret string) error {
	claims, err := parse(tokenString, secret, jwt.WithAudience(blobAudience))
	if err != nil {
		return err
	}
	if claims.Subject != key {
		return fmt.Errorf("%w: key mismatch", ErrInvalidToken)
	}
	return nil
}

func parse(tokenString, secret string, opts ...jwt.ParserOption) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
