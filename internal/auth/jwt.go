package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/suPer8Hu/ai-tutor/internal/tutor"
)

// Claims is what the identity provider puts in the bearer token.
type Claims struct {
	UserID         uint64 `json:"uid"`
	EducationLevel string `json:"education_level,omitempty"`
	FieldOfStudy   string `json:"field_of_study,omitempty"`
	Locale         string `json:"locale,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) Profile() tutor.Profile {
	return tutor.Profile{
		UserID:         c.UserID,
		EducationLevel: c.EducationLevel,
		FieldOfStudy:   c.FieldOfStudy,
		Locale:         c.Locale,
	}
}

func SignJWT(secret string, c Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	c.IssuedAt = jwt.NewNumericDate(now)
	if ttl != 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}

func ParseJWT(secret, token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if claims.UserID == 0 {
		return nil, errors.New("token has no uid")
	}
	return claims, nil
}
