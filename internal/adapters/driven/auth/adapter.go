// Package auth signs and validates the bearer tokens that carry a
// student's profile claims into the API.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/chenxi840221/personalized-learning-copilot/internal/core/domain"
)

// studentClaims carries the student profile inside a JWT
type studentClaims struct {
	FullName           string   `json:"name,omitempty"`
	GradeLevel         int      `json:"grade_level"`
	LearningStyle      string   `json:"learning_style,omitempty"`
	SubjectsOfInterest []string `json:"subjects_of_interest,omitempty"`
	jwt.RegisteredClaims
}

// Adapter signs and parses student tokens with an HMAC secret
type Adapter struct {
	jwtSecret []byte
}

// NewAdapter creates a new auth adapter with the given JWT secret
func NewAdapter(jwtSecret string) *Adapter {
	return &Adapter{
		jwtSecret: []byte(jwtSecret),
	}
}

// GenerateToken creates a signed JWT carrying the student profile.
// The registered subject claim holds the student ID.
func (a *Adapter) GenerateToken(profile *domain.StudentProfile, ttl time.Duration) (string, error) {
	if profile == nil || profile.StudentID == "" {
		return "", fmt.Errorf("%w: student ID is required", domain.ErrInvalidInput)
	}

	now := time.Now()
	claims := studentClaims{
		FullName:           profile.FullName,
		GradeLevel:         profile.GradeLevel,
		LearningStyle:      string(profile.LearningStyle),
		SubjectsOfInterest: profile.SubjectsOfInterest,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   profile.StudentID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.jwtSecret)
}

// ParseToken validates a JWT and extracts the student profile. Invalid
// or expired tokens surface as ErrUnauthorized.
func (a *Adapter) ParseToken(tokenString string) (*domain.StudentProfile, error) {
	token, err := jwt.ParseWithClaims(tokenString, &studentClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.jwtSecret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(*studentClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%w: invalid token claims", domain.ErrUnauthorized)
	}

	return &domain.StudentProfile{
		StudentID:          claims.Subject,
		FullName:           claims.FullName,
		GradeLevel:         claims.GradeLevel,
		LearningStyle:      domain.LearningStyle(claims.LearningStyle),
		SubjectsOfInterest: claims.SubjectsOfInterest,
	}, nil
}
