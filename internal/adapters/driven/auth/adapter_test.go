package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/chenxi840221/personalized-learning-copilot/internal/core/domain"
)

func testProfile() *domain.StudentProfile {
	return &domain.StudentProfile{
		StudentID:          "student-1",
		FullName:           "Alex Chen",
		GradeLevel:         5,
		LearningStyle:      domain.LearningStyleVisual,
		SubjectsOfInterest: []string{"Maths", "Science"},
	}
}

func TestNewAdapter(t *testing.T) {
	adapter := NewAdapter("test-secret")
	if adapter == nil {
		t.Fatal("expected non-nil adapter")
	}
	if string(adapter.jwtSecret) != "test-secret" {
		t.Error("expected jwt secret to be set")
	}
}

func TestGenerateAndParseToken(t *testing.T) {
	adapter := NewAdapter("test-secret")

	token, err := adapter.GenerateToken(testProfile(), time.Hour)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	profile, err := adapter.ParseToken(token)
	if err != nil {
		t.Fatalf("failed to parse token: %v", err)
	}

	if profile.StudentID != "student-1" {
		t.Errorf("unexpected student ID %s", profile.StudentID)
	}
	if profile.FullName != "Alex Chen" {
		t.Errorf("unexpected name %s", profile.FullName)
	}
	if profile.GradeLevel != 5 {
		t.Errorf("unexpected grade level %d", profile.GradeLevel)
	}
	if profile.LearningStyle != domain.LearningStyleVisual {
		t.Errorf("unexpected learning style %s", profile.LearningStyle)
	}
	if len(profile.SubjectsOfInterest) != 2 || profile.SubjectsOfInterest[0] != "Maths" {
		t.Errorf("unexpected subjects %v", profile.SubjectsOfInterest)
	}
}

func TestGenerateToken_RequiresStudentID(t *testing.T) {
	adapter := NewAdapter("test-secret")

	_, err := adapter.GenerateToken(&domain.StudentProfile{}, time.Hour)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}

	_, err = adapter.GenerateToken(nil, time.Hour)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for nil profile, got %v", err)
	}
}

func TestParseToken_Expired(t *testing.T) {
	adapter := NewAdapter("test-secret")

	token, err := adapter.GenerateToken(testProfile(), -time.Minute)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	_, err = adapter.ParseToken(token)
	if !errors.Is(err, domain.ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, err := NewAdapter("secret-a").GenerateToken(testProfile(), time.Hour)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	_, err = NewAdapter("secret-b").ParseToken(token)
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized for wrong secret, got %v", err)
	}
}

func TestParseToken_Garbage(t *testing.T) {
	adapter := NewAdapter("test-secret")

	_, err := adapter.ParseToken("not-a-token")
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized for garbage token, got %v", err)
	}
}
