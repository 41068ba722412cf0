package auth

import (
	"time"

	"github.com/studentlms/lms/internal/shared"
)

// Account is a principal record as held by the credential store.
type Account struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	Role         shared.Role
	ExternalID   string // studentId or teacherId depending on Role
	PasswordHash string
	IsActive     bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal returns the token payload for the account.
func (a *Account) Principal() shared.Principal {
	p := shared.Principal{ID: a.ID, Email: a.Email, Role: a.Role}
	switch a.Role {
	case shared.RoleStudent:
		p.StudentID = a.ExternalID
	case shared.RoleTeacher:
		p.TeacherID = a.ExternalID
	}
	return p
}

// Summary is the client-facing view of an account.
type Summary struct {
	ID          string      `json:"id"`
	Email       string      `json:"email"`
	FirstName   string      `json:"firstName"`
	LastName    string      `json:"lastName"`
	StudentID   string      `json:"studentId,omitempty"`
	TeacherID   string      `json:"teacherId,omitempty"`
	Type        shared.Role `json:"type"`
	IsActive    bool        `json:"isActive"`
	LastLoginAt *time.Time  `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// Summary builds the client-facing view.
func (a *Account) Summary() Summary {
	p := a.Principal()
	return Summary{
		ID:          a.ID,
		Email:       a.Email,
		FirstName:   a.FirstName,
		LastName:    a.LastName,
		StudentID:   p.StudentID,
		TeacherID:   p.TeacherID,
		Type:        a.Role,
		IsActive:    a.IsActive,
		LastLoginAt: a.LastLoginAt,
		CreatedAt:   a.CreatedAt,
	}
}

// NewStudent carries the fields required to register a student.
type NewStudent struct {
	Email        string
	FirstName    string
	LastName     string
	StudentID    string
	PasswordHash string
}

// TokenPair is issued on login and refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	User   Summary   `json:"user"`
	Tokens TokenPair `json:"tokens"`
}
