package models

import "github.com/golang-jwt/jwt/v5"

// UserRole represents the roles carried in access tokens.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleTeacher UserRole = "TEACHER"
	RoleStudent UserRole = "STUDENT"
)

// UserMetadata mirrors the profile data the auth provider embeds in its tokens.
type UserMetadata struct {
	Role       string `json:"role"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	RollNumber string `json:"roll_number,omitempty"`
}

// JWTClaims represents the access token payload issued by the auth provider.
type JWTClaims struct {
	UserID       string       `json:"-"`
	Role         UserRole     `json:"-"`
	Email        string       `json:"email"`
	UserMetadata UserMetadata `json:"user_metadata"`
	jwt.RegisteredClaims
}
