package dto

import "github.com/golang-jwt/jwt/v5"

// AuthClaims are the claims carried by tokens the quiz API issues.
type AuthClaims struct {
	Username string `json:"username"`
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}
