package usecase

import (
	"errors"
	"strings"

	authdomain "mailwatch-backend/internal/auth/domain"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

type AuthUsecase interface {
	ValidateToken(tokenString string) (*authdomain.Principal, error)
}

type authUsecase struct {
	jwtSecret []byte
}

// NewAuthUsecase verifies Supabase access tokens signed with the project's
// JWT secret.
func NewAuthUsecase(jwtSecret string) AuthUsecase {
	return &authUsecase{jwtSecret: []byte(jwtSecret)}
}

func (u *authUsecase) ValidateToken(tokenString string) (*authdomain.Principal, error) {
	if len(u.jwtSecret) == 0 {
		return nil, ErrInvalidToken
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return u.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	principal := &authdomain.Principal{}
	principal.UserID, _ = claims["sub"].(string)
	principal.Email, _ = claims["email"].(string)
	principal.Email = strings.ToLower(principal.Email)
	principal.Role, _ = claims["role"].(string)

	if principal.UserID == "" && !principal.IsService() {
		return nil, ErrInvalidToken
	}
	return principal, nil
}
