package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nayasahai/recovery/internal/cases"
	"github.com/nayasahai/recovery/internal/config"
)

// ErrInvalidToken is returned for tokens that fail parsing or validation
var ErrInvalidToken = errors.New("invalid token")

type Service struct {
	config config.APIAuthConfig
	now    func() time.Time
}

// Claims carries the caller identity and plan
type Claims struct {
	UserID string     `json:"user_id"`
	Email  string     `json:"email"`
	Plan   cases.Plan `json:"plan"`
	jwt.RegisteredClaims
}

type User struct {
	ID    string     `json:"id"`
	Email string     `json:"email"`
	Plan  cases.Plan `json:"plan"`
}

func NewService(cfg config.APIAuthConfig) *Service {
	if cfg.JWTExpiry <= 0 {
		cfg.JWTExpiry = 24
	}
	return &Service{
		config: cfg,
		now:    time.Now,
	}
}

// Enabled reports whether requests must carry a bearer token
func (s *Service) Enabled() bool {
	return s.config.Enabled
}

func (s *Service) GenerateToken(user *User) (string, error) {
	if user.ID == "" {
		return "", fmt.Errorf("user id is required")
	}

	now := s.now()
	expirationTime := now.Add(time.Duration(s.config.JWTExpiry) * time.Hour)

	plan := user.Plan
	if plan == "" {
		plan = cases.PlanFree
	}

	claims := &Claims{
		UserID: user.ID,
		Email:  user.Email,
		Plan:   plan,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.config.Issuer,
			Subject:   user.ID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithTimeFunc(s.now)}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.JWTSecret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}

	return claims, nil
}

// Session converts validated claims into a case session. Unknown plans
// are treated as free.
func (c *Claims) Session() cases.Session {
	plan := c.Plan
	if plan != cases.PlanToolkit {
		plan = cases.PlanFree
	}
	return cases.Session{OwnerID: c.UserID, Plan: plan}
}
