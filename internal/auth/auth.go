// Package auth issues and checks the bearer tokens used by the relay API.
package auth

import (
	"crypto/rand"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidPassword = errors.New("invalid password")
	ErrInvalidToken    = errors.New("invalid token")
	ErrAdminDisabled   = errors.New("admin login is disabled")
)

// Role is the kind of principal a token speaks for.
type Role string

const (
	RoleUser    Role = "user"
	RoleContact Role = "contact"
	RoleAdmin   Role = "admin"
)

// Principal is the authenticated caller.
type Principal struct {
	Role Role   `json:"role"`
	ID   string `json:"id"`
}

type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

const AdminTokenTTL = 24 * time.Hour

type Service struct {
	adminPasswordHash []byte
	jwtSecret         []byte
	now               func() time.Time
}

// NewService hashes the admin password and keeps the signing secret. An
// empty password disables admin login; an empty secret gets a random one,
// which invalidates tokens on restart.
func NewService(adminPassword, jwtSecret string) (*Service, error) {
	s := &Service{now: time.Now}

	if adminPassword != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		s.adminPasswordHash = hash
	}

	s.jwtSecret = []byte(jwtSecret)
	if jwtSecret == "" {
		s.jwtSecret = make([]byte, 32)
		if _, err := rand.Read(s.jwtSecret); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Service) ValidatePassword(password string) error {
	if len(s.adminPasswordHash) == 0 {
		return ErrAdminDisabled
	}
	if err := bcrypt.CompareHashAndPassword(s.adminPasswordHash, []byte(password)); err != nil {
		return ErrInvalidPassword
	}
	return nil
}

// GenerateToken signs an HS256 token for p, valid for ttl.
func (s *Service) GenerateToken(p Principal, ttl time.Duration) (string, error) {
	now := s.now()
	claims := &Claims{
		Role: p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *Service) AdminToken() (string, error) {
	return s.GenerateToken(Principal{Role: RoleAdmin, ID: "admin"}, AdminTokenTTL)
}

func (s *Service) ValidateToken(tokenString string) (*Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	switch claims.Role {
	case RoleUser, RoleContact, RoleAdmin:
	default:
		return nil, ErrInvalidToken
	}
	return &Principal{Role: claims.Role, ID: claims.Subject}, nil
}
