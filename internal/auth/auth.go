package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xtrntr/fxdesk/internal/apperr"
	"github.com/xtrntr/fxdesk/internal/db"
	"github.com/xtrntr/fxdesk/internal/models"
	"github.com/xtrntr/fxdesk/internal/validation"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	maxUsernameLength = 50
	// bcrypt only looks at the first 72 bytes
	maxPasswordBytes = 72

	msgInvalidCredentials = "Invalid credentials"
	msgInvalidToken       = "Invalid token"
	msgUserExists         = "User already exists"
)

type registerInput struct {
	Username string `json:"username" validate:"required,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

var registerMessages = validation.Messages{
	"required":     "Please provide username, email and password",
	"username.max": fmt.Sprintf("Username too long (max %d characters)", maxUsernameLength),
	"email.email":  "Please provide a valid email",
}

// Claims are the JWT claims minted for a user
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// Session is the result of a successful register or login
type Session struct {
	Token string
	User  *models.User
}

// Options configures an AuthService
type Options struct {
	Secret     string
	TokenTTL   time.Duration
	BcryptCost int
}

// AuthService handles user registration, login and token verification
type AuthService struct {
	users  db.UserStore
	secret []byte
	ttl    time.Duration
	cost   int
	log    *logrus.Logger
	now    func() time.Time

	// compared against when the email is unknown so both login failures cost a hash
	dummyHash []byte
}

// NewAuthService creates a new auth service
func NewAuthService(users db.UserStore, opts Options, log *logrus.Logger) (*AuthService, error) {
	if opts.Secret == "" {
		return nil, fmt.Errorf("signing secret is required")
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare password hasher: %w", err)
	}

	return &AuthService{
		users:     users,
		secret:    []byte(opts.Secret),
		ttl:       opts.TokenTTL,
		cost:      opts.BcryptCost,
		log:       log,
		now:       time.Now,
		dummyHash: dummy,
	}, nil
}

// Register creates a new user with a hashed password and returns a fresh token
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*Session, error) {
	username = strings.TrimSpace(username)
	email = normalizeEmail(email)

	input := registerInput{Username: username, Email: email, Password: password}
	if username == "" || email == "" || password == "" {
		return nil, apperr.Validation(registerMessages["required"])
	}

	// an existing email is a conflict whatever else is wrong with the request
	if _, err := s.users.FindUserByEmail(ctx, email); err == nil {
		return nil, apperr.Conflict(msgUserExists)
	} else if !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := validation.Struct(input, registerMessages); err != nil {
		return nil, err
	}
	// validator counts runes; bcrypt truncates at bytes
	if len(password) > maxPasswordBytes {
		return nil, apperr.Validation(fmt.Sprintf("Password too long (max %d bytes)", maxPasswordBytes))
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hashedPassword),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.InsertUser(ctx, user); err != nil {
		if errors.Is(err, db.ErrDuplicateEmail) {
			return nil, apperr.Conflict(msgUserExists)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	token, err := s.issue(user.ID)
	if err != nil {
		return nil, err
	}

	s.log.WithField("user_id", user.ID).Info("User registered successfully")
	return &Session{Token: token, User: user}, nil
}

// Login verifies credentials and issues a token. Unknown email and wrong
// password produce the same error.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperr.Validation("Please provide email and password")
	}

	user, err := s.users.FindUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("failed to look up user: %w", err)
		}
		bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, apperr.Auth(msgInvalidCredentials)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.log.WithField("user_id", user.ID).Warn("Failed authentication attempt")
		return nil, apperr.Auth(msgInvalidCredentials)
	}

	token, err := s.issue(user.ID)
	if err != nil {
		return nil, err
	}

	s.log.WithField("user_id", user.ID).Info("User logged in successfully")
	return &Session{Token: token, User: user}, nil
}

// Verify checks a token's signature and expiry and returns the user id it binds
func (s *AuthService) Verify(tokenString string) (string, error) {
	if tokenString == "" {
		return "", apperr.Auth(msgInvalidToken)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return "", apperr.Auth(msgInvalidToken)
	}
	if claims.UserID == "" || claims.Subject != claims.UserID {
		return "", apperr.Auth(msgInvalidToken)
	}
	return claims.UserID, nil
}

func (s *AuthService) issue(userID string) (string, error) {
	now := s.now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
