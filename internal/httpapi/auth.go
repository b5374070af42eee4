package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"pdv/backend/internal/domain"
	"pdv/backend/internal/store"
)

const (
	tokenIssuer       = "pdv"
	defaultTokenTTL   = 8 * time.Hour
	minUsernameLength = 4
	minPasswordLength = 6
)

var (
	errInvalidCredentials = errors.New("invalid credentials")
	errAccountInactive    = errors.New("account is inactive")
	errInvalidToken       = errors.New("invalid or expired token")
	errNoUserStore        = errors.New("user store is not configured")
)

// AuthManager resolves operators against the user store and issues the
// bearer tokens that carry their identity. Nothing is cached: an account
// created or deactivated elsewhere takes effect on the next login.
type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	users    store.UserStore
	now      func() time.Time
}

type operatorClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, users store.UserStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		users:    users,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	account, err := a.authenticate(ctx, normalizeUsername(req.Username), req.Password)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	expiresAt := a.now().Add(a.tokenTTL)
	token, err := a.sign(account.Username, account.Role, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	return domain.LoginResponse{
		AccessToken: token,
		Role:        account.Role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

// authenticate looks the operator up and checks the password. Accounts
// seeded with a plain-text password are moved to bcrypt on their first
// successful login.
func (a *AuthManager) authenticate(ctx context.Context, username string, password string) (domain.UserAccount, error) {
	if a.users == nil || username == "" || strings.TrimSpace(password) == "" {
		return domain.UserAccount{}, errInvalidCredentials
	}
	account, err := a.users.GetUser(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return domain.UserAccount{}, errInvalidCredentials
	}
	if err != nil {
		return domain.UserAccount{}, fmt.Errorf("load operator: %w", err)
	}

	if isPasswordHash(account.Password) {
		if bcrypt.CompareHashAndPassword([]byte(account.Password), []byte(password)) != nil {
			return domain.UserAccount{}, errInvalidCredentials
		}
	} else {
		if subtle.ConstantTimeCompare([]byte(account.Password), []byte(password)) != 1 {
			return domain.UserAccount{}, errInvalidCredentials
		}
		// A failed rewrite is retried on the next login.
		if hashed, err := hashPassword(password); err == nil {
			_ = a.users.UpdateUserPassword(ctx, account.Username, hashed)
		}
	}

	if !account.Active {
		return domain.UserAccount{}, errAccountInactive
	}
	return *account, nil
}

func (a *AuthManager) ParseToken(raw string) (domain.Actor, error) {
	claims := &operatorClaims{}
	token, err := jwtlib.ParseWithClaims(raw, claims, func(*jwtlib.Token) (any, error) {
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}), jwtlib.WithIssuer(tokenIssuer))
	if err != nil || !token.Valid {
		return domain.Actor{}, errInvalidToken
	}
	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return domain.Actor{}, errInvalidToken
	}
	return domain.Actor{Username: subject, Role: claims.Role}, nil
}

func (a *AuthManager) sign(username string, role string, expiresAt time.Time) (string, error) {
	claims := operatorClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   username,
			Issuer:    tokenIssuer,
			IssuedAt:  jwtlib.NewNumericDate(a.now()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
		},
		Role: role,
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(a.secret)
}

// CreateCashier registers an active cashier account. Duplicate usernames
// are refused by the store.
func (a *AuthManager) CreateCashier(ctx context.Context, req domain.CashierCreateRequest) (domain.CashierUser, error) {
	if a.users == nil {
		return domain.CashierUser{}, errNoUserStore
	}
	username := normalizeUsername(req.Username)
	if err := validateCashier(username, req.Password); err != nil {
		return domain.CashierUser{}, err
	}

	hashed, err := hashPassword(req.Password)
	if err != nil {
		return domain.CashierUser{}, fmt.Errorf("hash password: %w", err)
	}
	account := domain.UserAccount{
		Username:  username,
		Password:  hashed,
		Role:      domain.RoleCashier,
		Active:    true,
		CreatedAt: a.now(),
	}
	if err := a.users.CreateUser(ctx, account); err != nil {
		if errors.Is(err, store.ErrInvalidTransaction) {
			return domain.CashierUser{}, fmt.Errorf("%w: username %s already exists", store.ErrInvalidTransaction, username)
		}
		return domain.CashierUser{}, err
	}
	return cashierView(account), nil
}

func (a *AuthManager) ListCashiers(ctx context.Context) ([]domain.CashierUser, error) {
	if a.users == nil {
		return []domain.CashierUser{}, nil
	}
	accounts, err := a.users.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	cashiers := make([]domain.CashierUser, 0, len(accounts))
	for _, account := range accounts {
		if account.Role == domain.RoleCashier {
			cashiers = append(cashiers, cashierView(account))
		}
	}
	return cashiers, nil
}

func validateCashier(username string, password string) error {
	switch {
	case len(username) < minUsernameLength:
		return fmt.Errorf("%w: username must be at least %d characters", store.ErrInvalidTransaction, minUsernameLength)
	case strings.ContainsAny(username, " \t\r\n"):
		return fmt.Errorf("%w: username must not contain spaces", store.ErrInvalidTransaction)
	case len(strings.TrimSpace(password)) < minPasswordLength:
		return fmt.Errorf("%w: password must be at least %d characters", store.ErrInvalidTransaction, minPasswordLength)
	}
	return nil
}

func cashierView(account domain.UserAccount) domain.CashierUser {
	return domain.CashierUser{
		Username:  account.Username,
		Role:      account.Role,
		Active:    account.Active,
		CreatedAt: account.CreatedAt,
	}
}

func normalizeUsername(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func isPasswordHash(value string) bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}
	return false
}
