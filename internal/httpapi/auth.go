package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"snackkit/backend/internal/domain"
	"snackkit/backend/internal/store"
)

var (
	ErrAuth              = errors.New("authentication failed")
	ErrAlreadyRegistered = fmt.Errorf("%w: email already registered", ErrAuth)
	ErrDemoDisabled      = errors.New("demo account is not configured")

	errInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrAuth)
	errInvalidToken       = fmt.Errorf("%w: invalid or expired token", ErrAuth)
)

const (
	minPasswordLength = 8
	tokenIssuer       = "snackkit"
)

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
}

// AuthManager is the identity provider: password accounts, signed access
// tokens, sign-out by token id and session change notifications.
type AuthManager struct {
	mu           sync.Mutex
	secret       []byte
	tokenTTL     time.Duration
	users        UserStore
	revoked      map[string]time.Time
	listeners    map[int]func(domain.SessionEvent)
	nextListener int
	demoEmail    string
	demoPassword string
	bcryptCost   int
}

func NewAuthManager(secret string, tokenTTL time.Duration, users UserStore) *AuthManager {
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &AuthManager{
		secret:     []byte(secret),
		tokenTTL:   tokenTTL,
		users:      users,
		revoked:    make(map[string]time.Time),
		listeners:  make(map[int]func(domain.SessionEvent)),
		bcryptCost: bcrypt.DefaultCost,
	}
}

// SetDemoAccount enables the shared demo login. Empty values disable it.
func (a *AuthManager) SetDemoAccount(email string, password string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.demoEmail = normalizeEmail(email)
	a.demoPassword = password
}

func (a *AuthManager) DemoEnabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.demoEmail != "" && a.demoPassword != ""
}

// OnSessionChange registers fn for sign-in and sign-out events and returns
// a function that removes it.
func (a *AuthManager) OnSessionChange(fn func(domain.SessionEvent)) func() {
	a.mu.Lock()
	id := a.nextListener
	a.nextListener++
	a.listeners[id] = fn
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.listeners, id)
			a.mu.Unlock()
		})
	}
}

func (a *AuthManager) SignUp(ctx context.Context, req domain.CredentialsRequest) error {
	email := normalizeEmail(req.Email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return fmt.Errorf("%w: a valid email is required", store.ErrValidation)
	}
	if len(req.Password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", store.ErrValidation, minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), a.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	err = a.users.CreateUser(ctx, domain.UserAccount{
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	})
	if errors.Is(err, store.ErrConflict) {
		return ErrAlreadyRegistered
	}
	return err
}

func (a *AuthManager) SignIn(ctx context.Context, req domain.CredentialsRequest) (domain.SessionResponse, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return domain.SessionResponse{}, errInvalidCredentials
	}

	user, err := a.users.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return domain.SessionResponse{}, errInvalidCredentials
	}
	if err != nil {
		return domain.SessionResponse{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return domain.SessionResponse{}, errInvalidCredentials
	}

	now := time.Now().UTC()
	expiresAt := now.Add(a.tokenTTL)
	token, err := a.sign(user.Email, now, expiresAt)
	if err != nil {
		return domain.SessionResponse{}, err
	}

	a.emit(domain.SessionEvent{Type: domain.SessionSignedIn, Email: user.Email, At: now})
	return domain.SessionResponse{
		AccessToken: token,
		Email:       user.Email,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

// DemoSignIn provisions the shared demo account on first use and signs in.
func (a *AuthManager) DemoSignIn(ctx context.Context) (domain.SessionResponse, error) {
	a.mu.Lock()
	creds := domain.CredentialsRequest{Email: a.demoEmail, Password: a.demoPassword}
	a.mu.Unlock()
	if creds.Email == "" || creds.Password == "" {
		return domain.SessionResponse{}, ErrDemoDisabled
	}

	if err := a.SignUp(ctx, creds); err != nil && !errors.Is(err, ErrAlreadyRegistered) {
		return domain.SessionResponse{}, err
	}
	return a.SignIn(ctx, creds)
}

// SignOut revokes the token until it would have expired anyway.
func (a *AuthManager) SignOut(tokenStr string) error {
	claims, err := a.parse(tokenStr)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	a.mu.Lock()
	for id, exp := range a.revoked {
		if now.After(exp) {
			delete(a.revoked, id)
		}
	}
	a.revoked[claims.ID] = claims.ExpiresAt.Time
	a.mu.Unlock()

	a.emit(domain.SessionEvent{Type: domain.SessionSignedOut, Email: claims.Subject, At: now})
	return nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims, err := a.parse(tokenStr)
	if err != nil {
		return domain.Actor{}, err
	}
	return domain.Actor{Email: claims.Subject, TokenID: claims.ID}, nil
}

// Session reports who a still-valid token belongs to.
func (a *AuthManager) Session(tokenStr string) (domain.SessionResponse, error) {
	claims, err := a.parse(tokenStr)
	if err != nil {
		return domain.SessionResponse{}, err
	}
	return domain.SessionResponse{
		AccessToken: tokenStr,
		Email:       claims.Subject,
		ExpiresAt:   claims.ExpiresAt.Time.UTC().Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) parse(tokenStr string) (*jwtlib.RegisteredClaims, error) {
	claims := &jwtlib.RegisteredClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer(tokenIssuer), jwtlib.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, errInvalidToken
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, errInvalidToken
	}

	a.mu.Lock()
	_, revoked := a.revoked[claims.ID]
	a.mu.Unlock()
	if revoked {
		return nil, errInvalidToken
	}
	return claims, nil
}

func (a *AuthManager) sign(email string, issuedAt time.Time, expiresAt time.Time) (string, error) {
	claims := jwtlib.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   email,
		IssuedAt:  jwtlib.NewNumericDate(issuedAt),
		ExpiresAt: jwtlib.NewNumericDate(expiresAt),
		Issuer:    tokenIssuer,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *AuthManager) emit(event domain.SessionEvent) {
	a.mu.Lock()
	listeners := make([]func(domain.SessionEvent), 0, len(a.listeners))
	for _, fn := range a.listeners {
		listeners = append(listeners, fn)
	}
	a.mu.Unlock()

	for _, fn := range listeners {
		fn(event)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
