package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// DefaultAccounts are provisioned when the configuration declares none.
func DefaultAccounts() []AccountConfig {
	return []AccountConfig{
		{Username: "user", Password: "userpass", Roles: []string{RoleUser}},
		{Username: "admin", Password: "adminpass", Roles: []string{RoleUser, RoleAdmin}},
	}
}

// Account is an authenticated principal.
type Account struct {
	Username string
	hash     []byte
	roles    map[string]struct{}
}

// HasRole reports whether the account was granted the role.
func (a *Account) HasRole(role string) bool {
	_, ok := a.roles[role]
	return ok
}

// Accounts is the read-only registry of known principals.
type Accounts struct {
	byName map[string]*Account
	// compared against for unknown usernames so both paths cost one bcrypt check.
	dummy []byte
}

// NewAccounts builds the registry from configuration. Plain passwords are
// hashed here and never kept.
func NewAccounts(configs []AccountConfig, cost int) (*Accounts, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cost)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to prepare hashes: %w", err)
	}

	accounts := &Accounts{byName: make(map[string]*Account, len(configs)), dummy: dummy}
	for _, c := range configs {
		if c.Username == "" {
			return nil, errors.New("auth: account without username")
		}
		if _, exists := accounts.byName[c.Username]; exists {
			return nil, fmt.Errorf("auth: duplicate account %q", c.Username)
		}

		var hash []byte
		switch {
		case c.PasswordHash != "":
			if _, err = bcrypt.Cost([]byte(c.PasswordHash)); err != nil {
				return nil, fmt.Errorf("auth: invalid password hash for %q: %w", c.Username, err)
			}
			hash = []byte(c.PasswordHash)
		case c.Password != "":
			if hash, err = bcrypt.GenerateFromPassword([]byte(c.Password), cost); err != nil {
				return nil, fmt.Errorf("auth: failed to hash password for %q: %w", c.Username, err)
			}
		default:
			return nil, fmt.Errorf("auth: account %q has no password", c.Username)
		}

		roles := make(map[string]struct{}, len(c.Roles))
		for _, r := range c.Roles {
			roles[strings.ToUpper(strings.TrimSpace(r))] = struct{}{}
		}
		accounts.byName[c.Username] = &Account{Username: c.Username, hash: hash, roles: roles}
	}
	return accounts, nil
}

// Authenticate checks the credentials against the registry.
func (a *Accounts) Authenticate(username, password string) (*Account, error) {
	account, ok := a.byName[username]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(a.dummy, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(account.hash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return account, nil
}

// AccessRule grants access to requests matching Method and Pattern. An empty
// Method matches every method. Pattern follows path.Match, and a trailing
// "/**" matches the whole subtree. Role is only checked when Public is false;
// an empty Role then means any authenticated account.
type AccessRule struct {
	Method  string
	Pattern string
	Public  bool
	Role    string
}

func (ar AccessRule) matches(method, p string) bool {
	if ar.Method != "" && ar.Method != method {
		return false
	}
	if prefix, ok := strings.CutSuffix(ar.Pattern, "/**"); ok {
		return p == prefix || strings.HasPrefix(p, prefix+"/")
	}
	ok, err := path.Match(ar.Pattern, p)
	return err == nil && ok
}

// AccessPolicy is an ordered list of rules. The first matching rule applies.
type AccessPolicy struct {
	rules []AccessRule
}

func NewAccessPolicy(rules ...AccessRule) *AccessPolicy {
	return &AccessPolicy{rules: rules}
}

// DefaultAccessPolicy opens catalog browsing to everyone, restricts stock
// changes and ops to admins and asks for an account everywhere else.
func DefaultAccessPolicy() *AccessPolicy {
	return NewAccessPolicy(
		AccessRule{Method: http.MethodGet, Pattern: "/", Public: true},
		AccessRule{Method: http.MethodGet, Pattern: "/status", Public: true},
		AccessRule{Method: http.MethodGet, Pattern: "/api/books", Public: true},
		AccessRule{Method: http.MethodGet, Pattern: "/api/books/available", Public: true},
		AccessRule{Method: http.MethodPut, Pattern: "/api/books/*/quantity", Role: RoleAdmin},
		AccessRule{Pattern: "/ops/**", Role: RoleAdmin},
		AccessRule{Pattern: "/**"},
	)
}

// Match returns the rule applying to the request. Requests matching no rule
// require authentication.
func (ap *AccessPolicy) Match(method, p string) AccessRule {
	for _, rule := range ap.rules {
		if rule.matches(method, p) {
			return rule
		}
	}
	return AccessRule{Pattern: p}
}

// AccessControlMiddleware authenticates HTTP Basic credentials when provided
// and enforces the access policy. Wrong credentials are rejected on every route.
func (api *APIHandler) AccessControlMiddleware(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		requestID := GetValueFromContext(r.Context(), ContextRequestID)
		logger := api.GetLoggerFromContext(r.Context())
		rule := api.policy.Match(r.Method, r.URL.Path)

		var account *Account
		if username, password, ok := r.BasicAuth(); ok {
			acc, err := api.accounts.Authenticate(username, password)
			if err != nil {
				logger.Warn("authentication failed", zap.String("request.user", username))
				api.writeUnauthorized(w, r, requestID)
				return
			}
			account = acc
			logger = logger.With(zap.String("request.user", acc.Username))
			ctx := context.WithValue(r.Context(), ContextRequestUser, acc.Username)
			ctx = context.WithValue(ctx, LoggerContextKey, logger)
			r = r.WithContext(ctx)
		}

		switch {
		case rule.Public:
		case account == nil:
			logger.Info("authentication required", zap.String("rule", rule.Pattern))
			api.writeUnauthorized(w, r, requestID)
			return
		case rule.Role != "" && !account.HasRole(rule.Role):
			logger.Warn("access denied", zap.String("rule", rule.Pattern), zap.String("role.required", rule.Role))
			errResp := NewAPIError(requestID, http.StatusForbidden, "access denied", EmptyData)
			if err := WriteErrorResponse(r.Context(), w, errResp); err != nil {
				logger.Error("failed to send error response", zap.Error(err))
			}
			return
		}

		if account != nil {
			logger.Debug("request authenticated")
		}
		next(w, r, ps)
	}
}

func (api *APIHandler) writeUnauthorized(w http.ResponseWriter, r *http.Request, requestID string) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", api.config.Auth.Realm))
	errResp := NewAPIError(requestID, http.StatusUnauthorized, "authentication required", EmptyData)
	if err := WriteErrorResponse(r.Context(), w, errResp); err != nil {
		api.logger.Error("failed to send error response", zap.String("request.id", requestID), zap.Error(err))
	}
}
