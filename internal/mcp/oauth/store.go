package oauth

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Store tracks validated caller tokens in memory, keyed by user identifier.
// It exists so revocation can find a user's current token and so expired
// entries are dropped without waiting for the next request.
type Store struct {
	mu              sync.RWMutex
	userTokens      map[string]string    // user identifier -> raw access token
	tokenExpiries   map[string]time.Time // user identifier -> token expiry
	cleanupInterval time.Duration
	logger          *slog.Logger
	done            chan struct{}
}

// NewStore creates a new in-memory token store with the default cleanup interval
func NewStore() *Store {
	return NewStoreWithInterval(DefaultCleanupInterval)
}

// NewStoreWithInterval creates a new in-memory token store with a custom cleanup interval
func NewStoreWithInterval(cleanupInterval time.Duration) *Store {
	s := &Store{
		userTokens:      make(map[string]string),
		tokenExpiries:   make(map[string]time.Time),
		cleanupInterval: cleanupInterval,
		logger:          slog.Default(),
		done:            make(chan struct{}),
	}

	go s.cleanupExpiredTokens()

	return s
}

// SetLogger sets a custom logger for the store
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// Close stops the background cleanup goroutine
func (s *Store) Close() {
	close(s.done)
}

// SaveUserToken records the caller's current access token. The expiry is
// read from the token's exp claim without re-verifying the signature; the
// middleware has already validated it.
func (s *Store) SaveUserToken(user, accessToken string) error {
	if user == "" {
		return fmt.Errorf("user identifier cannot be empty")
	}
	if accessToken == "" {
		return fmt.Errorf("access token cannot be empty")
	}

	expiry := tokenExpiry(accessToken)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.userTokens[user] = accessToken
	s.tokenExpiries[user] = expiry
	s.logger.Debug("Tracked user token", "user", user, "expiry", expiry)
	return nil
}

// GetUserToken retrieves the tracked token for a user
func (s *Store) GetUserToken(user string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.userTokens[user]
	if !ok {
		return "", fmt.Errorf("no token tracked for user: %s", user)
	}

	if expiry, hasExpiry := s.tokenExpiries[user]; hasExpiry && !expiry.IsZero() {
		if expiry.Before(time.Now()) {
			return "", fmt.Errorf("token expired for user: %s", user)
		}
	}

	return token, nil
}

// DeleteUserToken removes the tracked token for a user and returns it so
// the caller can evict downstream caches keyed by the same token.
func (s *Store) DeleteUserToken(user string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.userTokens[user]
	if !ok {
		return "", fmt.Errorf("no token tracked for user: %s", user)
	}

	delete(s.userTokens, user)
	delete(s.tokenExpiries, user)
	s.logger.Info("Deleted tracked token", "user", user)
	return token, nil
}

// Stats returns statistics about the store
func (s *Store) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]int{
		"user_tokens": len(s.userTokens),
	}
}

// cleanupExpiredTokens periodically removes expired tokens.
// Expiry is re-checked under the write lock since a user may have presented
// a fresh token between the scan and the delete.
func (s *Store) cleanupExpiredTokens() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		s.mu.RLock()
		var expired []string
		now := time.Now()
		for user, expiry := range s.tokenExpiries {
			if !expiry.IsZero() && expiry.Before(now) {
				expired = append(expired, user)
			}
		}
		s.mu.RUnlock()

		if len(expired) == 0 {
			continue
		}

		s.mu.Lock()
		current := time.Now()
		for _, user := range expired {
			if expiry, ok := s.tokenExpiries[user]; ok && !expiry.IsZero() && expiry.Before(current) {
				delete(s.userTokens, user)
				delete(s.tokenExpiries, user)
				s.logger.Debug("Cleaned up expired token", "user", user)
			}
		}
		s.mu.Unlock()
	}
}

// tokenExpiry reads the exp claim without verifying the signature.
// Returns the zero time when the token cannot be parsed.
func tokenExpiry(accessToken string) time.Time {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
