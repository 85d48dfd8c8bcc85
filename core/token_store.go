package core

import (
	"context"
	"sync"
)

// TokenSnapshot is a consistent read of the store. Generation increases by one
// on every successful authenticate or refresh.
type TokenSnapshot struct {
	Token      TokenPair
	Generation uint64
}

// TokenStore holds the immutable client credentials and the single current
// token pair. Readers always observe a whole pair; refreshes are serialized.
type TokenStore struct {
	credentials Credentials

	mu         sync.RWMutex
	token      TokenPair
	generation uint64

	refreshMu sync.Mutex
}

func NewTokenStore(creds Credentials) *TokenStore {
	return &TokenStore{credentials: creds.normalized()}
}

func (s *TokenStore) Credentials() Credentials {
	if s == nil {
		return Credentials{}
	}
	return s.credentials
}

func (s *TokenStore) Token() TokenPair {
	return s.Snapshot().Token
}

func (s *TokenStore) Snapshot() TokenSnapshot {
	if s == nil {
		return TokenSnapshot{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return TokenSnapshot{
		Token: TokenPair{
			AccessToken:  s.token.AccessToken,
			RefreshToken: s.token.RefreshToken,
			ExpiresAt:    cloneTimePointer(s.token.ExpiresAt),
		},
		Generation: s.generation,
	}
}

func (s *TokenStore) Ready() bool {
	return s.Token().Complete()
}

// Replace swaps the whole pair. Incomplete pairs are rejected and leave the
// current pair untouched.
func (s *TokenStore) Replace(pair TokenPair) error {
	if s == nil {
		return NewInternalError("core: token store is nil", nil)
	}
	if !pair.Complete() {
		return NewAuthError(nil, "core: token pair requires access and refresh values", 0, nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = TokenPair{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    cloneTimePointer(pair.ExpiresAt),
	}
	s.generation++
	return nil
}

func (s *TokenStore) Authenticate(ctx context.Context, authority TokenAuthority) (TokenPair, error) {
	if s == nil {
		return TokenPair{}, NewInternalError("core: token store is nil", nil)
	}
	if authority == nil {
		return TokenPair{}, NewInternalError("core: token authority is required", nil)
	}
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	pair, err := authority.Authenticate(ctx)
	if err != nil {
		return TokenPair{}, classifyAuthError(err, "core: authenticate")
	}
	if err := s.Replace(pair); err != nil {
		return TokenPair{}, err
	}
	return s.Token(), nil
}

// Refresh exchanges the current refresh value for a new pair, unless the pair
// already moved past observedGeneration while the caller waited for the
// refresh lock. In that case the newer pair is returned and refreshed is false.
// When the identity endpoint answers but refuses the refresh grant, the
// pair is re-acquired with the client credentials in the same step.
func (s *TokenStore) Refresh(
	ctx context.Context,
	authority TokenAuthority,
	observedGeneration uint64,
) (pair TokenPair, refreshed bool, err error) {
	if s == nil {
		return TokenPair{}, false, NewInternalError("core: token store is nil", nil)
	}
	if authority == nil {
		return TokenPair{}, false, NewInternalError("core: token authority is required", nil)
	}
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	current := s.Snapshot()
	if !current.Token.Complete() {
		return TokenPair{}, false, NewAuthError(nil, "core: token store is not authenticated", 0, nil)
	}
	if current.Generation != observedGeneration {
		return current.Token, false, nil
	}

	next, err := authority.Refresh(ctx, current.Token)
	switch {
	case err == nil:
		next = current.Token.Merge(next)
	case IsRefreshRejected(err):
		// the refresh value expired or was revoked; the client credentials
		// are still good for a new pair
		next, err = authority.Authenticate(ctx)
		if err != nil {
			return current.Token, false, classifyAuthError(err, "core: re-authenticate after rejected refresh")
		}
	default:
		return current.Token, false, classifyAuthError(err, "core: refresh token")
	}
	if err := s.Replace(next); err != nil {
		return current.Token, false, err
	}
	return s.Token(), true, nil
}
