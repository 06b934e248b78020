// Package auth resolves S3 access keys to secrets and verifies request
// signatures against them.
package auth

import (
	"sync"
)

// Principal identifies the credential a request was authenticated as.
type Principal struct {
	Name      string
	AccessKey string
}

// Credential pairs an access key with its secret. Name is optional and
// only used for logging.
type Credential struct {
	Name      string
	AccessKey string
	SecretKey string
}

// Store holds the set of known credentials. It is safe for concurrent
// use; lookups take a read lock so they do not serialize behind each
// other.
type Store struct {
	mu    sync.RWMutex
	byKey map[string]Credential
}

func NewStore(creds []Credential) *Store {
	byKey := make(map[string]Credential, len(creds))
	for _, c := range creds {
		byKey[c.AccessKey] = c
	}
	return &Store{byKey: byKey}
}

// Lookup returns the secret and principal for an access key.
func (s *Store) Lookup(accessKey string) (string, Principal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byKey[accessKey]
	if !ok {
		return "", Principal{}, false
	}
	return c.SecretKey, Principal{Name: c.Name, AccessKey: c.AccessKey}, true
}

// Add registers a credential, replacing any existing entry for the same
// access key.
func (s *Store) Add(c Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey[c.AccessKey] = c
}

// Remove deletes the credential for an access key. Removing an unknown
// key is a no-op.
func (s *Store) Remove(accessKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byKey, accessKey)
}

// Len reports the number of stored credentials.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byKey)
}
