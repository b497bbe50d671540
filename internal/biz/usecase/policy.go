package usecase

import (
	"sync"

	"github.com/devricklin/chatwarden/internal/biz/domain"
)

// PolicyStore holds per-conversation feature switches in memory
type PolicyStore struct {
	mu       sync.Mutex
	policies map[string]domain.GroupPolicy
}

// NewPolicyStore creates a policy store
func NewPolicyStore() *PolicyStore {
	return &PolicyStore{policies: make(map[string]domain.GroupPolicy)}
}

// Get returns the conversation's policy, storing defaults on first access
func (s *PolicyStore) Get(conversationID string) domain.GroupPolicy {
	key := domain.NormalizeID(conversationID)

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.policies[key]
	if !ok {
		p = domain.DefaultGroupPolicy()
		s.policies[key] = p
	}
	return p
}

// Update mutates the conversation's policy and returns the result
func (s *PolicyStore) Update(conversationID string, fn func(*domain.GroupPolicy)) domain.GroupPolicy {
	key := domain.NormalizeID(conversationID)

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.policies[key]
	if !ok {
		p = domain.DefaultGroupPolicy()
	}
	fn(&p)
	s.policies[key] = p
	return p
}
