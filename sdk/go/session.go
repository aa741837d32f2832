package collabsdk

import "sync"

// Session holds the two bearer tokens a user may carry. The local token
// unlocks project management and metrics, the cloud token unlocks the
// collaboration endpoints. A zero Session is logged out.
type Session struct {
	mu    sync.RWMutex
	local string
	cloud string
}

func NewSession(localToken, cloudToken string) *Session {
	return &Session{local: localToken, cloud: cloudToken}
}

func (s *Session) HasLocalAuth() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.local != ""
}

func (s *Session) HasCloudAuth() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cloud != ""
}

func (s *Session) LocalToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.local
}

func (s *Session) CloudToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cloud
}

// SetTokens replaces both tokens. An empty string drops that tier.
func (s *Session) SetTokens(localToken, cloudToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.local = localToken
	s.cloud = cloudToken
}

// Clear logs the session out of both tiers.
func (s *Session) Clear() {
	s.SetTokens("", "")
}

func (s *Session) token(t tier) string {
	switch t {
	case tierLocal:
		return s.LocalToken()
	case tierCloud:
		return s.CloudToken()
	default:
		return ""
	}
}
