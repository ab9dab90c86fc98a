package client

import (
	"sync"
)

// MockState is an in-memory test implementation of StateInterface
type MockState struct {
	mu sync.RWMutex

	// In-memory storage
	config      map[string]string
	contacts    map[string][]Contact
	connections map[string]string
	dir         string

	// Error injection
	getConfigErr   error
	setConfigErr   error
	loadContactErr error
	saveContactErr error
}

// NewMockState creates a new mock state
func NewMockState() *MockState {
	return &MockState{
		config:      make(map[string]string),
		contacts:    make(map[string][]Contact),
		connections: make(map[string]string),
		dir:         "/tmp/mock-state",
	}
}

// GetConfig retrieves a configuration value
func (s *MockState) GetConfig(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.getConfigErr != nil {
		return "", s.getConfigErr
	}
	return s.config[key], nil
}

// SetConfig stores a configuration value
func (s *MockState) SetConfig(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.setConfigErr != nil {
		return s.setConfigErr
	}
	s.config[key] = value
	return nil
}

// GetLastIdentity returns the identity of the last session
func (s *MockState) GetLastIdentity() string {
	identity, _ := s.GetConfig("last_identity")
	return identity
}

// SetLastIdentity stores the identity of the current session
func (s *MockState) SetLastIdentity(identity string) error {
	return s.SetConfig("last_identity", identity)
}

// LoadContacts returns owner's contacts in display order
func (s *MockState) LoadContacts(owner string) ([]Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.loadContactErr != nil {
		return nil, s.loadContactErr
	}
	out := make([]Contact, len(s.contacts[owner]))
	copy(out, s.contacts[owner])
	return out, nil
}

// SaveContact appends a contact unless owner already has it
func (s *MockState) SaveContact(owner string, contact Contact, position int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.saveContactErr != nil {
		return s.saveContactErr
	}
	for _, c := range s.contacts[owner] {
		if c.ID == contact.ID {
			return nil
		}
	}
	s.contacts[owner] = append(s.contacts[owner], contact)
	return nil
}

// SetContactUnread updates the unread flag of a stored contact
func (s *MockState) SetContactUnread(owner, id string, unread bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.contacts[owner] {
		if s.contacts[owner][i].ID == id {
			s.contacts[owner][i].HasUnread = unread
		}
	}
	return nil
}

// GetLastSuccessfulEndpoint retrieves the last endpoint recorded for identity
func (s *MockState) GetLastSuccessfulEndpoint(identity string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connections[identity], nil
}

// SaveSuccessfulConnection records a successful connection
func (s *MockState) SaveSuccessfulConnection(identity, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[identity] = endpoint
	return nil
}

// GetStateDir returns the mock state directory
func (s *MockState) GetStateDir() string {
	return s.dir
}

// Close is a no-op
func (s *MockState) Close() error {
	return nil
}

// SetGetConfigError injects an error for GetConfig
func (s *MockState) SetGetConfigError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getConfigErr = err
}

// SetSetConfigError injects an error for SetConfig
func (s *MockState) SetSetConfigError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setConfigErr = err
}

// SetLoadContactsError injects an error for LoadContacts
func (s *MockState) SetLoadContactsError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadContactErr = err
}

// SetSaveContactError injects an error for SaveContact
func (s *MockState) SetSaveContactError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveContactErr = err
}
