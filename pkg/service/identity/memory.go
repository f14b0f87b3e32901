package identity

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/commune-lab/commune/pkg/domain/interfaces"
	"github.com/commune-lab/commune/pkg/domain/model"
	"github.com/commune-lab/commune/pkg/domain/types"
)

// Memory is an in-process identity provider for development and tests.
// Exchange accepts any non-empty code and mints a session for the
// configured identity.
type Memory struct {
	mu      sync.Mutex
	current *model.Session

	// Identity fields used to mint sessions. Zero values fall back to
	// a generated subject.
	Subject   types.SubjectID
	Email     string
	Name      string
	AvatarURL string

	// TTL controls minted session lifetime. Zero means one hour.
	TTL time.Duration
}

var _ interfaces.IdentityProvider = &Memory{}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) AuthURL(provider types.AuthProvider, state string) (string, error) {
	if !provider.IsValid() {
		return "", goerr.New("unsupported auth provider", goerr.V("provider", provider))
	}
	params := url.Values{}
	params.Set("provider", provider.String())
	params.Set("state", state)
	return "memory://authorize?" + params.Encode(), nil
}

func (m *Memory) Exchange(ctx context.Context, provider types.AuthProvider, code string) (*model.Session, error) {
	if code == "" {
		return nil, goerr.New("authorization code is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	subject := m.Subject
	if subject == "" {
		subject = types.SubjectID("memory-" + uuid.NewString())
	}
	email := m.Email
	if email == "" {
		email = string(subject) + "@example.com"
	}
	ttl := m.TTL
	if ttl == 0 {
		ttl = time.Hour
	}

	sess := model.NewSession(subject, provider, email, m.Name)
	sess.AvatarURL = m.AvatarURL
	sess.AccessToken = "memory-access-" + uuid.NewString()
	sess.RefreshToken = "memory-refresh-" + uuid.NewString()
	sess.ExpiresAt = time.Now().Add(ttl)

	m.current = sess
	return sess, nil
}

func (m *Memory) CurrentSession(ctx context.Context) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil, nil
	}
	if m.current.IsExpired() {
		if m.current.RefreshToken == "" {
			return nil, nil
		}
		ttl := m.TTL
		if ttl == 0 {
			ttl = time.Hour
		}
		refreshed := *m.current
		refreshed.AccessToken = "memory-access-" + uuid.NewString()
		refreshed.ExpiresAt = time.Now().Add(ttl)
		m.current = &refreshed
	}
	return m.current, nil
}

// SetSession installs a session directly, bypassing the exchange flow
func (m *Memory) SetSession(sess *model.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = sess
}

func (m *Memory) SignOut(ctx context.Context, sess *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
	return nil
}
