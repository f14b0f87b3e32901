package identity

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/m-mizutani/goerr/v2"

	"github.com/commune-lab/commune/pkg/domain/interfaces"
	"github.com/commune-lab/commune/pkg/domain/model"
	"github.com/commune-lab/commune/pkg/domain/types"
	"github.com/commune-lab/commune/pkg/utils/safe"
)

// Config holds the auth service endpoints and OAuth client credentials
type Config struct {
	BaseURL      string `toml:"base_url"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	CallbackURL  string `toml:"callback_url"`
	// JWKSURL overrides the default <base_url>/.well-known/jwks.json
	JWKSURL string `toml:"jwks_url"`
}

// Validate checks if the Config is complete
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return goerr.New("identity base_url is required")
	}
	if c.ClientID == "" {
		return goerr.New("identity client_id is required")
	}
	if c.ClientSecret == "" {
		return goerr.New("identity client_secret is required")
	}
	if c.CallbackURL == "" {
		return goerr.New("identity callback_url is required")
	}
	return nil
}

func (c *Config) jwksURL() string {
	if c.JWKSURL != "" {
		return c.JWKSURL
	}
	return strings.TrimRight(c.BaseURL, "/") + "/.well-known/jwks.json"
}

// Client talks to the external auth service. It keeps the active session
// in memory: the provider owns token issuance, this client only holds
// the issued bundle and refreshes it when it expires.
type Client struct {
	cfg        Config
	httpClient *http.Client

	mu      sync.Mutex
	current *model.Session
}

var _ interfaces.IdentityProvider = &Client{}

// New creates an identity client from the validated config
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid identity config")
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// AuthURL returns the provider's authorization URL
func (c *Client) AuthURL(provider types.AuthProvider, state string) (string, error) {
	if !provider.IsValid() {
		return "", goerr.New("unsupported auth provider", goerr.V("provider", provider))
	}

	params := url.Values{}
	params.Set("provider", provider.String())
	params.Set("client_id", c.cfg.ClientID)
	params.Set("redirect_uri", c.cfg.CallbackURL)
	params.Set("response_type", "code")
	params.Set("scope", "openid email profile")
	params.Set("state", state)

	return strings.TrimRight(c.cfg.BaseURL, "/") + "/authorize?" + params.Encode(), nil
}

// tokenResponse is the auth service's token endpoint response
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	IDToken      string `json:"id_token"`
	Error        string `json:"error"`
}

// Exchange trades an authorization code for a verified session
func (c *Client) Exchange(ctx context.Context, provider types.AuthProvider, code string) (*model.Session, error) {
	if code == "" {
		return nil, goerr.New("authorization code is required")
	}

	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", c.cfg.CallbackURL)

	resp, err := c.token(ctx, data)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to exchange code for token")
	}

	sess, err := c.sessionFromTokens(ctx, provider, resp)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.current = sess
	c.mu.Unlock()

	return sess, nil
}

// CurrentSession returns the active session, refreshing expired
// credentials through the provider. (nil, nil) when signed out.
func (c *Client) CurrentSession(ctx context.Context) (*model.Session, error) {
	c.mu.Lock()
	sess := c.current
	c.mu.Unlock()

	if sess == nil {
		return nil, nil
	}
	if !sess.IsExpired() {
		return sess, nil
	}
	if sess.RefreshToken == "" {
		return nil, nil
	}

	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", sess.RefreshToken)

	resp, err := c.token(ctx, data)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to refresh session")
	}

	refreshed, err := c.sessionFromTokens(ctx, sess.Provider, resp)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.current = refreshed
	c.mu.Unlock()

	return refreshed, nil
}

// SignOut revokes the session with the auth service and drops it locally
func (c *Client) SignOut(ctx context.Context, sess *model.Session) error {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()

	if sess == nil || sess.AccessToken == "" {
		return nil
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/logout"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to create logout request")
	}
	req.Header.Set("Authorization", "Bearer "+sess.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return goerr.Wrap(err, "failed to call logout endpoint")
	}
	defer safe.Close(ctx, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return goerr.New("logout failed", goerr.V("status", resp.StatusCode))
	}
	return nil
}

// token calls the token endpoint with client credentials attached
func (c *Client) token(ctx context.Context, data url.Values) (*tokenResponse, error) {
	data.Set("client_id", c.cfg.ClientID)
	data.Set("client_secret", c.cfg.ClientSecret)

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/token"
	encoded := data.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(encoded))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.ContentLength = int64(len(encoded))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "token request failed")
	}
	defer safe.Close(ctx, resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read token response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, goerr.New("token endpoint returned error",
			goerr.V("status", resp.StatusCode), goerr.V("body", string(body)))
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, goerr.Wrap(err, "failed to parse token response")
	}
	if tokenResp.Error != "" {
		return nil, goerr.New("auth service error", goerr.V("error", tokenResp.Error))
	}
	return &tokenResp, nil
}

// sessionFromTokens verifies the ID token against the provider JWKS and
// builds the session
func (c *Client) sessionFromTokens(ctx context.Context, provider types.AuthProvider, resp *tokenResponse) (*model.Session, error) {
	claims, err := c.verifyIDToken(ctx, resp.IDToken)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to verify ID token")
	}

	sess := model.NewSession(types.SubjectID(claims.Sub), provider, claims.Email, claims.Name)
	sess.AvatarURL = claims.Picture
	sess.AccessToken = resp.AccessToken
	sess.RefreshToken = resp.RefreshToken
	if resp.ExpiresIn > 0 {
		sess.ExpiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}

	if err := sess.Validate(); err != nil {
		return nil, goerr.Wrap(err, "auth service returned invalid identity")
	}
	return sess, nil
}

// idTokenClaims are the claims this client needs from the ID token
type idTokenClaims struct {
	Sub     string
	Email   string
	Name    string
	Picture string
}

// verifyIDToken parses and validates the JWT against the provider's
// published keys. 10 seconds of clock skew is tolerated.
func (c *Client) verifyIDToken(ctx context.Context, idToken string) (*idTokenClaims, error) {
	if idToken == "" {
		return nil, goerr.New("ID token is missing from token response")
	}

	keySet, err := jwk.Fetch(ctx, c.cfg.jwksURL())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to fetch provider JWKS", goerr.V("jwks_url", c.cfg.jwksURL()))
	}

	token, err := jwt.Parse([]byte(idToken),
		jwt.WithKeySet(keySet),
		jwt.WithValidate(true),
		jwt.WithAudience(c.cfg.ClientID),
		jwt.WithAcceptableSkew(10*time.Second),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse or verify ID token")
	}

	claims := &idTokenClaims{Sub: token.Subject()}
	if claims.Sub == "" {
		return nil, goerr.New("sub claim not found in ID token")
	}

	if v, ok := token.Get("email"); ok {
		if s, ok := v.(string); ok {
			claims.Email = s
		}
	}
	if claims.Email == "" {
		return nil, goerr.New("email claim not found in ID token")
	}

	// name and picture are optional profile metadata; registration
	// fallbacks apply when they are absent
	if v, ok := token.Get("name"); ok {
		if s, ok := v.(string); ok {
			claims.Name = s
		}
	}
	if v, ok := token.Get("picture"); ok {
		if s, ok := v.(string); ok {
			claims.Picture = s
		}
	}

	return claims, nil
}
