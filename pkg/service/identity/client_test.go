package identity_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/m-mizutani/gt"

	"github.com/commune-lab/commune/pkg/domain/types"
	"github.com/commune-lab/commune/pkg/service/identity"
)

const testClientID = "test-client"

// authServer is a fake auth service: token endpoint, JWKS and logout
type authServer struct {
	*httptest.Server
	key         jwk.Key
	tokenCalls  atomic.Int32
	logoutCalls atomic.Int32
	lastGrant   atomic.Value
	tokenTTL    atomic.Int32
}

func newAuthServer(t *testing.T) *authServer {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	gt.NoError(t, err).Required()
	key, err := jwk.FromRaw(priv)
	gt.NoError(t, err).Required()
	gt.NoError(t, key.Set(jwk.KeyIDKey, "test-key"))
	gt.NoError(t, key.Set(jwk.AlgorithmKey, jwa.RS256))

	as := &authServer{key: key}
	as.tokenTTL.Store(3600)

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		as.tokenCalls.Add(1)
		gt.NoError(t, r.ParseForm())
		as.lastGrant.Store(r.PostFormValue("grant_type"))
		gt.Value(t, r.PostFormValue("client_id")).Equal(testClientID)

		tok, err := jwt.NewBuilder().
			Subject("subject-1").
			Audience([]string{testClientID}).
			IssuedAt(time.Now()).
			Expiration(time.Now().Add(time.Hour)).
			Claim("email", "one@x.com").
			Claim("name", "User One").
			Claim("picture", "https://img.example.com/one.png").
			Build()
		gt.NoError(t, err).Required()
		signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, as.key))
		gt.NoError(t, err).Required()

		gt.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-" + r.PostFormValue("grant_type"),
			"refresh_token": "refresh-token",
			"token_type":    "bearer",
			"expires_in":    as.tokenTTL.Load(),
			"id_token":      string(signed),
		}))
	})
	mux.HandleFunc("/.well-known/jwks.json", func(w http.ResponseWriter, r *http.Request) {
		pub, err := as.key.PublicKey()
		gt.NoError(t, err).Required()
		set := jwk.NewSet()
		gt.NoError(t, set.AddKey(pub))
		gt.NoError(t, json.NewEncoder(w).Encode(set))
	})
	mux.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) {
		as.logoutCalls.Add(1)
		gt.Value(t, r.Header.Get("Authorization")).Equal("Bearer access-authorization_code")
		w.WriteHeader(http.StatusNoContent)
	})

	as.Server = httptest.NewServer(mux)
	t.Cleanup(as.Server.Close)
	return as
}

func (as *authServer) config() identity.Config {
	return identity.Config{
		BaseURL:      as.URL,
		ClientID:     testClientID,
		ClientSecret: "test-secret",
		CallbackURL:  "http://127.0.0.1:4989/api/auth/callback",
	}
}

func TestClient_Exchange(t *testing.T) {
	as := newAuthServer(t)
	client, err := identity.New(as.config())
	gt.NoError(t, err).Required()

	sess, err := client.Exchange(context.Background(), types.AuthProviderGoogle, "auth-code")
	gt.NoError(t, err).Required()

	gt.Value(t, sess.Subject).Equal(types.SubjectID("subject-1"))
	gt.Value(t, sess.Email).Equal("one@x.com")
	gt.Value(t, sess.Name).Equal("User One")
	gt.Value(t, sess.AvatarURL).Equal("https://img.example.com/one.png")
	gt.Value(t, sess.Provider).Equal(types.AuthProviderGoogle)
	gt.Value(t, sess.AccessToken).Equal("access-authorization_code")
	gt.False(t, sess.IsExpired())
	gt.Value(t, as.lastGrant.Load()).Equal("authorization_code")

	t.Run("current session returns the exchanged session", func(t *testing.T) {
		current, err := client.CurrentSession(context.Background())
		gt.NoError(t, err).Required()
		gt.Value(t, current.Subject).Equal(sess.Subject)
		// no refresh needed, no extra token call
		gt.Number(t, as.tokenCalls.Load()).Equal(1)
	})

	t.Run("empty code is rejected", func(t *testing.T) {
		_, err := client.Exchange(context.Background(), types.AuthProviderGoogle, "")
		gt.Value(t, err).NotNil()
	})
}

func TestClient_Refresh(t *testing.T) {
	as := newAuthServer(t)
	as.tokenTTL.Store(1) // issued sessions expire almost immediately

	client, err := identity.New(as.config())
	gt.NoError(t, err).Required()

	_, err = client.Exchange(context.Background(), types.AuthProviderGoogle, "auth-code")
	gt.NoError(t, err).Required()

	time.Sleep(1100 * time.Millisecond)
	as.tokenTTL.Store(3600)

	sess, err := client.CurrentSession(context.Background())
	gt.NoError(t, err).Required()
	gt.Value(t, sess).NotNil()
	gt.Value(t, sess.AccessToken).Equal("access-refresh_token")
	gt.Value(t, as.lastGrant.Load()).Equal("refresh_token")
}

func TestClient_SignOut(t *testing.T) {
	as := newAuthServer(t)
	client, err := identity.New(as.config())
	gt.NoError(t, err).Required()

	sess, err := client.Exchange(context.Background(), types.AuthProviderGoogle, "auth-code")
	gt.NoError(t, err).Required()

	gt.NoError(t, client.SignOut(context.Background(), sess))
	gt.Number(t, as.logoutCalls.Load()).Equal(1)

	current, err := client.CurrentSession(context.Background())
	gt.NoError(t, err)
	gt.Value(t, current).Nil()
}

func TestClient_AuthURL(t *testing.T) {
	as := newAuthServer(t)
	client, err := identity.New(as.config())
	gt.NoError(t, err).Required()

	u, err := client.AuthURL(types.AuthProviderGitHub, "state-123")
	gt.NoError(t, err).Required()
	gt.String(t, u).Contains(as.URL + "/authorize?")
	gt.String(t, u).Contains("provider=github")
	gt.String(t, u).Contains("state=state-123")
	gt.String(t, u).Contains("client_id=" + testClientID)

	_, err = client.AuthURL("facebook", "state-123")
	gt.Value(t, err).NotNil()
}

func TestConfig_Validate(t *testing.T) {
	cfg := identity.Config{}
	gt.Value(t, cfg.Validate()).NotNil()

	cfg = identity.Config{
		BaseURL:      "https://auth.example.com",
		ClientID:     "id",
		ClientSecret: "secret",
		CallbackURL:  "https://app.example.com/cb",
	}
	gt.NoError(t, cfg.Validate())
}
