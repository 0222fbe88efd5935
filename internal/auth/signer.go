// AngelaMos | 2026
// signer.go

package auth

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/TatyOko28/refresh-system/internal/config"
	"github.com/TatyOko28/refresh-system/internal/core"
	"github.com/TatyOko28/refresh-system/internal/middleware"
)

const accessTokenUse = "access"

// Signer mints and checks ES256 access tokens.
type Signer struct {
	private jwk.Key
	public  jwk.Key
	jwks    jwk.Set
	keyID   string
	cfg     config.TokenConfig
	now     func() time.Time
}

func LoadSigner(cfg config.TokenConfig) (*Signer, error) {
	pem, err := os.ReadFile(cfg.SigningKeyPath)
	if err != nil {
		return nil, fmt.Errorf("signer: read %s: %w", cfg.SigningKeyPath, err)
	}
	return NewSigner(pem, cfg)
}

func NewSigner(privatePEM []byte, cfg config.TokenConfig) (*Signer, error) {
	private, err := jwk.ParseKey(privatePEM, jwk.WithPEM(true))
	if err != nil {
		return nil, fmt.Errorf("signer: parse key: %w", err)
	}

	keyID, err := thumbprintID(private)
	if err != nil {
		return nil, err
	}
	if err := stamp(private, keyID); err != nil {
		return nil, err
	}

	public, err := private.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("signer: public key: %w", err)
	}
	if err := public.Set(jwk.KeyUsageKey, "sig"); err != nil {
		return nil, fmt.Errorf("signer: key usage: %w", err)
	}

	set := jwk.NewSet()
	if err := set.AddKey(public); err != nil {
		return nil, fmt.Errorf("signer: jwks: %w", err)
	}

	return &Signer{
		private: private,
		public:  public,
		jwks:    set,
		keyID:   keyID,
		cfg:     cfg,
		now:     time.Now,
	}, nil
}

// thumbprintID derives a key id that survives restarts: the first 16
// characters of the RFC 7638 thumbprint.
func thumbprintID(key jwk.Key) (string, error) {
	sum, err := key.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("signer: thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(sum)[:16], nil
}

func stamp(key jwk.Key, keyID string) error {
	if err := key.Set(jwk.AlgorithmKey, jwa.ES256()); err != nil {
		return fmt.Errorf("signer: algorithm: %w", err)
	}
	if err := key.Set(jwk.KeyIDKey, keyID); err != nil {
		return fmt.Errorf("signer: key id: %w", err)
	}
	return nil
}

// WriteKeyPair creates a fresh P-256 key pair and stores both halves as
// PEM. The private file is owner-only.
func WriteKeyPair(privatePath, publicPath string) error {
	raw, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("keypair: generate: %w", err)
	}

	private, err := jwk.Import(raw)
	if err != nil {
		return fmt.Errorf("keypair: import: %w", err)
	}
	keyID, err := thumbprintID(private)
	if err != nil {
		return err
	}
	if err := stamp(private, keyID); err != nil {
		return err
	}

	public, err := private.PublicKey()
	if err != nil {
		return fmt.Errorf("keypair: public key: %w", err)
	}

	files := []struct {
		path string
		key  jwk.Key
		mode os.FileMode
	}{
		{privatePath, private, 0o600},
		{publicPath, public, 0o644},
	}
	for _, f := range files {
		pem, err := jwk.Pem(f.key)
		if err != nil {
			return fmt.Errorf("keypair: encode %s: %w", f.path, err)
		}
		if err := os.WriteFile(f.path, pem, f.mode); err != nil {
			return fmt.Errorf("keypair: write %s: %w", f.path, err)
		}
	}

	return nil
}

// Sign issues an access token for the account.
func (s *Signer) Sign(acct *Account) (string, time.Time, error) {
	issued := s.now()
	expires := issued.Add(s.cfg.AccessTTL)

	tok, err := jwt.NewBuilder().
		JwtID(uuid.NewString()).
		Issuer(s.cfg.Issuer).
		Audience([]string{s.cfg.Audience}).
		Subject(acct.ID).
		IssuedAt(issued).
		NotBefore(issued).
		Expiration(expires).
		Claim("role", acct.Role).
		Claim("use", accessTokenUse).
		Build()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign: build: %w", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.ES256(), s.private))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign: %w", err)
	}

	return string(signed), expires, nil
}

// Verify checks signature, issuer, audience and time claims. Every failure
// maps onto core.ErrTokenExpired or core.ErrTokenInvalid.
func (s *Signer) Verify(raw string) (*middleware.Principal, error) {
	tok, err := jwt.Parse([]byte(raw),
		jwt.WithKey(jwa.ES256(), s.public),
		jwt.WithValidate(true),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithAudience(s.cfg.Audience),
		jwt.WithClock(jwt.ClockFunc(s.now)),
	)
	if err != nil {
		if errors.Is(err, jwt.TokenExpiredError()) {
			return nil, fmt.Errorf("verify: %w", core.ErrTokenExpired)
		}
		return nil, fmt.Errorf("verify: %w: %w", core.ErrTokenInvalid, err)
	}

	var use, role string
	if err := tok.Get("use", &use); err != nil || use != accessTokenUse {
		return nil, fmt.Errorf("verify: token use: %w", core.ErrTokenInvalid)
	}
	if err := tok.Get("role", &role); err != nil {
		return nil, fmt.Errorf("verify: role: %w", core.ErrTokenInvalid)
	}

	subject, _ := tok.Subject()
	jti, _ := tok.JwtID()
	if subject == "" || jti == "" {
		return nil, fmt.Errorf("verify: sub or jti: %w", core.ErrTokenInvalid)
	}
	expires, _ := tok.Expiration()

	return &middleware.Principal{
		UserID:    subject,
		Role:      role,
		TokenID:   jti,
		ExpiresAt: expires,
	}, nil
}

// JWKS serves the public key set.
func (s *Signer) JWKS(w http.ResponseWriter, _ *http.Request) {
	body, err := json.Marshal(s.jwks)
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(body) //nolint:errcheck // client went away
}

func (s *Signer) KeyID() string { return s.keyID }

func (s *Signer) AccessTTL() time.Duration { return s.cfg.AccessTTL }
