// AngelaMos | 2026
// security.go

package core

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

var ErrMalformedHash = errors.New("malformed password hash")

// PasswordParams are the argon2id cost settings encoded into every hash.
type PasswordParams struct {
	Memory  uint32
	Time    uint32
	Threads uint8
	KeyLen  uint32
	SaltLen int
}

var DefaultPasswordParams = PasswordParams{
	Memory:  64 * 1024,
	Time:    1,
	Threads: 4,
	KeyLen:  32,
	SaltLen: 16,
}

// HashPassword returns a PHC-style argon2id string:
// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<key>
func HashPassword(password string) (string, error) {
	return DefaultPasswordParams.hash(password)
}

func (p PasswordParams) hash(password string) (string, error) {
	salt := make([]byte, p.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("password salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, p.KeyLen)

	var b strings.Builder
	b.WriteString("$argon2id$v=")
	b.WriteString(strconv.Itoa(argon2.Version))
	fmt.Fprintf(&b, "$m=%d,t=%d,p=%d$", p.Memory, p.Time, p.Threads)
	b.WriteString(base64.RawStdEncoding.EncodeToString(salt))
	b.WriteByte('$')
	b.WriteString(base64.RawStdEncoding.EncodeToString(key))
	return b.String(), nil
}

// CheckPassword compares password with an encoded hash. stale reports that
// the hash was made with parameters other than the current defaults.
func CheckPassword(password, encoded string) (ok, stale bool, err error) {
	p, salt, key, err := parsePasswordHash(encoded)
	if err != nil {
		return false, false, err
	}

	got := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, p.KeyLen)
	if subtle.ConstantTimeCompare(key, got) != 1 {
		return false, false, nil
	}

	def := DefaultPasswordParams
	stale = p.Memory != def.Memory || p.Time != def.Time ||
		p.Threads != def.Threads || p.KeyLen != def.KeyLen
	return true, stale, nil
}

// VerifyPassword is CheckPassword without the staleness report.
func VerifyPassword(password, encoded string) (bool, error) {
	ok, _, err := CheckPassword(password, encoded)
	return ok, err
}

var (
	decoyOnce sync.Once
	decoyHash string
)

// CheckPasswordOrDecoy spends the same work whether or not an account
// exists. An empty encoded hash is checked against a decoy and never
// matches.
func CheckPasswordOrDecoy(password, encoded string) (ok, stale bool) {
	if encoded == "" {
		decoyOnce.Do(func() {
			decoyHash, _ = HashPassword("decoy") //nolint:errcheck // crypto/rand failure leaves an empty decoy
		})
		_, _, _ = CheckPassword(password, decoyHash) //nolint:errcheck // result discarded
		return false, false
	}

	ok, stale, err := CheckPassword(password, encoded)
	if err != nil {
		return false, false
	}
	return ok, stale
}

func parsePasswordHash(encoded string) (PasswordParams, []byte, []byte, error) {
	var p PasswordParams

	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != "argon2id" {
		return p, nil, nil, ErrMalformedHash
	}
	if fields[2] != "v="+strconv.Itoa(argon2.Version) {
		return p, nil, nil, fmt.Errorf("%w: version %q", ErrMalformedHash, fields[2])
	}

	for _, kv := range strings.Split(fields[3], ",") {
		name, raw, found := strings.Cut(kv, "=")
		if !found {
			return p, nil, nil, ErrMalformedHash
		}
		n, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return p, nil, nil, fmt.Errorf("%w: %s", ErrMalformedHash, kv)
		}
		switch name {
		case "m":
			p.Memory = uint32(n)
		case "t":
			p.Time = uint32(n)
		case "p":
			if n > 255 {
				return p, nil, nil, fmt.Errorf("%w: %s", ErrMalformedHash, kv)
			}
			p.Threads = uint8(n)
		default:
			return p, nil, nil, fmt.Errorf("%w: %s", ErrMalformedHash, kv)
		}
	}
	if p.Memory == 0 || p.Time == 0 || p.Threads == 0 {
		return p, nil, nil, ErrMalformedHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(fields[4])
	if err != nil {
		return p, nil, nil, fmt.Errorf("%w: salt", ErrMalformedHash)
	}
	key, err := base64.RawStdEncoding.DecodeString(fields[5])
	if err != nil || len(key) == 0 {
		return p, nil, nil, fmt.Errorf("%w: key", ErrMalformedHash)
	}

	p.SaltLen = len(salt)
	p.KeyLen = uint32(len(key)) //nolint:gosec // key length is a few dozen bytes
	return p, salt, key, nil
}

// NewOpaqueToken returns 32 random bytes, base64url encoded. Only its
// DigestToken value is ever stored.
func NewOpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("opaque token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func DigestToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// CodeAlphabet is the referral code character set.
const CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandomString draws length characters uniformly from alphabet using r.
// A nil reader means crypto/rand.
func RandomString(r io.Reader, length int, alphabet string) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("random string: length must be positive")
	}
	if alphabet == "" {
		return "", fmt.Errorf("random string: empty alphabet")
	}
	if r == nil {
		r = rand.Reader
	}

	max := big.NewInt(int64(len(alphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(r, max)
		if err != nil {
			return "", fmt.Errorf("random string: %w", err)
		}
		out[i] = alphabet[n.Int64()]
	}

	return string(out), nil
}
