package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Claims is the payload of an admin token.
type Claims map[string]any

// Int64Claim returns a numeric claim. JSON numbers decode as float64, so both
// forms are accepted.
func (c Claims) Int64Claim(key string) (int64, bool) {
	switch v := c[key].(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case uint:
		return int64(v), true
	default:
		return 0, false
	}
}

// StringClaim returns a string claim.
func (c Claims) StringClaim(key string) (string, bool) {
	v, ok := c[key].(string)
	return v, ok
}

// ErrInvalidToken is the single outcome callers act on. The wrapped variants
// only exist so failures can be told apart in logs.
var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrTokenMalformed = fmt.Errorf("%w: malformed", ErrInvalidToken)
	ErrTokenSignature = fmt.Errorf("%w: signature mismatch", ErrInvalidToken)
	ErrTokenExpired   = fmt.Errorf("%w: expired", ErrInvalidToken)
)

const (
	tokenType   = "JWT"
	tokenAlgo   = "HS256"
	claimExpiry = "exp"
)

var segmentEncoding = base64.RawURLEncoding

type tokenHeader struct {
	Typ string `json:"typ"`
	Alg string `json:"alg"`
}

// TokenService issues and verifies compact HS256 tokens. It holds no state
// besides its secret, so tokens cannot be revoked before they expire.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	clock  Clock
}

// NewTokenService builds a TokenService. A nil clock means the wall clock.
func NewTokenService(secret string, ttl time.Duration, clock Clock) *TokenService {
	if clock == nil {
		clock = RealClock()
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, clock: clock}
}

// TTL is the lifetime given to every issued token.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue signs claims with an exp of now+TTL. Any exp already present in
// claims is overwritten; the caller's map is not modified.
func (s *TokenService) Issue(claims Claims) (string, error) {
	payload := make(Claims, len(claims)+1)
	for k, v := range claims {
		payload[k] = v
	}
	payload[claimExpiry] = s.clock.Now().Add(s.ttl).Unix()

	headerJSON, err := json.Marshal(tokenHeader{Typ: tokenType, Alg: tokenAlgo})
	if err != nil {
		return "", err
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode claims: %w", err)
	}

	signingInput := segmentEncoding.EncodeToString(headerJSON) + "." + segmentEncoding.EncodeToString(payloadJSON)
	return signingInput + "." + s.sign(signingInput), nil
}

// Verify checks structure, signature and expiry and returns the claims,
// including exp. Every failure wraps ErrInvalidToken.
func (s *TokenService) Verify(token string) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrTokenMalformed
	}

	expected := s.sign(parts[0] + "." + parts[1])
	if subtle.ConstantTimeCompare([]byte(expected), []byte(parts[2])) != 1 {
		return nil, ErrTokenSignature
	}

	var header tokenHeader
	if err := decodeSegment(parts[0], &header); err != nil || header.Alg != tokenAlgo {
		return nil, ErrTokenMalformed
	}

	var claims Claims
	if err := decodeSegment(parts[1], &claims); err != nil || claims == nil {
		return nil, ErrTokenMalformed
	}

	if raw, ok := claims[claimExpiry]; ok {
		exp, ok := raw.(float64)
		if !ok {
			return nil, ErrTokenMalformed
		}
		if float64(s.clock.Now().Unix()) >= exp {
			return nil, ErrTokenExpired
		}
	}

	return claims, nil
}

func (s *TokenService) sign(signingInput string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(signingInput))
	return segmentEncoding.EncodeToString(mac.Sum(nil))
}

func decodeSegment(segment string, out any) error {
	raw, err := segmentEncoding.DecodeString(segment)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
