// Package token inspects bearer tokens locally.
//
// It decodes the claims segment of a compact three-part token and computes
// expiry facts without any network call. No signature verification is
// performed: the results are an expiry heuristic for the client, not a
// security boundary.
package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultThreshold is the default "expires soon" window.
const DefaultThreshold = 5 * time.Minute

// ErrMalformed is returned when a token is not made of exactly three
// dot-separated segments.
var ErrMalformed = errors.New("token: malformed, expected three segments")

// Claims are the fields the identity backend embeds in its tokens.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Info aggregates everything known about a token at one instant.
type Info struct {
	// Claims is nil when the token could not be decoded.
	Claims                 *Claims
	Expired                bool
	SecondsToExpiry        int64
	ExpiresWithinThreshold bool
}

// Inspector decodes tokens and evaluates their expiry.
// It is safe for concurrent use.
type Inspector struct {
	now       func() time.Time
	threshold time.Duration
	parser    *jwt.Parser
}

// Option configures the Inspector.
type Option func(*Inspector)

// WithClock sets the time source. Default: time.Now.
func WithClock(now func() time.Time) Option {
	return func(i *Inspector) { i.now = now }
}

// WithThreshold sets the window used by ExpiresWithinThreshold and Info.
// Default: 5 minutes.
func WithThreshold(d time.Duration) Option {
	return func(i *Inspector) { i.threshold = d }
}

// NewInspector creates a token inspector.
func NewInspector(opts ...Option) *Inspector {
	i := &Inspector{
		now:       time.Now,
		threshold: DefaultThreshold,
		parser:    jwt.NewParser(jwt.WithPaddingAllowed()),
	}
	for _, o := range opts {
		o(i)
	}
	return i
}

// Threshold returns the configured "expires soon" window.
func (i *Inspector) Threshold() time.Duration { return i.threshold }

// Decode extracts the claims of token without verifying its signature.
func (i *Inspector) Decode(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrMalformed
	}

	payload, err := i.parser.DecodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("token: decode payload: %w", err)
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("token: parse claims: %w", err)
	}
	return &claims, nil
}

// IsExpired reports whether token is expired at the current time.
// Undecodable tokens and tokens without an exp claim count as expired.
func (i *Inspector) IsExpired(token string) bool {
	return i.Info(token).Expired
}

// SecondsToExpiry returns the whole seconds left before token expires,
// never negative. It returns 0 for undecodable tokens.
func (i *Inspector) SecondsToExpiry(token string) int64 {
	return i.Info(token).SecondsToExpiry
}

// ExpiresWithin reports whether token expires within d from now.
func (i *Inspector) ExpiresWithin(token string, d time.Duration) bool {
	return i.SecondsToExpiry(token) <= int64(d/time.Second)
}

// ExpiresWithinThreshold reports whether token expires within the
// inspector's threshold.
func (i *Inspector) ExpiresWithinThreshold(token string) bool {
	return i.Info(token).ExpiresWithinThreshold
}

// Info decodes token once and derives every expiry fact from it.
func (i *Inspector) Info(token string) Info {
	claims, err := i.Decode(token)
	if err != nil {
		return Info{Expired: true, ExpiresWithinThreshold: true}
	}
	return i.evaluate(claims)
}

func (i *Inspector) evaluate(claims *Claims) Info {
	info := Info{Claims: claims, Expired: true}
	if claims.ExpiresAt != nil {
		now := i.now().Unix()
		exp := claims.ExpiresAt.Unix()
		info.Expired = now >= exp
		if !info.Expired {
			info.SecondsToExpiry = exp - now
		}
	}
	info.ExpiresWithinThreshold = info.SecondsToExpiry <= int64(i.threshold/time.Second)
	return info
}
