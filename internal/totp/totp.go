// Package totp computes RFC 6238 time-based one-time passwords for vault
// items that carry an otpauth secret.
package totp

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Algorithm selects the HMAC hash for code generation.
type Algorithm string

const (
	AlgorithmSHA1   Algorithm = "SHA1"
	AlgorithmSHA256 Algorithm = "SHA256"
	AlgorithmSHA512 Algorithm = "SHA512"
)

const (
	DefaultDigits = 6
	DefaultPeriod = 30
)

var (
	ErrEmptySecret  = errors.New("totp: empty or invalid secret")
	ErrNotTOTPURI   = errors.New("totp: not a valid TOTP URI")
	ErrBadAlgorithm = errors.New("totp: unsupported algorithm")
)

// Config describes one TOTP secret as stored inside a password item.
type Config struct {
	Secret    string    `json:"secret"` // base32, RFC 4648 alphabet
	Algorithm Algorithm `json:"algorithm"`
	Digits    int       `json:"digits"`
	Period    int       `json:"period"` // seconds
}

func (c Config) hashFunc() (func() hash.Hash, error) {
	switch c.Algorithm {
	case AlgorithmSHA1, "":
		return sha1.New, nil
	case AlgorithmSHA256:
		return sha256.New, nil
	case AlgorithmSHA512:
		return sha512.New, nil
	default:
		return nil, ErrBadAlgorithm
	}
}

// GenerateCode computes the code for the period containing at.
// An empty or fully-invalid secret yields an error, never a wrong code.
func GenerateCode(c Config, at time.Time) (string, error) {
	secret, err := decodeSecret(c.Secret)
	if err != nil {
		return "", err
	}
	defer zero(secret)

	h, err := c.hashFunc()
	if err != nil {
		return "", err
	}

	period := c.Period
	if period <= 0 {
		period = DefaultPeriod
	}
	digits := c.Digits
	if digits != 6 && digits != 8 {
		digits = DefaultDigits
	}

	counter := uint64(at.Unix() / int64(period))
	return computeCode(secret, counter, digits, h), nil
}

// computeCode is the RFC 4226 core: HMAC over the big-endian counter,
// dynamic truncation, modulo 10^digits.
func computeCode(secret []byte, counter uint64, digits int, h func() hash.Hash) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], counter)

	mac := hmac.New(h, secret)
	mac.Write(buf[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0F
	trunc := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7FFFFFFF

	mod := uint32(1)
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, trunc%mod)
}

// SecondsRemaining reports the number of whole seconds left in the period
// containing at. It decreases from period down to 1 within a period and
// resets to period at each boundary, which is what a countdown UI wants.
func SecondsRemaining(period int, at time.Time) int {
	if period <= 0 {
		period = DefaultPeriod
	}
	return period - int(at.Unix()%int64(period))
}

// Progress reports how far through the current period at is, in [0, 1).
func Progress(period int, at time.Time) float64 {
	if period <= 0 {
		period = DefaultPeriod
	}
	return float64(at.Unix()%int64(period)) / float64(period)
}

// ParseURI extracts a Config from an otpauth://totp/... URI
// (Google Authenticator convention). The secret parameter is required;
// algorithm, digits and period default to SHA1/6/30.
func ParseURI(raw string) (Config, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Config{}, ErrNotTOTPURI
	}
	if u.Scheme != "otpauth" || u.Host != "totp" {
		return Config{}, ErrNotTOTPURI
	}

	q := u.Query()
	secret := q.Get("secret")
	if secret == "" {
		return Config{}, ErrNotTOTPURI
	}
	// reject secrets that cannot decode at all up front
	if _, err := decodeSecret(secret); err != nil {
		return Config{}, ErrNotTOTPURI
	}

	cfg := Config{
		Secret:    secret,
		Algorithm: AlgorithmSHA1,
		Digits:    DefaultDigits,
		Period:    DefaultPeriod,
	}

	if a := q.Get("algorithm"); a != "" {
		switch Algorithm(strings.ToUpper(a)) {
		case AlgorithmSHA1:
			cfg.Algorithm = AlgorithmSHA1
		case AlgorithmSHA256:
			cfg.Algorithm = AlgorithmSHA256
		case AlgorithmSHA512:
			cfg.Algorithm = AlgorithmSHA512
		default:
			return Config{}, ErrNotTOTPURI
		}
	}
	if d := q.Get("digits"); d != "" {
		n, err := strconv.Atoi(d)
		if err != nil || (n != 6 && n != 8) {
			return Config{}, ErrNotTOTPURI
		}
		cfg.Digits = n
	}
	if p := q.Get("period"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			return Config{}, ErrNotTOTPURI
		}
		cfg.Period = n
	}

	return cfg, nil
}

// decodeSecret normalizes a stored secret and decodes it. Characters outside
// the RFC 4648 base32 alphabet (spaces, dashes, padding) are stripped first,
// case-insensitively.
func decodeSecret(secret string) ([]byte, error) {
	var b strings.Builder
	for _, r := range strings.ToUpper(secret) {
		if (r >= 'A' && r <= 'Z') || (r >= '2' && r <= '7') {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return nil, ErrEmptySecret
	}

	decoder := base32.StdEncoding.WithPadding(base32.NoPadding)
	out, err := decoder.DecodeString(cleaned)
	if err != nil || len(out) == 0 {
		return nil, ErrEmptySecret
	}
	return out, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
