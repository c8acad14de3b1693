package cookies

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SignedPrefix marks a value produced by Sign
const SignedPrefix = "s:"

// ErrBadSignature indicates a signed value whose signature does not match
var ErrBadSignature = errors.New("cookie signature mismatch")

// Sign returns "s:" + value + "." + base64(HMAC-SHA256(value)) without padding.
// The format is readable by cookie-parser based services sharing the secret.
func Sign(value string, secret []byte) string {
	return SignedPrefix + value + "." + mac(value, secret)
}

// Unsign verifies a value produced by Sign and returns the original
func Unsign(signed string, secret []byte) (string, error) {
	body, ok := strings.CutPrefix(signed, SignedPrefix)
	if !ok {
		return "", ErrBadSignature
	}
	dot := strings.LastIndexByte(body, '.')
	if dot < 0 {
		return "", ErrBadSignature
	}

	value, sig := body[:dot], body[dot+1:]
	if !hmac.Equal([]byte(sig), []byte(mac(value, secret))) {
		return "", ErrBadSignature
	}
	return value, nil
}

func mac(value string, secret []byte) string {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(value))
	return base64.RawStdEncoding.EncodeToString(h.Sum(nil))
}

// Config describes the auth cookies
type Config struct {
	RefreshName string
	AccessName  string
	Secret      string // empty disables signing
	RefreshTTL  time.Duration
	AccessTTL   time.Duration
	Secure      bool
}

// Value is a cookie read from a request
type Value struct {
	Err    error // set when a signed value failed verification
	Raw    string
	Signed bool
}

// Jar reads and writes the refresh and access cookies
type Jar struct {
	secret []byte
	cfg    Config
}

// NewJar creates a jar; names default to "rt" and "AT"
func NewJar(cfg Config) *Jar {
	if cfg.RefreshName == "" {
		cfg.RefreshName = "rt"
	}
	if cfg.AccessName == "" {
		cfg.AccessName = "AT"
	}

	j := &Jar{cfg: cfg}
	if cfg.Secret != "" {
		j.secret = []byte(cfg.Secret)
	}
	return j
}

// RefreshName returns the refresh cookie name
func (j *Jar) RefreshName() string {
	return j.cfg.RefreshName
}

// AccessName returns the access cookie name
func (j *Jar) AccessName() string {
	return j.cfg.AccessName
}

// Signing reports whether a cookie secret is configured
func (j *Jar) Signing() bool {
	return len(j.secret) > 0
}

// Read returns the named cookie. ok is false if the cookie is absent or empty.
// Signed values are verified when a secret is configured.
func (j *Jar) Read(r *http.Request, name string) (Value, bool) {
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return Value{}, false
	}

	raw := c.Value
	if decoded, err := url.PathUnescape(raw); err == nil {
		raw = decoded
	}

	if !j.Signing() || !strings.HasPrefix(raw, SignedPrefix) {
		return Value{Raw: raw}, true
	}

	value, err := Unsign(raw, j.secret)
	if err != nil {
		return Value{Signed: true, Err: err}, true
	}
	return Value{Raw: value, Signed: true}, true
}

// Refresh returns the verified refresh secret, or "" if absent or tampered
func (j *Jar) Refresh(r *http.Request) string {
	v, ok := j.Read(r, j.cfg.RefreshName)
	if !ok || v.Err != nil {
		return ""
	}
	return v.Raw
}

// SetRefresh writes the refresh cookie
func (j *Jar) SetRefresh(w http.ResponseWriter, raw string) {
	j.set(w, j.cfg.RefreshName, raw, j.cfg.RefreshTTL)
}

// ClearRefresh expires the refresh cookie
func (j *Jar) ClearRefresh(w http.ResponseWriter) {
	j.clear(w, j.cfg.RefreshName)
}

// SetAccess writes the access cookie used by rendered pages
func (j *Jar) SetAccess(w http.ResponseWriter, token string) {
	j.set(w, j.cfg.AccessName, token, j.cfg.AccessTTL)
}

// ClearAccess expires the access cookie
func (j *Jar) ClearAccess(w http.ResponseWriter) {
	j.clear(w, j.cfg.AccessName)
}

func (j *Jar) set(w http.ResponseWriter, name, value string, ttl time.Duration) {
	if j.Signing() {
		value = Sign(value, j.secret)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   j.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (j *Jar) clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   j.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
