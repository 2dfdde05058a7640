package session

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/titanous/json5"

	"github.com/WessleyAI/threadharvest/engine/browser"
)

// DefaultCookieDomain is used for exported cookies without a domain.
const DefaultCookieDomain = ".facebook.com"

// cookieRecord is one entry of a browser-extension cookie export.
type cookieRecord struct {
	Name           string   `json:"name"`
	Value          string   `json:"value"`
	Domain         string   `json:"domain"`
	Path           string   `json:"path"`
	SameSite       string   `json:"sameSite"`
	Secure         *bool    `json:"secure"`
	HTTPOnly       bool     `json:"httpOnly"`
	ExpirationDate *float64 `json:"expirationDate"`
}

// LoadCookies reads a JSON or JSON5 cookie export from path.
func LoadCookies(path string) ([]browser.Cookie, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cookies, err := ParseCookies(b)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cookies, nil
}

// ParseCookies normalizes a cookie export. It accepts a bare array or an
// object with a "cookies" array. Entries without a name or value are
// dropped.
func ParseCookies(data []byte) ([]browser.Cookie, error) {
	var recs []cookieRecord
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapped struct {
			Cookies []cookieRecord `json:"cookies"`
		}
		if err := json5.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, err
		}
		recs = wrapped.Cookies
	} else if err := json5.Unmarshal(data, &recs); err != nil {
		return nil, err
	}

	out := make([]browser.Cookie, 0, len(recs))
	for _, r := range recs {
		if r.Name == "" || r.Value == "" {
			continue
		}
		out = append(out, normalizeCookie(r))
	}
	return out, nil
}

func normalizeCookie(r cookieRecord) browser.Cookie {
	c := browser.Cookie{
		Name:     r.Name,
		Value:    r.Value,
		Domain:   r.Domain,
		Path:     r.Path,
		SameSite: sameSite(r.SameSite),
		Secure:   true,
		HTTPOnly: r.HTTPOnly,
	}
	switch {
	case c.Domain == "":
		c.Domain = DefaultCookieDomain
	case !strings.HasPrefix(c.Domain, "."):
		c.Domain = "." + c.Domain
	}
	if c.Path == "" {
		c.Path = "/"
	}
	if r.Secure != nil {
		c.Secure = *r.Secure
	}
	if r.ExpirationDate != nil && *r.ExpirationDate > 0 {
		sec, frac := math.Modf(*r.ExpirationDate)
		c.Expires = time.Unix(int64(sec), int64(frac*1e9)).UTC()
	}
	return c
}

func sameSite(v string) browser.SameSite {
	switch strings.ToLower(v) {
	case "strict":
		return browser.SameSiteStrict
	case "none", "no_restriction":
		return browser.SameSiteNone
	default:
		return browser.SameSiteLax
	}
}
