package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// HashKey creates a SHA256 hash of a string.
// This is useful for creating consistent, safe keys for Redis.
func HashKey(s string) string {
	h := sha256.New()
	h.Write([]byte(s))
	return hex.EncodeToString(h.Sum(nil))
}

// ToAbsoluteURL converts a relative URL to an absolute URL given a base URL.
func ToAbsoluteURL(base *url.URL, relative string) (string, error) {
	relURL, err := url.Parse(relative)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(relURL).String(), nil
}

// UnwrapRedirect returns the target of a search-engine redirect link such as
// "/url?q=https://example.com&sa=U", or link unchanged.
func UnwrapRedirect(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	if u.Path != "/url" && !strings.HasSuffix(u.Path, "/l/") {
		return link
	}
	for _, key := range []string{"q", "url", "uddg"} {
		if target := u.Query().Get(key); strings.HasPrefix(target, "http") {
			return target
		}
	}
	return link
}
