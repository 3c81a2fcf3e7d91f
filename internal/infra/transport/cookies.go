package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// storedCookie is the persisted form of one session cookie. Only name
// and value survive persistence; scope attributes are reapplied when
// the cookies are set back against the base URL.
type storedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// encodeCookies serializes the jar's cookies for the base URL into the
// opaque blob stored alongside the session state. Returns nil when the
// jar holds nothing for the base URL.
func encodeCookies(jar http.CookieJar, base *url.URL) ([]byte, error) {
	cookies := jar.Cookies(base)
	if len(cookies) == 0 {
		return nil, nil
	}

	stored := make([]storedCookie, 0, len(cookies))
	for _, c := range cookies {
		stored = append(stored, storedCookie{Name: c.Name, Value: c.Value})
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session cookies: %w", err)
	}
	return data, nil
}

// decodeCookies restores a persisted cookie blob into the jar, scoped
// to the base URL. An empty blob is a no-op.
func decodeCookies(jar http.CookieJar, base *url.URL, blob []byte) error {
	if len(blob) == 0 {
		return nil
	}

	var stored []storedCookie
	if err := json.Unmarshal(blob, &stored); err != nil {
		return fmt.Errorf("failed to unmarshal session cookies: %w", err)
	}

	cookies := make([]*http.Cookie, 0, len(stored))
	for _, c := range stored {
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value, Path: "/"})
	}
	jar.SetCookies(base, cookies)
	return nil
}
