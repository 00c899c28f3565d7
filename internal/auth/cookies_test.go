package auth

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
)

func browserCookie(name, value, domain string, expires float64) *network.Cookie {
	return &network.Cookie{
		Name:         name,
		Value:        value,
		Domain:       domain,
		Path:         "/",
		Expires:      expires,
		Secure:       true,
		SameSite:     network.CookieSameSiteLax,
		Priority:     network.CookiePriorityMedium,
		SourceScheme: network.CookieSourceSchemeSecure,
		SourcePort:   443,
	}
}

func sessionCookies(exp time.Time) []*network.Cookie {
	return []*network.Cookie{
		browserCookie(CookieSession, "AQE", ".www.linkedin.com", float64(exp.Unix())),
		browserCookie(CookieCSRF, "ajax:1", ".www.linkedin.com", float64(exp.Add(time.Hour).Unix())),
		browserCookie("lang", "v=2", ".linkedin.com", -1),
		browserCookie("tracker", "x", ".example.com", -1),
	}
}

func TestCookieStore_RoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cs := NewCookieStore(filepath.Join(t.TempDir(), "cookies.json"))
	cs.now = func() time.Time { return now }

	if cs.IsValid() {
		t.Fatal("empty store should not be valid")
	}
	if err := cs.Save(sessionCookies(now.Add(24 * time.Hour))); err != nil {
		t.Fatal(err)
	}
	if _, err := cs.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cs.IsValid() {
		t.Fatal("fresh session should be valid")
	}

	stored, err := cs.Load()
	if err != nil {
		t.Fatal(err)
	}
	if !stored.ExpiresAt.Equal(now.Add(24 * time.Hour)) {
		t.Fatalf("ExpiresAt = %v, want earliest session cookie", stored.ExpiresAt)
	}

	li, err := cs.LinkedInCookies()
	if err != nil {
		t.Fatal(err)
	}
	if len(li) != 3 {
		t.Fatalf("got %d linkedin cookies, want 3", len(li))
	}

	now = now.Add(25 * time.Hour)
	if cs.IsValid() {
		t.Fatal("expired session should not be valid")
	}
}

func TestCookieStore_MissingCSRFInvalid(t *testing.T) {
	cs := NewCookieStore(filepath.Join(t.TempDir(), "cookies.json"))
	exp := time.Now().Add(time.Hour)
	if err := cs.Save(sessionCookies(exp)[:1]); err != nil {
		t.Fatal(err)
	}
	stored, err := cs.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(stored.Cookies) != 1 || stored.Cookies[0].Name != CookieSession {
		t.Fatalf("stored = %+v", stored.Cookies)
	}
	if cs.IsValid() {
		t.Fatal("session without JSESSIONID should not be valid")
	}
}

func TestCookieStore_ClearTwice(t *testing.T) {
	cs := NewCookieStore(filepath.Join(t.TempDir(), "cookies.json"))
	if err := cs.Save(sessionCookies(time.Now().Add(time.Hour))); err != nil {
		t.Fatal(err)
	}
	if err := cs.Clear(); err != nil {
		t.Fatal(err)
	}
	if err := cs.Clear(); err != nil {
		t.Fatalf("second Clear: %v", err)
	}
	if _, err := NewManager(cs).Cookies(); err != ErrNotLoggedIn {
		t.Fatalf("Cookies after logout = %v", err)
	}
}
