package auth

import "net/url"

// CookieSettings contains cookie security settings derived from the base URL.
type CookieSettings struct {
	// Secure indicates whether the cookie should only be sent over HTTPS.
	Secure bool
	// Domain is the cookie domain scope. Empty means host-only.
	Domain string
}

// DeriveCookieSettings determines cookie settings for the OAuth state cookie.
// HTTP is only tolerated for localhost development; any other scheme or an
// unparseable base URL defaults to Secure.
func DeriveCookieSettings(baseURL, configCookieDomain string) CookieSettings {
	parsed, err := url.Parse(baseURL)
	if err != nil || baseURL == "" {
		return CookieSettings{Secure: true, Domain: configCookieDomain}
	}

	return CookieSettings{
		Secure: parsed.Scheme != "http",
		Domain: configCookieDomain,
	}
}
