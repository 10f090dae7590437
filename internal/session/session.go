// Package session normalizes heterogeneous credential input into a single
// browser-context configuration. A bundle of unknown shape is classified once
// at this boundary into one of four variants (cookie string, session export,
// header bundle, login flow) and resolved into cookies, extra headers, and a
// storage seed. An unusable bundle degrades to an empty context; it is never
// fatal to the analysis.
package session

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Cookie is one discrete cookie to install before navigation.
type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
}

// StorageSeed holds key/value pairs written into web storage on the audited
// origin before any page script runs.
type StorageSeed struct {
	Local   map[string]string `json:"local,omitempty"`
	Session map[string]string `json:"session,omitempty"`
}

// LoginFlow describes a scripted form login. It is executed by the
// orchestrator in a short-lived browser context of its own so the audited
// page's context stays pristine.
type LoginFlow struct {
	URL              string `json:"url"`
	UsernameSelector string `json:"usernameSelector"`
	PasswordSelector string `json:"passwordSelector"`
	SubmitSelector   string `json:"submitSelector"`
	Username         string `json:"username"`
	Password         string `json:"password"`
}

// Context is the normalized session configuration consumed exactly once by
// the orchestrator before navigation.
type Context struct {
	Cookies      []Cookie
	ExtraHeaders map[string]string
	Storage      StorageSeed
	Login        *LoginFlow
}

// Empty reports whether the context carries no credential material at all.
func (c *Context) Empty() bool {
	if c == nil {
		return true
	}
	return len(c.Cookies) == 0 && len(c.ExtraHeaders) == 0 &&
		len(c.Storage.Local) == 0 && len(c.Storage.Session) == 0 && c.Login == nil
}

// Authenticated reports whether the context will present credentials to the
// audited page. Used by the engine to decide whether a redirect is a likely
// auth failure.
func (c *Context) Authenticated() bool {
	return !c.Empty()
}

// Build classifies an arbitrary credential bundle and resolves it against the
// target URL. A nil or unrecognized bundle yields an empty context and a nil
// error: absence of credentials is not a failure of this stage. An error is
// returned only when the bundle looked usable but was malformed, so the
// caller can log the degradation.
func Build(raw any, target *url.URL) (*Context, error) {
	bundle, err := Classify(raw)
	if err != nil {
		return &Context{}, err
	}
	if bundle == nil {
		return &Context{}, nil
	}
	return bundle.resolve(target)
}

// Bundle is the tagged union of recognized credential shapes.
type Bundle interface {
	// Kind names the variant for logging.
	Kind() string

	resolve(target *url.URL) (*Context, error)
}

// CookieStringBundle is a raw Cookie-header style string ("a=1; b=2").
type CookieStringBundle struct {
	Raw string
}

func (CookieStringBundle) Kind() string { return "cookie-string" }

func (b CookieStringBundle) resolve(target *url.URL) (*Context, error) {
	cookies := ParseCookieString(b.Raw, target.Hostname())
	if len(cookies) == 0 {
		return &Context{}, fmt.Errorf("cookie string contained no name=value pairs")
	}
	return &Context{Cookies: cookies}, nil
}

// SessionExportBundle is a structured export: origin plus cookies plus web
// storage, typically captured from a real logged-in browser.
type SessionExportBundle struct {
	Origin         string
	Cookies        []Cookie
	LocalStorage   map[string]string
	SessionStorage map[string]string
}

func (SessionExportBundle) Kind() string { return "session-export" }

func (b SessionExportBundle) resolve(target *url.URL) (*Context, error) {
	ctx := &Context{
		Storage: StorageSeed{Local: b.LocalStorage, Session: b.SessionStorage},
	}
	host := target.Hostname()
	for _, c := range b.Cookies {
		if c.Name == "" {
			continue
		}
		ctx.Cookies = append(ctx.Cookies, scopeCookie(c, host))
	}
	// Storage alone may never reach requests the engine issues directly, so a
	// bearer-shaped token found in storage is additionally promoted to an
	// Authorization header.
	if token := findBearerToken(b.LocalStorage, b.SessionStorage); token != "" {
		ctx.ExtraHeaders = map[string]string{"Authorization": "Bearer " + token}
	}
	return ctx, nil
}

// HeaderBundle is a set of request headers, e.g. parsed out of a captured
// authenticated request.
type HeaderBundle struct {
	Headers map[string]string
}

func (HeaderBundle) Kind() string { return "header-bundle" }

func (b HeaderBundle) resolve(target *url.URL) (*Context, error) {
	ctx := &Context{}
	for name, value := range b.Headers {
		switch strings.ToLower(name) {
		case "cookie":
			ctx.Cookies = append(ctx.Cookies, ParseCookieString(value, target.Hostname())...)
		default:
			if ctx.ExtraHeaders == nil {
				ctx.ExtraHeaders = make(map[string]string)
			}
			ctx.ExtraHeaders[canonicalHeaderName(name)] = value
		}
	}
	if ctx.Empty() {
		return ctx, fmt.Errorf("header bundle contained no usable headers")
	}
	return ctx, nil
}

// LoginFlowBundle wraps a login-form descriptor; execution is deferred to the
// orchestrator.
type LoginFlowBundle struct {
	Flow LoginFlow
}

func (LoginFlowBundle) Kind() string { return "login-flow" }

func (b LoginFlowBundle) resolve(_ *url.URL) (*Context, error) {
	if b.Flow.URL == "" || b.Flow.UsernameSelector == "" || b.Flow.PasswordSelector == "" {
		return &Context{}, fmt.Errorf("login flow descriptor is missing url or field selectors")
	}
	flow := b.Flow
	if flow.SubmitSelector == "" {
		flow.SubmitSelector = "[type=submit]"
	}
	return &Context{Login: &flow}, nil
}

// ParseCookieString splits a Cookie-header style string into discrete
// cookies scoped to the given host. Malformed fragments are skipped.
func ParseCookieString(raw, host string) []Cookie {
	var cookies []Cookie
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			continue
		}
		cookies = append(cookies, scopeCookie(Cookie{
			Name:  name,
			Value: strings.TrimSpace(value),
		}, host))
	}
	return cookies
}

// scopeCookie fills in domain and path defaults from the target host. A
// domain that is a bare public suffix (".com") would be rejected by the
// browser, so it is rescoped to the target host.
func scopeCookie(c Cookie, host string) Cookie {
	if c.Domain == "" {
		c.Domain = host
	} else if suffix, icann := publicsuffix.PublicSuffix(strings.TrimPrefix(c.Domain, ".")); icann && suffix == strings.TrimPrefix(c.Domain, ".") {
		c.Domain = host
	}
	if c.Path == "" {
		c.Path = "/"
	}
	return c
}

func canonicalHeaderName(name string) string {
	parts := strings.Split(name, "-")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + strings.ToLower(p[1:])
	}
	return strings.Join(parts, "-")
}
