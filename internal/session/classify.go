package session

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Classify inspects a credential bundle of unknown shape and returns the
// matching variant, or nil when the input carries no credentials at all.
// Accepted inputs are strings, decoded JSON values (map[string]any, []any),
// raw JSON bytes, or already-typed bundles.
func Classify(raw any) (Bundle, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case Bundle:
		return v, nil
	case string:
		if v == "" {
			return nil, nil
		}
		return CookieStringBundle{Raw: v}, nil
	case []byte:
		return classifyJSON(v)
	case json.RawMessage:
		return classifyJSON(v)
	case map[string]any:
		return classifyMap(v)
	case []any:
		return classifyCookieList(v)
	default:
		return nil, fmt.Errorf("unsupported credential bundle type %T", raw)
	}
}

func classifyJSON(data []byte) (Bundle, error) {
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		// Not JSON at all; treat it as a raw cookie string.
		return CookieStringBundle{Raw: string(data)}, nil
	}
	return Classify(decoded)
}

func classifyMap(m map[string]any) (Bundle, error) {
	if len(m) == 0 {
		return nil, nil
	}

	if hasAnyKey(m, "loginUrl", "login_url") || (hasAnyKey(m, "usernameSelector", "username_selector") && hasAnyKey(m, "passwordSelector", "password_selector")) {
		return LoginFlowBundle{Flow: LoginFlow{
			URL:              stringKey(m, "loginUrl", "login_url", "url"),
			UsernameSelector: stringKey(m, "usernameSelector", "username_selector"),
			PasswordSelector: stringKey(m, "passwordSelector", "password_selector"),
			SubmitSelector:   stringKey(m, "submitSelector", "submit_selector"),
			Username:         stringKey(m, "username", "user"),
			Password:         stringKey(m, "password", "pass"),
		}}, nil
	}

	if hasAnyKey(m, "cookies", "localStorage", "local_storage", "sessionStorage", "session_storage", "origin") {
		export := SessionExportBundle{
			Origin:         stringKey(m, "origin"),
			LocalStorage:   stringMapKey(m, "localStorage", "local_storage"),
			SessionStorage: stringMapKey(m, "sessionStorage", "session_storage"),
		}
		switch cookies := firstKey(m, "cookies").(type) {
		case string:
			export.Cookies = append(export.Cookies, ParseCookieString(cookies, "")...)
		case []any:
			list, err := decodeCookieList(cookies)
			if err != nil {
				return nil, err
			}
			export.Cookies = list
		}
		return export, nil
	}

	if headers, ok := firstKey(m, "headers").(map[string]any); ok {
		return HeaderBundle{Headers: toStringMap(headers)}, nil
	}
	// A flat map whose keys all look like header names is a header bundle
	// parsed from a captured request.
	if looksLikeHeaderMap(m) {
		return HeaderBundle{Headers: toStringMap(m)}, nil
	}

	return nil, fmt.Errorf("credential bundle shape not recognized (keys: %v)", keys(m))
}

func classifyCookieList(list []any) (Bundle, error) {
	cookies, err := decodeCookieList(list)
	if err != nil {
		return nil, err
	}
	if len(cookies) == 0 {
		return nil, nil
	}
	return SessionExportBundle{Cookies: cookies}, nil
}

func decodeCookieList(list []any) ([]Cookie, error) {
	var cookies []Cookie
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("cookie list entry is %T, expected object", item)
		}
		c := Cookie{
			Name:   stringKey(m, "name"),
			Value:  stringKey(m, "value"),
			Domain: stringKey(m, "domain"),
			Path:   stringKey(m, "path"),
		}
		if c.Name == "" {
			continue
		}
		cookies = append(cookies, c)
	}
	return cookies, nil
}

var headerLikeKeys = map[string]bool{
	"authorization": true,
	"cookie":        true,
	"x-api-key":     true,
	"x-auth-token":  true,
	"x-csrf-token":  true,
	"user-agent":    true,
	"referer":       true,
}

func looksLikeHeaderMap(m map[string]any) bool {
	for k := range m {
		if headerLikeKeys[strings.ToLower(k)] {
			return true
		}
	}
	return false
}

func hasAnyKey(m map[string]any, names ...string) bool {
	for _, n := range names {
		if _, ok := m[n]; ok {
			return true
		}
	}
	return false
}

func firstKey(m map[string]any, names ...string) any {
	for _, n := range names {
		if v, ok := m[n]; ok {
			return v
		}
	}
	return nil
}

func stringKey(m map[string]any, names ...string) string {
	if s, ok := firstKey(m, names...).(string); ok {
		return s
	}
	return ""
}

func stringMapKey(m map[string]any, names ...string) map[string]string {
	raw, ok := firstKey(m, names...).(map[string]any)
	if !ok {
		return nil
	}
	return toStringMap(raw)
}

func toStringMap(m map[string]any) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
