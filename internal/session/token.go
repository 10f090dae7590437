package session

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Storage keys commonly used by web apps to stash an API token.
var tokenKeys = []string{
	"token",
	"access_token",
	"accessToken",
	"auth_token",
	"authToken",
	"id_token",
	"idToken",
	"jwt",
	"bearer",
}

// findBearerToken scans storage snapshots for well-known token field names
// and returns the first value that has a bearer-token shape.
func findBearerToken(stores ...map[string]string) string {
	for _, store := range stores {
		for _, key := range tokenKeys {
			if value, ok := store[key]; ok {
				if token, valid := bearerShape(value); valid {
					return token
				}
			}
		}
	}
	return ""
}

// bearerShape reports whether a value is plausibly a bearer token and
// returns it stripped of any "Bearer " prefix. JWTs are recognized by
// structure (header.payload.signature, decodable without verification);
// anything else must be a reasonably long single token without whitespace.
func bearerShape(value string) (string, bool) {
	value = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(value), "Bearer "))
	if value == "" || strings.ContainsAny(value, " \t\n") {
		return "", false
	}

	if strings.Count(value, ".") == 2 {
		if _, _, err := jwt.NewParser().ParseUnverified(value, jwt.MapClaims{}); err == nil {
			return value, true
		}
	}

	if len(value) < 20 {
		return "", false
	}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.' || r == '=' || r == '+' || r == '/':
		default:
			return "", false
		}
	}
	return value, true
}
