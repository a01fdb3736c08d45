package postgis

import (
	"os"
	"strings"
)

// disableDefaultSslOnLocalhost adds sslmode=disable for connections to
// localhost without explicit sslmode.
func disableDefaultSslOnLocalhost(params string) string {
	parts := strings.Fields(params)
	isLocalHost := false
	for _, p := range parts {
		if strings.HasPrefix(p, "sslmode=") {
			return params
		}
		if p == "host=localhost" || p == "host=127.0.0.1" {
			isLocalHost = true
		}
	}

	if !isLocalHost {
		return params
	}

	for _, v := range os.Environ() {
		parts := strings.SplitN(v, "=", 2)
		if parts[0] == "PGSSLMODE" {
			return params
		}
	}

	return params + " sslmode=disable"
}

// stripParam removes name=value from the connection params and returns
// the remaining params and the value.
func stripParam(params, name string) (string, string) {
	parts := strings.Fields(params)
	var value string
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.HasPrefix(p, name+"=") {
			value = strings.TrimPrefix(p, name+"=")
			continue
		}
		result = append(result, p)
	}
	return strings.Join(result, " "), value
}
