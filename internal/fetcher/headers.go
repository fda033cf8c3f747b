package fetcher

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
)

// LoadHeaders builds the outbound header set. When path is non-empty the
// headers are loaded verbatim from a JSON object file; otherwise the set is
// a single User-Agent header.
func LoadHeaders(path, userAgent string) (http.Header, error) {
	if path == "" {
		h := http.Header{}
		h.Set("User-Agent", userAgent)
		return h, nil
	}

	raw, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("read headers file: %w", err)
	}
	var pairs map[string]string
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return nil, fmt.Errorf("parse headers file: %w", err)
	}
	h := http.Header{}
	for key, value := range pairs {
		h.Set(key, value)
	}
	return h, nil
}
