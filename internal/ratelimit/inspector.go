package ratelimit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// Verdict reports whether a request carries dangerous content.
type Verdict struct {
	Dangerous bool
	Reason    string
}

// Inspector scans request bodies, headers and query parameters for script
// injection patterns.
type Inspector struct {
	patterns []*regexp.Regexp
}

// skippedHeaders are not inspected; their values are opaque tokens.
var skippedHeaders = map[string]struct{}{
	"Cookie":        {},
	"Authorization": {},
}

// NewInspector compiles patterns. Matching is performed on lower-cased input.
func NewInspector(patterns []string) (*Inspector, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}
	return &Inspector{patterns: compiled}, nil
}

// Inspect checks body, then headers, then query values. The first hit wins.
func (i *Inspector) Inspect(body []byte, headers http.Header, query url.Values) Verdict {
	if len(body) > 0 {
		if re := i.matchBody(body); re != nil {
			return Verdict{Dangerous: true, Reason: fmt.Sprintf("body matches %s", re)}
		}
	}

	for name, values := range headers {
		if _, skip := skippedHeaders[http.CanonicalHeaderKey(name)]; skip {
			continue
		}
		for _, value := range values {
			if re := i.match(value); re != nil {
				return Verdict{Dangerous: true, Reason: fmt.Sprintf("header %s matches %s", name, re)}
			}
		}
	}

	for name, values := range query {
		for _, value := range values {
			if re := i.match(value); re != nil {
				return Verdict{Dangerous: true, Reason: fmt.Sprintf("query parameter %s matches %s", name, re)}
			}
		}
	}

	return Verdict{}
}

func (i *Inspector) match(s string) *regexp.Regexp {
	lowered := strings.ToLower(s)
	for _, re := range i.patterns {
		if re.MatchString(lowered) {
			return re
		}
	}
	return nil
}

// matchBody checks the raw body and, for JSON bodies, every decoded string,
// so that escapes such as \u003cscript do not hide a match.
func (i *Inspector) matchBody(body []byte) *regexp.Regexp {
	if re := i.match(string(body)); re != nil {
		return re
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil
	}
	return i.matchValue(doc)
}

func (i *Inspector) matchValue(v any) *regexp.Regexp {
	switch t := v.(type) {
	case string:
		return i.match(t)
	case []any:
		for _, item := range t {
			if re := i.matchValue(item); re != nil {
				return re
			}
		}
	case map[string]any:
		for key, item := range t {
			if re := i.match(key); re != nil {
				return re
			}
			if re := i.matchValue(item); re != nil {
				return re
			}
		}
	}
	return nil
}
