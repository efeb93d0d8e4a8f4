// Package translator defines the client-facing JSON wire format and the input
// checks applied before anything is persisted or sent upstream.
package translator

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Field limits, in characters.
const (
	MaxMessageLength       = 5000
	MaxImageURLLength      = 2000
	MaxModelLength         = 100
	MaxFunctionInputLength = 2000
)

// unsafeFragments are rejected anywhere in a validated field, case-insensitively.
var unsafeFragments = []string{
	"<script", "javascript:", "vbscript:", "onerror=", "onload=",
	"alert(", "eval(", "document.cookie", "window.location",
}

// ValidationError reports a malformed client field. Message is user-facing.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

type fieldRule struct {
	label      string
	maxLength  int
	allowEmpty bool
}

var (
	messageRule       = fieldRule{label: "消息", maxLength: MaxMessageLength}
	imageURLRule      = fieldRule{label: "图片URL", maxLength: MaxImageURLLength, allowEmpty: true}
	modelRule         = fieldRule{label: "模型", maxLength: MaxModelLength, allowEmpty: true}
	functionInputRule = fieldRule{label: "输入", maxLength: MaxFunctionInputLength}
)

// checkField trims value and applies rule, returning the cleaned value.
func checkField(field, value string, rule fieldRule) (string, error) {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		if rule.allowEmpty {
			return "", nil
		}
		return "", &ValidationError{Field: field, Message: fmt.Sprintf("%s 不能为空", rule.label)}
	}
	if utf8.RuneCountInString(value) > rule.maxLength {
		return "", &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s 长度不能超过 %d 个字符", rule.label, rule.maxLength),
		}
	}

	lowered := strings.ToLower(cleaned)
	for _, fragment := range unsafeFragments {
		if strings.Contains(lowered, fragment) {
			return "", &ValidationError{Field: field, Message: fmt.Sprintf("%s 包含不安全的内容", rule.label)}
		}
	}
	return cleaned, nil
}
