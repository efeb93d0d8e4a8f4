package provider

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApology(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"missing key", fmt.Errorf("kimi: %w", ErrCredentialMissing), "抱歉，Kimi API密钥未配置。"},
		{"timeout", fmt.Errorf("x: %w", ErrTimeout), "抱歉，请求超时。请稍后再试。"},
		{"format", ErrResponseFormat, "抱歉，Kimi API响应格式错误。"},
		{"upstream", fmt.Errorf("wrap: %w", &UpstreamError{Status: 401, Body: "bad key"}), "抱歉，请求Kimi服务时发生错误：401 - bad key"},
		{"other", errors.New("connection refused"), "抱歉，请求Kimi服务时发生错误：connection refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Apology("Kimi", tt.err))
		})
	}
}
