package provider

import (
	"errors"
	"fmt"
)

// Apology renders a provider failure as the user-facing reply stored in place
// of a model answer. name is the provider's display name.
func Apology(name string, err error) string {
	var upstream *UpstreamError
	switch {
	case errors.Is(err, ErrCredentialMissing):
		return fmt.Sprintf("抱歉，%s API密钥未配置。", name)
	case errors.Is(err, ErrTimeout):
		return "抱歉，请求超时。请稍后再试。"
	case errors.Is(err, ErrResponseFormat):
		return fmt.Sprintf("抱歉，%s API响应格式错误。", name)
	case errors.As(err, &upstream):
		return fmt.Sprintf("抱歉，请求%s服务时发生错误：%d - %s", name, upstream.Status, upstream.Body)
	default:
		return fmt.Sprintf("抱歉，请求%s服务时发生错误：%v", name, err)
	}
}
