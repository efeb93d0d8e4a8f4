package signaling

import "errors"

// Message returns the user-facing text for a signaling error.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrCallNotFound):
		return "通话不存在或已过期"
	case errors.Is(err, ErrCalleeNotFound):
		return "目标用户不存在"
	case errors.Is(err, ErrSelfCall):
		return "不能呼叫自己"
	case errors.Is(err, ErrUnauthorized):
		return "无权操作此通话"
	case errors.Is(err, ErrCallInProgress):
		return "双方已有进行中的通话"
	case errors.Is(err, ErrInvalidTransition):
		return "通话状态不允许此操作"
	case errors.Is(err, ErrInvalidSignal):
		return "信令格式无效"
	default:
		return "通话操作失败"
	}
}
