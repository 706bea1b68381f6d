package gateway

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// 帳密缺少或登入被拒
	KindAuth Kind = iota + 1
	// 連線失敗、timeout、5xx、回應無法解析，可以重試
	KindUnavailable
	// 金流明確拒絕這筆請求，相同內容重試沒有意義
	KindRejected
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindUnavailable:
		return "unavailable"
	case KindRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

type GatewayError struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *GatewayError) Error() string {
	msg := fmt.Sprintf("gateway %s %s", e.Op, e.Kind)
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

func (e *GatewayError) Retryable() bool {
	return e.Kind == KindUnavailable
}

func IsKind(err error, kind Kind) bool {
	var gwErr *GatewayError
	return errors.As(err, &gwErr) && gwErr.Kind == kind
}

func KindOf(err error) Kind {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return 0
}
