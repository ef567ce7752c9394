package ocr

import (
	"errors"
	"fmt"
	"strings"
)

// TransportError 表示请求没有得到可用的 HTTP 响应：网络失败、超时、非 200 状态码或熔断中。
// 鉴权失败（无效 apikey）也落在这里，StatusCode 保留原值。
type TransportError struct {
	Endpoint   string
	StatusCode int    // 0 表示没有拿到响应
	Body       string // 非 200 时响应体的前若干字节，便于定位
	Err        error
}

func (e *TransportError) Error() string {
	if e == nil {
		return "OCR 请求失败"
	}
	if e.StatusCode != 0 {
		body := strings.TrimSpace(e.Body)
		if body == "" {
			return fmt.Sprintf("OCR 请求失败：HTTP %d", e.StatusCode)
		}
		return fmt.Sprintf("OCR 请求失败：HTTP %d：%s", e.StatusCode, body)
	}
	return fmt.Sprintf("OCR 请求失败：%v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServiceError 表示服务端报告了处理失败（IsErroredOnProcessing=true），或返回了无法解析的内容。
type ServiceError struct {
	Message string
}

func (e *ServiceError) Error() string {
	if e == nil || strings.TrimSpace(e.Message) == "" {
		return "OCR 服务处理失败"
	}
	return "OCR 服务处理失败：" + strings.TrimSpace(e.Message)
}

func IsTransport(err error) bool {
	var e *TransportError
	return errors.As(err, &e)
}

func IsService(err error) bool {
	var e *ServiceError
	return errors.As(err, &e)
}
