package httpx

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultTimeout 是 OCR 请求的默认总超时（上传 + 识别 + 响应）。
	DefaultTimeout = 60 * time.Second

	userAgent = "examren/1 (+https://github.com/John-Robertt/examren)"
)

// Transport 固化请求级策略：统一 UA，代理模式下每请求新连接。
//
// 不做重试：OCR 请求是带 body 的 POST，重放会重复消耗配额。
type Transport struct {
	Base *http.Transport

	// DisableKeepAlives 决定是否对 Request 设置 Close=true（额外保险）。
	DisableKeepAlives bool
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	// Clone：避免在 RoundTripper 内部修改调用方的 request。
	r := req.Clone(req.Context())
	if r.Header.Get("User-Agent") == "" {
		r.Header.Set("User-Agent", userAgent)
	}
	if t.DisableKeepAlives {
		r.Close = true
	}
	return t.Base.RoundTrip(r)
}

// NewAPIClient 构造访问 OCR 服务的 HTTP client。
//
// 规则：
// - proxyURL 非空：走代理，且禁用 keep-alive
// - timeout <= 0 时使用 DefaultTimeout
func NewAPIClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	base := &http.Transport{
		Proxy:               nil,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	disableKeepAlives := false
	if proxyURL = strings.TrimSpace(proxyURL); proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, err
		}
		base.Proxy = http.ProxyURL(u)
		base.DisableKeepAlives = true
		disableKeepAlives = true
	}

	return &http.Client{
		Transport: &Transport{Base: base, DisableKeepAlives: disableKeepAlives},
		Timeout:   timeout,
	}, nil
}
