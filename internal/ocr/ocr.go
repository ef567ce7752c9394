// Package ocr 把单页 PDF 交给远端 OCR 服务识别，返回识别出的文本。
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

const (
	DefaultEndpoint = "https://api.ocr.space/parse/image"
	DefaultLanguage = "spa"
	DefaultEngine   = 2

	// 响应体上限：正常的单页识别结果远小于此值。
	maxResponseBytes = 8 << 20
	// 非 200 时在错误里保留的响应体长度。
	errorBodyBytes = 256
)

// Recognizer 是“识别一页 PDF 文本”的能力抽象；测试用确定性的 stub 替换真实网络调用。
type Recognizer interface {
	Recognize(ctx context.Context, pdfPath string) (string, error)
}

// Options 描述 OCR.space 客户端参数。零值字段使用默认值。
type Options struct {
	Endpoint string
	APIKey   string
	Language string
	Engine   int

	// RequestsPerMinute > 0 时在发送前限速（只是排队等待，不重发请求）。
	RequestsPerMinute float64
	// BreakerFailures > 0 时，连续这么多次传输失败后进入熔断，熔断期内直接失败。
	BreakerFailures int
	// BreakerOpen 是熔断持续时间；<= 0 时使用 60s。
	BreakerOpen time.Duration

	Logger *slog.Logger
}

// Client 是 OCR.space 的最小客户端：一次识别 = 一次同步 POST，不重试。
type Client struct {
	hc   *http.Client
	opts Options

	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[string]
}

var _ Recognizer = (*Client)(nil)

func NewClient(hc *http.Client, opts Options) (*Client, error) {
	if hc == nil {
		return nil, errors.New("ocr: http client 为空")
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("ocr: apikey 为空")
	}
	if strings.TrimSpace(opts.Endpoint) == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if strings.TrimSpace(opts.Language) == "" {
		opts.Language = DefaultLanguage
	}
	if opts.Engine == 0 {
		opts.Engine = DefaultEngine
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	c := &Client{hc: hc, opts: opts, limiter: rate.NewLimiter(rate.Inf, 1)}
	if opts.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerMinute/60), 1)
	}
	if opts.BreakerFailures > 0 {
		c.breaker = newBreaker(opts)
	}
	return c, nil
}

func newBreaker(opts Options) *gobreaker.CircuitBreaker[string] {
	open := opts.BreakerOpen
	if open <= 0 {
		open = 60 * time.Second
	}
	threshold := uint32(opts.BreakerFailures)
	logger := opts.Logger
	return gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "ocr",
		MaxRequests: 1,
		Timeout:     open,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// 只有传输失败计入熔断；服务端对单个文件的处理失败与 key/网络无关。
		IsSuccessful: func(err error) bool {
			return err == nil || !IsTransport(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
		},
	})
}

// Recognize 上传 pdfPath 并返回第一页的识别文本。
// 没有识别到文字时返回空串且不报错。
func (c *Client) Recognize(ctx context.Context, pdfPath string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", &TransportError{Endpoint: c.opts.Endpoint, Err: err}
	}
	if c.breaker == nil {
		return c.do(ctx, pdfPath)
	}

	text, err := c.breaker.Execute(func() (string, error) {
		return c.do(ctx, pdfPath)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", &TransportError{Endpoint: c.opts.Endpoint, Err: fmt.Errorf("连续请求失败，暂停调用：%w", err)}
	}
	return text, err
}

func (c *Client) do(ctx context.Context, pdfPath string) (string, error) {
	body, contentType, err := c.buildForm(pdfPath)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.Endpoint, body)
	if err != nil {
		return "", &TransportError{Endpoint: c.opts.Endpoint, Err: err}
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", &TransportError{Endpoint: c.opts.Endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyBytes))
		return "", &TransportError{
			Endpoint:   c.opts.Endpoint,
			StatusCode: resp.StatusCode,
			Body:       string(snippet),
			Err:        fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", &TransportError{Endpoint: c.opts.Endpoint, StatusCode: resp.StatusCode, Err: err}
	}
	return parseResponse(b)
}

func (c *Client) buildForm(pdfPath string) (io.Reader, string, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"apikey", c.opts.APIKey},
		{"language", c.opts.Language},
		{"isOverlayRequired", "false"},
		{"filetype", "PDF"},
		{"OCREngine", strconv.Itoa(c.opts.Engine)},
	}
	for _, kv := range fields {
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return nil, "", err
		}
	}
	fw, err := mw.CreateFormFile("file", "first_page.pdf")
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}
