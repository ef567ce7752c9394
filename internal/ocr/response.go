package ocr

import (
	"encoding/json"
	"strings"
)

// response 对应 OCR.space /parse/image 的 JSON 响应（只保留用到的字段）。
type response struct {
	IsErroredOnProcessing bool            `json:"IsErroredOnProcessing"`
	ErrorMessage          json.RawMessage `json:"ErrorMessage"`
	ErrorDetails          string          `json:"ErrorDetails"`
	ParsedResults         []parsedResult  `json:"ParsedResults"`
}

type parsedResult struct {
	ParsedText        string `json:"ParsedText"`
	FileParseExitCode int    `json:"FileParseExitCode"`
	ErrorMessage      string `json:"ErrorMessage"`
}

func parseResponse(b []byte) (string, error) {
	var r response
	if err := json.Unmarshal(b, &r); err != nil {
		// 配额/限流时服务端会直接返回一段纯文本。
		return "", &ServiceError{Message: "无法解析响应：" + truncate(strings.TrimSpace(string(b)), errorBodyBytes)}
	}
	if r.IsErroredOnProcessing {
		msg := errorMessage(r.ErrorMessage)
		if msg == "" {
			msg = r.ErrorDetails
		}
		return "", &ServiceError{Message: msg}
	}
	if len(r.ParsedResults) == 0 {
		return "", nil
	}
	return r.ParsedResults[0].ParsedText, nil
}

// errorMessage 兼容 ErrorMessage 的两种形态：字符串或字符串数组。
func errorMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var ss []string
	if err := json.Unmarshal(raw, &ss); err == nil {
		return strings.TrimSpace(strings.Join(ss, "; "))
	}
	return strings.TrimSpace(string(raw))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
