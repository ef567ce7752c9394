package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	// ErrCodeNotFound 表示 --config 指定的配置文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingKey 表示既没有内联 api_key，也读不到 key 文件。
	ErrCodeMissingKey = "config_missing_key"
)

const (
	// FileName 是工作目录下自动发现的配置文件名。
	FileName = "examren.toml"

	DefaultFolder          = "Examenes-2"
	DefaultRoster          = "Lista.txt"
	DefaultKeyFile         = "config.txt"
	DefaultEndpoint        = "https://api.ocr.space/parse/image"
	DefaultLanguage        = "spa"
	DefaultEngine          = 2
	DefaultTimeout         = 60 * time.Second
	DefaultBreakerFailures = 3
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "console"
)

// CLIArgs 是 CLI 暴露的入口参数，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --dry-run=false 必须能覆盖 dry_run=true。
type CLIArgs struct {
	ConfigPath string

	Folder  string
	Roster  string
	KeyFile string

	DryRun    bool
	DryRunSet bool

	MinScore    float64
	MinScoreSet bool

	Language string
	Engine   int

	Timeout time.Duration

	NoCache bool

	LogLevel  string
	LogFormat string
}

// FileConfig 对应 examren.toml 的解析结构。
type FileConfig struct {
	Folder   string   `toml:"folder"`
	Roster   string   `toml:"roster"`
	KeyFile  string   `toml:"key_file"`
	APIKey   string   `toml:"api_key"`
	DryRun   *bool    `toml:"dry_run"`
	MinScore *float64 `toml:"min_score"`
	Cache    *bool    `toml:"cache"`

	OCR OCRConfig `toml:"ocr"`
	Log LogConfig `toml:"log"`
}

type OCRConfig struct {
	Endpoint          string  `toml:"endpoint"`
	Language          string  `toml:"language"`
	Engine            int     `toml:"engine"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
	RequestsPerMinute float64 `toml:"requests_per_minute"`
	BreakerFailures   *int    `toml:"breaker_failures"`
	ProxyURL          string  `toml:"proxy_url"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	// Folder/Roster/KeyFile 均为 clean + absolute。
	Folder  string
	Roster  string
	KeyFile string
	APIKey  string

	DryRun   bool
	MinScore float64
	Cache    bool

	Endpoint          string
	Language          string
	Engine            int
	Timeout           time.Duration
	RequestsPerMinute float64
	BreakerFailures   int
	ProxyURL          string

	LogLevel  string
	LogFormat string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingKey:
		if e.Err != nil {
			return fmt.Sprintf("%s：无法从 %q 读取 OCR apikey：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：OCR apikey 为空（%q）", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 读取配置文件（可选）并与 CLI 参数合并为最终配置。
//
// 发现规则：
// 1) CLI 提供 --config：必须存在
// 2) 否则尝试 <cwd>/examren.toml（可选）
//
// 覆盖优先级：CLI > 配置文件 > 内置默认值。相对路径一律相对 cwd。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	cfgPath := filepath.Join(cwdAbs, FileName)
	required := false
	if strings.TrimSpace(cli.ConfigPath) != "" {
		cfgPath = absCleanFrom(cwdAbs, cli.ConfigPath)
		required = true
	}

	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if required && !exists {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
	}

	return merge(cwdAbs, cli, fc, cfgPath)
}

func merge(cwdAbs string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	eff := EffectiveConfig{
		Folder:          absCleanFrom(cwdAbs, pick(cli.Folder, fc.Folder, DefaultFolder)),
		Roster:          absCleanFrom(cwdAbs, pick(cli.Roster, fc.Roster, DefaultRoster)),
		KeyFile:         absCleanFrom(cwdAbs, pick(cli.KeyFile, fc.KeyFile, DefaultKeyFile)),
		Endpoint:        pick("", fc.OCR.Endpoint, DefaultEndpoint),
		Language:        pick(cli.Language, fc.OCR.Language, DefaultLanguage),
		Engine:          DefaultEngine,
		Timeout:         DefaultTimeout,
		BreakerFailures: DefaultBreakerFailures,
		ProxyURL:        strings.TrimSpace(fc.OCR.ProxyURL),
		Cache:           true,
		LogLevel:        strings.ToLower(pick(cli.LogLevel, fc.Log.Level, DefaultLogLevel)),
		LogFormat:       strings.ToLower(pick(cli.LogFormat, fc.Log.Format, DefaultLogFormat)),
	}

	invalid := func(format string, args ...any) error {
		return &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf(format, args...)}
	}

	// dry_run：CLI > config > 默认 false
	if cli.DryRunSet {
		eff.DryRun = cli.DryRun
	} else if fc.DryRun != nil {
		eff.DryRun = *fc.DryRun
	}

	if cli.MinScoreSet {
		eff.MinScore = cli.MinScore
	} else if fc.MinScore != nil {
		eff.MinScore = *fc.MinScore
	}
	if eff.MinScore < 0 || eff.MinScore > 1 {
		return EffectiveConfig{}, invalid("min_score 必须在 [0, 1] 内，实际 %v", eff.MinScore)
	}

	if fc.Cache != nil {
		eff.Cache = *fc.Cache
	}
	if cli.NoCache {
		eff.Cache = false
	}

	switch {
	case cli.Engine != 0:
		eff.Engine = cli.Engine
	case fc.OCR.Engine != 0:
		eff.Engine = fc.OCR.Engine
	}
	if eff.Engine < 1 || eff.Engine > 3 {
		return EffectiveConfig{}, invalid("ocr.engine 只能是 1、2 或 3，实际 %d", eff.Engine)
	}

	switch {
	case cli.Timeout > 0:
		eff.Timeout = cli.Timeout
	case fc.OCR.TimeoutSeconds > 0:
		eff.Timeout = time.Duration(fc.OCR.TimeoutSeconds) * time.Second
	case fc.OCR.TimeoutSeconds < 0:
		return EffectiveConfig{}, invalid("ocr.timeout_seconds 不能为负数")
	}

	if fc.OCR.RequestsPerMinute < 0 {
		return EffectiveConfig{}, invalid("ocr.requests_per_minute 不能为负数")
	}
	eff.RequestsPerMinute = fc.OCR.RequestsPerMinute

	if fc.OCR.BreakerFailures != nil {
		if *fc.OCR.BreakerFailures < 0 {
			return EffectiveConfig{}, invalid("ocr.breaker_failures 不能为负数")
		}
		eff.BreakerFailures = *fc.OCR.BreakerFailures
	}

	if u, err := url.Parse(eff.Endpoint); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return EffectiveConfig{}, invalid("ocr.endpoint 必须是 http/https URL：%q", eff.Endpoint)
	}
	if eff.ProxyURL != "" {
		if _, err := url.Parse(eff.ProxyURL); err != nil {
			return EffectiveConfig{}, invalid("ocr.proxy_url 无效：%w", err)
		}
	}

	switch eff.LogFormat {
	case "console", "json":
	default:
		return EffectiveConfig{}, invalid("log.format 只能是 console 或 json，实际 %q", eff.LogFormat)
	}

	// apikey：内联 api_key > key 文件内容。
	if key := strings.TrimSpace(fc.APIKey); key != "" {
		eff.APIKey = key
		return eff, nil
	}
	key, err := ReadKeyFile(eff.KeyFile)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingKey, Path: eff.KeyFile, Err: err}
	}
	if key == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingKey, Path: eff.KeyFile}
	}
	eff.APIKey = key
	return eff, nil
}

// ReadKeyFile 读取单行 key 文件（整体 trim；BOM 一并去掉）。
func ReadKeyFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	b = bytes.TrimPrefix(b, []byte{0xEF, 0xBB, 0xBF})
	return strings.TrimSpace(string(b)), nil
}

func pick(cli, file, def string) string {
	if v := strings.TrimSpace(cli); v != "" {
		return v
	}
	if v := strings.TrimSpace(file); v != "" {
		return v
	}
	return def
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 TOML 配置文件（未知字段报错）。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	dec := toml.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
