package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"XianwaiTTS/pkg/cache"
	"XianwaiTTS/pkg/logger"

	"go.uber.org/zap"
)

const (
	DefaultTokenURL     = "https://aip.baidubce.com/oauth/2.0/token"
	DefaultSynthesisURL = "https://tsn.baidu.com/text2audio"

	// 百度返回 502 表示 token 无效或过期
	errNoTokenInvalid = 502

	maxAudioBytes = 32 << 20
)

// Config 客户端配置，构造后不再修改
type Config struct {
	AppID     string
	APIKey    string
	SecretKey string

	TokenURL     string
	SynthesisURL string
	Lang         string
	Defaults     Params

	HTTPTimeout time.Duration
	Retry       RetryPolicy
}

// Configured 是否填写了凭据
func (c Config) Configured() bool {
	return c.APIKey != "" && c.SecretKey != ""
}

func (c Config) withDefaults() Config {
	if c.TokenURL == "" {
		c.TokenURL = DefaultTokenURL
	}
	if c.SynthesisURL == "" {
		c.SynthesisURL = DefaultSynthesisURL
	}
	if c.Lang == "" {
		c.Lang = "zh"
	}
	// 全零视为未设置
	if c.Defaults == (Params{}) {
		c.Defaults = DefaultParams()
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 15 * time.Second
	}
	c.Retry = c.Retry.withDefaults()
	return c
}

// ProviderError 服务端返回的结构化错误，或传输失败
type ProviderError struct {
	Code int    `json:"err_no"`
	Msg  string `json:"err_msg"`
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("语音合成失败: %s (错误码: %d)", e.Msg, e.Code)
}

// Response 要么是音频，要么是错误
type Response struct {
	Audio []byte
	Err   *ProviderError
}

func (r Response) OK() bool { return r.Err == nil }

func audioResponse(b []byte) Response { return Response{Audio: b} }

func errorResponse(code int, msg string) Response {
	return Response{Err: &ProviderError{Code: code, Msg: msg}}
}

// Synthesizer 单次合成调用
// 返回的 error 仅用于参数校验失败或 ctx 被取消，服务端失败放在 Response.Err
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, opts Options, cuid string) (Response, error)
}

// AttemptObserver 每次调用结束后回调，outcome 为 success / transient / terminal
type AttemptObserver interface {
	ObserveAttempt(outcome string)
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

func WithTokenCache(tc cache.Cache) ClientOption {
	return func(c *Client) { c.tokens = tc }
}

func WithObserver(o AttemptObserver) ClientOption {
	return func(c *Client) { c.observer = o }
}

// WithMaxAudioBytes 单次合成结果的大小上限，超出按失败处理
func WithMaxAudioBytes(n int64) ClientOption {
	return func(c *Client) { c.maxAudio = n }
}

// Client 百度语音合成 REST 客户端
type Client struct {
	cfg      Config
	http     *http.Client
	tokens   cache.Cache
	observer AttemptObserver
	maxAudio int64
}

func NewClient(cfg Config, opts ...ClientOption) *Client {
	cfg = cfg.withDefaults()
	c := &Client{cfg: cfg}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	if c.tokens == nil {
		c.tokens = cache.NewLocalCache(cache.LocalConfig{MaxSize: 16})
	}
	if c.maxAudio <= 0 {
		c.maxAudio = maxAudioBytes
	}
	return c
}

func (c *Client) Config() Config { return c.cfg }

// SynthesizeWithRetry 按客户端的重试策略调用 Synthesize
func (c *Client) SynthesizeWithRetry(ctx context.Context, text string, opts Options, cuid string) ([]byte, error) {
	return SynthesizeWithRetry(ctx, c, text, opts, cuid, c.cfg.Retry, c.observer)
}

func (c *Client) Synthesize(ctx context.Context, text string, opts Options, cuid string) (Response, error) {
	if err := ValidateText(text); err != nil {
		return Response{}, err
	}
	params := opts.Merge(c.cfg.Defaults)

	token, perr := c.accessToken(ctx)
	if perr != nil {
		if err := ctx.Err(); err != nil {
			return Response{}, err
		}
		return Response{Err: perr}, nil
	}

	form := url.Values{}
	form.Set("tex", text)
	form.Set("tok", token)
	form.Set("cuid", cuid)
	form.Set("ctp", "1")
	form.Set("lan", c.cfg.Lang)
	form.Set("spd", strconv.Itoa(params.Speed))
	form.Set("pit", strconv.Itoa(params.Pitch))
	form.Set("vol", strconv.Itoa(params.Volume))
	form.Set("per", strconv.Itoa(params.Voice))
	form.Set("aue", "3")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.SynthesisURL, strings.NewReader(form.Encode()))
	if err != nil {
		return errorResponse(0, err.Error()), nil
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Response{}, ctxErr
		}
		return errorResponse(0, "语音合成过程中发生异常: "+err.Error()), nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxAudio+1))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Response{}, ctxErr
		}
		return errorResponse(0, "读取合成结果失败: "+err.Error()), nil
	}
	if int64(len(body)) > c.maxAudio {
		return errorResponse(0, fmt.Sprintf("合成结果超过 %d 字节限制", c.maxAudio)), nil
	}

	out := decodeResponse(resp.StatusCode, resp.Header.Get("Content-Type"), body)
	if out.Err != nil && out.Err.Code == errNoTokenInvalid {
		_ = c.tokens.Delete(ctx, c.tokenKey())
	}
	return out, nil
}

// decodeResponse 按内容区分音频与结构化错误
func decodeResponse(status int, contentType string, body []byte) Response {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	trimmed := bytes.TrimSpace(body)

	looksJSON := strings.Contains(mediaType, "json") || (len(trimmed) > 0 && trimmed[0] == '{')
	if looksJSON {
		var pe struct {
			ErrNo  *int   `json:"err_no"`
			ErrMsg string `json:"err_msg"`
		}
		if err := json.Unmarshal(trimmed, &pe); err == nil && (pe.ErrNo != nil || pe.ErrMsg != "") {
			code := 0
			if pe.ErrNo != nil {
				code = *pe.ErrNo
			}
			msg := pe.ErrMsg
			if msg == "" {
				msg = "未知错误"
			}
			return errorResponse(code, msg)
		}
		if strings.Contains(mediaType, "json") {
			return errorResponse(status, "无法解析的错误响应")
		}
	}
	if status < 200 || status >= 300 {
		return errorResponse(status, fmt.Sprintf("HTTP %d %s", status, http.StatusText(status)))
	}
	if len(body) == 0 {
		return errorResponse(0, "返回的音频内容为空")
	}
	return audioResponse(body)
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int64  `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (c *Client) tokenKey() string {
	return "synthesis:token:" + c.cfg.APIKey
}

// accessToken 优先读缓存，过期前一分钟刷新
func (c *Client) accessToken(ctx context.Context) (string, *ProviderError) {
	if v, ok := c.tokens.Get(ctx, c.tokenKey()); ok {
		if s, ok := v.(string); ok && s != "" {
			return s, nil
		}
	}
	if !c.cfg.Configured() {
		return "", &ProviderError{Msg: "未配置语音合成服务凭据"}
	}

	q := url.Values{}
	q.Set("grant_type", "client_credentials")
	q.Set("client_id", c.cfg.APIKey)
	q.Set("client_secret", c.cfg.SecretKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", &ProviderError{Msg: err.Error()}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", &ProviderError{Msg: "获取访问令牌失败: " + err.Error()}
	}
	defer resp.Body.Close()

	var tr tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&tr); err != nil {
		return "", &ProviderError{Code: resp.StatusCode, Msg: "获取访问令牌失败: " + err.Error()}
	}
	if tr.AccessToken == "" {
		msg := tr.ErrorDescription
		if msg == "" {
			msg = tr.Error
		}
		return "", &ProviderError{Code: resp.StatusCode, Msg: "获取访问令牌失败: " + msg}
	}

	ttl := time.Duration(tr.ExpiresIn)*time.Second - time.Minute
	if ttl <= 0 {
		ttl = time.Minute
	}
	if err := c.tokens.Set(ctx, c.tokenKey(), tr.AccessToken, ttl); err != nil {
		logger.Warn("cache access token failed", zap.Error(err))
	}
	return tr.AccessToken, nil
}
