package synthesis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"XianwaiTTS/pkg/errors"
	"XianwaiTTS/pkg/logger"

	"go.uber.org/zap"
)

// DefaultTransientMarkers 服务忙 / 限流
var DefaultTransientMarkers = []string{"服务器忙", "访问频率受限", "server busy", "limit reached"}

const (
	OutcomeSuccess   = "success"
	OutcomeTransient = "transient"
	OutcomeTerminal  = "terminal"
)

// RetryPolicy 第 n 次失败后等待 BackoffUnit * 2^(n-1)，最后一次失败后不再等待
type RetryPolicy struct {
	MaxRetries       int
	BackoffUnit      time.Duration
	TransientMarkers []string
	// Sleep 可替换，测试中用于记录等待时长
	Sleep func(ctx context.Context, d time.Duration) error
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = 3
	}
	if p.BackoffUnit <= 0 {
		p.BackoffUnit = time.Second
	}
	if len(p.TransientMarkers) == 0 {
		p.TransientMarkers = DefaultTransientMarkers
	}
	if p.Sleep == nil {
		p.Sleep = sleepCtx
	}
	return p
}

// Backoff 第 failures 次失败之后的等待时长
func (p RetryPolicy) Backoff(failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	return p.BackoffUnit << (failures - 1)
}

func (p RetryPolicy) IsTransient(msg string) bool {
	for _, m := range p.TransientMarkers {
		if m != "" && strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SynthesizeWithRetry 只对临时性错误重试
//   - 非临时性错误立即返回 CodeProvider
//   - 重试耗尽返回 CodeProviderUnavailable
//   - 参数校验失败、ctx 取消原样返回
func SynthesizeWithRetry(ctx context.Context, s Synthesizer, text string, opts Options, cuid string, p RetryPolicy, obs AttemptObserver) ([]byte, error) {
	p = p.withDefaults()
	observe := func(outcome string) {
		if obs != nil {
			obs.ObserveAttempt(outcome)
		}
	}

	var last *ProviderError
	for attempt := 1; attempt <= p.MaxRetries; attempt++ {
		resp, err := s.Synthesize(ctx, text, opts, cuid)
		if err != nil {
			return nil, err
		}
		if resp.OK() {
			observe(OutcomeSuccess)
			return resp.Audio, nil
		}

		last = resp.Err
		if !p.IsTransient(last.Error()) {
			observe(OutcomeTerminal)
			return nil, errors.WrapCode(last, errors.CodeProvider, last.Error()).
				WithContext("err_no", fmt.Sprint(last.Code))
		}
		observe(OutcomeTransient)
		if attempt == p.MaxRetries {
			break
		}

		wait := p.Backoff(attempt)
		logger.Warn("synthesis transient failure, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.String("error", last.Error()),
		)
		if err := p.Sleep(ctx, wait); err != nil {
			return nil, errors.WrapCode(err, errors.CodeProviderUnavailable, "等待重试时请求被取消")
		}
	}

	return nil, errors.WrapCode(last, errors.CodeProviderUnavailable,
		fmt.Sprintf("经过%d次尝试后仍然失败: %s", p.MaxRetries, last.Error()))
}
