package generation

import (
	"context"
	"time"

	"XianwaiTTS/pkg/logger"
	"XianwaiTTS/pkg/scheduler"

	"go.uber.org/zap"
)

// SweepOrphans 删除早于 grace 且没有任何记录引用的音频文件
// grace 需大于一次生成从写文件到写记录的耗时，否则会误删进行中的文件
func (s *Service) SweepOrphans(ctx context.Context, grace time.Duration) (int, error) {
	objs, err := s.audio.List(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-grace)
	removed := 0
	for _, o := range objs {
		if ctx.Err() != nil {
			break
		}
		if o.ModTime.After(cutoff) {
			continue
		}
		referenced, err := s.history.FilenameExists(ctx, o.Key)
		if err != nil {
			logger.Warn("orphan sweep lookup failed", zap.String("filename", o.Key), zap.Error(err))
			continue
		}
		if referenced {
			continue
		}
		if err := s.audio.Delete(ctx, o.Key); err != nil {
			logger.Warn("orphan sweep delete failed", zap.String("filename", o.Key), zap.Error(err))
			continue
		}
		removed++
	}
	if s.observer != nil && removed > 0 {
		s.observer.AddOrphansRemoved(removed)
	}
	if removed > 0 {
		logger.Info("orphan sweep finished", zap.Int("removed", removed), zap.Int("scanned", len(objs)))
	}
	return removed, nil
}

// SweepJob 供 cron 调度
func (s *Service) SweepJob(grace time.Duration) scheduler.Job {
	return scheduler.FuncJob(func(ctx context.Context) {
		if _, err := s.SweepOrphans(ctx, grace); err != nil {
			logger.Warn("orphan sweep failed", zap.Error(err))
		}
	})
}
