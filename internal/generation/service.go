package generation

import (
	"context"
	stderrs "errors"
	"fmt"
	"io"
	"strings"
	"time"

	"XianwaiTTS/internal/models"
	"XianwaiTTS/pkg/errors"
	"XianwaiTTS/pkg/logger"
	stores "XianwaiTTS/pkg/storage"
	"XianwaiTTS/pkg/synthesis"

	"go.uber.org/zap"
)

// State 生成流程所处阶段
type State string

const (
	StateValidating   State = "validating"
	StateSynthesizing State = "synthesizing"
	StateStoring      State = "storing"
	StateRecording    State = "recording"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

const compensateTimeout = 10 * time.Second

// Synthesizer 带重试的语音合成
type Synthesizer interface {
	SynthesizeWithRetry(ctx context.Context, text string, opts synthesis.Options, cuid string) ([]byte, error)
}

// ArtifactStore 音频文件存储
type ArtifactStore interface {
	Write(ctx context.Context, data []byte) (string, error)
	Open(ctx context.Context, filename string) (io.ReadCloser, int64, error)
	Delete(ctx context.Context, filename string) error
	List(ctx context.Context) ([]stores.Object, error)
}

// HistoryStore 按用户隔离的历史记录
type HistoryStore interface {
	Record(ctx context.Context, rec *models.HistoryRecord) (*models.HistoryRecord, error)
	ListByOwner(ctx context.Context, ownerID uint, limit int) ([]models.HistoryRecord, error)
	FindByOwnerAndID(ctx context.Context, ownerID, id uint) (*models.HistoryRecord, error)
	FindByOwnerAndFilename(ctx context.Context, ownerID uint, filename string) (*models.HistoryRecord, error)
	DeleteByID(ctx context.Context, ownerID, id uint) (*models.HistoryRecord, error)
	DeleteAllByOwner(ctx context.Context, ownerID uint) ([]models.HistoryRecord, error)
	FilenameExists(ctx context.Context, filename string) (bool, error)
}

// Observer 指标回调，*metrics.Metrics 实现了它
type Observer interface {
	ObserveGeneration(result string)
	ObserveStage(stage string, d time.Duration)
	ObserveArtifactDelete(result string)
	AddOrphansRemoved(n int)
}

// Event 状态变化通知
type Event struct {
	State    State `json:"state"`
	From     State `json:"from,omitempty"`
	RecordID uint  `json:"record_id,omitempty"`
	Code     int   `json:"code,omitempty"`
}

// Notifier 向前端推送生成进度，不能阻塞
type Notifier interface {
	Notify(ownerID uint, ev Event)
}

// Request 一次生成请求，nil 参数使用默认值
type Request struct {
	Text   string `json:"text"`
	Voice  *int   `json:"voice"`
	Speed  *int   `json:"speed"`
	Pitch  *int   `json:"pitch"`
	Volume *int   `json:"volume"`
}

type Deps struct {
	Synthesizer Synthesizer
	Audio       ArtifactStore
	History     HistoryStore
	Observer    Observer
	Notifier    Notifier
	// Defaults 记录到历史中的默认参数，应与合成客户端一致
	Defaults synthesis.Params
}

type Service struct {
	tts      Synthesizer
	audio    ArtifactStore
	history  HistoryStore
	observer Observer
	notifier Notifier
	defaults synthesis.Params
}

func NewService(d Deps) *Service {
	if d.Defaults == (synthesis.Params{}) {
		d.Defaults = synthesis.DefaultParams()
	}
	return &Service{
		tts:      d.Synthesizer,
		audio:    d.Audio,
		history:  d.History,
		observer: d.Observer,
		notifier: d.Notifier,
		defaults: d.Defaults,
	}
}

// CallerTag 传给服务商的 cuid
func CallerTag(ownerID uint) string {
	return fmt.Sprintf("user_%d", ownerID)
}

// run 记录单次生成的状态迁移
type run struct {
	svc     *Service
	ownerID uint
	state   State
	entered time.Time
}

func (r *run) to(next State) {
	if r.svc.observer != nil {
		r.svc.observer.ObserveStage(string(r.state), time.Since(r.entered))
	}
	logger.Debug("generation state",
		zap.Uint("owner", r.ownerID),
		zap.String("from", string(r.state)),
		zap.String("to", string(next)),
	)
	r.state = next
	r.entered = time.Now()
	if next != StateDone && next != StateFailed {
		r.notify(Event{State: next})
	}
}

func (r *run) notify(ev Event) {
	if r.svc.notifier != nil {
		r.svc.notifier.Notify(r.ownerID, ev)
	}
}

func (r *run) fail(err error) error {
	failedIn := r.state
	r.to(StateFailed)
	r.notify(Event{State: StateFailed, From: failedIn, Code: errors.GetCode(err)})
	if r.svc.observer != nil {
		r.svc.observer.ObserveGeneration(string(failedIn))
	}
	fields := []zap.Field{
		zap.Uint("owner", r.ownerID),
		zap.String("stage", string(failedIn)),
		zap.Error(err),
	}
	switch errors.GetCode(err) {
	case errors.CodeValidation:
		logger.Info("generation rejected", fields...)
	case errors.CodeStorage, errors.CodeInternal:
		logger.Error("generation failed", fields...)
	default:
		logger.Warn("generation failed", fields...)
	}
	return err
}

// Generate 校验 -> 合成 -> 写文件 -> 写记录；写记录失败时删除刚写入的文件
func (s *Service) Generate(ctx context.Context, ownerID uint, req Request) (rec *models.HistoryRecord, err error) {
	r := &run{svc: s, ownerID: ownerID, state: StateValidating, entered: time.Now()}
	defer func() {
		if p := recover(); p != nil {
			rec = nil
			err = r.fail(errors.WrapCode(fmt.Errorf("panic: %v", p), errors.CodeInternal, "操作失败"))
		}
	}()

	text := strings.TrimSpace(req.Text)
	if err := synthesis.ValidateText(text); err != nil {
		return nil, r.fail(err)
	}
	opts := synthesis.Options{Voice: req.Voice, Speed: req.Speed, Pitch: req.Pitch, Volume: req.Volume}
	params := opts.Merge(s.defaults)

	r.to(StateSynthesizing)
	audio, err := s.tts.SynthesizeWithRetry(ctx, text, opts, CallerTag(ownerID))
	if err != nil {
		return nil, r.fail(classify(err))
	}

	r.to(StateStoring)
	filename, err := s.audio.Write(ctx, audio)
	if err != nil {
		return nil, r.fail(asStorage(err))
	}

	r.to(StateRecording)
	rec, err = s.history.Record(ctx, &models.HistoryRecord{
		UserID:    ownerID,
		Text:      text,
		Filename:  filename,
		VoiceID:   params.Voice,
		VoiceName: synthesis.ResolveVoiceName(params.Voice),
		Speed:     params.Speed,
		Pitch:     params.Pitch,
		Volume:    params.Volume,
	})
	if err != nil {
		s.compensate(ctx, ownerID, filename)
		return nil, r.fail(asStorage(err))
	}

	r.to(StateDone)
	r.notify(Event{State: StateDone, RecordID: rec.ID})
	if s.observer != nil {
		s.observer.ObserveGeneration(string(StateDone))
	}
	logger.Info("audio generated",
		zap.Uint("owner", ownerID),
		zap.Uint("record", rec.ID),
		zap.String("filename", filename),
		zap.Int("bytes", len(audio)),
	)
	return rec, nil
}

// compensate 请求被取消时仍需清理
func (s *Service) compensate(ctx context.Context, ownerID uint, filename string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensateTimeout)
	defer cancel()
	if err := s.audio.Delete(cctx, filename); err != nil {
		s.observeDelete("orphaned")
		logger.Error("compensating delete failed, orphan file left",
			zap.Uint("owner", ownerID),
			zap.String("filename", filename),
			zap.Error(err),
		)
		return
	}
	s.observeDelete("compensated")
}

func (s *Service) observeDelete(result string) {
	if s.observer != nil {
		s.observer.ObserveArtifactDelete(result)
	}
}

// removeArtifact 记录已删除后清理文件，失败只记日志
func (s *Service) removeArtifact(ctx context.Context, ownerID uint, filename string) {
	if err := s.audio.Delete(ctx, filename); err != nil {
		s.observeDelete("failed")
		logger.Warn("delete audio file failed, orphan file left",
			zap.Uint("owner", ownerID),
			zap.String("filename", filename),
			zap.Error(err),
		)
		return
	}
	s.observeDelete("deleted")
}

// List 最新的在前，最多 50 条
func (s *Service) List(ctx context.Context, ownerID uint, limit int) ([]models.HistoryRecord, error) {
	recs, err := s.history.ListByOwner(ctx, ownerID, limit)
	if err != nil {
		return nil, asStorage(err)
	}
	return recs, nil
}

// Delete 先删记录再删文件：文件可能短暂多于记录，但记录不会指向不存在的文件
func (s *Service) Delete(ctx context.Context, ownerID, id uint) (*models.HistoryRecord, error) {
	rec, err := s.history.DeleteByID(ctx, ownerID, id)
	if err != nil {
		if stderrs.Is(err, errors.ErrNotFound) {
			return nil, notFoundOrForbidden()
		}
		return nil, asStorage(err)
	}
	s.removeArtifact(context.WithoutCancel(ctx), ownerID, rec.Filename)
	logger.Info("history deleted", zap.Uint("owner", ownerID), zap.Uint("record", id))
	return rec, nil
}

// ClearHistory 记录在一个事务内全部删除，随后逐个尽力删除文件
func (s *Service) ClearHistory(ctx context.Context, ownerID uint) (int, error) {
	recs, err := s.history.DeleteAllByOwner(ctx, ownerID)
	if err != nil {
		return 0, asStorage(err)
	}
	fctx := context.WithoutCancel(ctx)
	for i := range recs {
		s.removeArtifact(fctx, ownerID, recs[i].Filename)
	}
	logger.Info("history cleared", zap.Uint("owner", ownerID), zap.Int("count", len(recs)))
	return len(recs), nil
}

// Download 只能下载自己的音频；不存在与无权访问返回同一错误。调用方负责关闭 rc
func (s *Service) Download(ctx context.Context, ownerID uint, filename string) (rec *models.HistoryRecord, rc io.ReadCloser, size int64, err error) {
	rec, err = s.history.FindByOwnerAndFilename(ctx, ownerID, filename)
	if err != nil {
		if stderrs.Is(err, errors.ErrNotFound) {
			return nil, nil, 0, notFoundOrForbidden()
		}
		return nil, nil, 0, asStorage(err)
	}
	rc, size, err = s.audio.Open(ctx, rec.Filename)
	if err != nil {
		if stderrs.Is(err, errors.ErrNotFound) {
			logger.Warn("history record without audio file",
				zap.Uint("owner", ownerID),
				zap.Uint("record", rec.ID),
				zap.String("filename", rec.Filename),
			)
			return nil, nil, 0, notFoundOrForbidden()
		}
		return nil, nil, 0, asStorage(err)
	}
	return rec, rc, size, nil
}

func notFoundOrForbidden() error {
	return errors.WithCode(errors.CodeNotFound, "文件不存在或无权访问")
}

// classify 合成阶段的错误：已分类的原样返回，ctx 取消视为服务不可用
func classify(err error) error {
	if _, ok := errors.As(err); ok {
		return err
	}
	if stderrs.Is(err, context.Canceled) || stderrs.Is(err, context.DeadlineExceeded) {
		return errors.WrapCode(err, errors.CodeProviderUnavailable, "语音合成超时或请求已取消")
	}
	return errors.WrapCode(err, errors.CodeInternal, "操作失败")
}

func asStorage(err error) error {
	if _, ok := errors.As(err); ok {
		return err
	}
	return errors.WrapCode(err, errors.CodeStorage, "存储失败")
}
