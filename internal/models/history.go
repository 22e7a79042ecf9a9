package models

import (
	"context"
	stderrs "errors"
	"time"

	"XianwaiTTS/pkg/errors"

	"gorm.io/gorm"
)

const (
	// DefaultHistoryLimit 单次列表默认条数，也是上限
	DefaultHistoryLimit = 50
	TimeLayout          = "2006-01-02 15:04:05"
)

// HistoryRecord 一次成功的合成，音频内容不入库
type HistoryRecord struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    uint      `json:"user_id" gorm:"index;not null"`
	Text      string    `json:"text" gorm:"type:text;not null"`
	Filename  string    `json:"filename" gorm:"size:64;uniqueIndex;not null"`
	VoiceID   int       `json:"voice_id"`
	VoiceName string    `json:"voice_name" gorm:"size:100"`
	Speed     int       `json:"speed"`
	Pitch     int       `json:"pitch"`
	Volume    int       `json:"volume"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

func (HistoryRecord) TableName() string { return "audio_histories" }

// HistoryView 接口返回结构
type HistoryView struct {
	ID        uint   `json:"id"`
	Text      string `json:"text"`
	Filename  string `json:"filename"`
	AudioURL  string `json:"audio_url"`
	VoiceID   int    `json:"voice_id"`
	VoiceName string `json:"voice_name"`
	Speed     int    `json:"speed"`
	Pitch     int    `json:"pitch"`
	Volume    int    `json:"volume"`
	CreatedAt string `json:"created_at"`
}

func (r *HistoryRecord) View(audioURL string) HistoryView {
	return HistoryView{
		ID:        r.ID,
		Text:      r.Text,
		Filename:  r.Filename,
		AudioURL:  audioURL,
		VoiceID:   r.VoiceID,
		VoiceName: r.VoiceName,
		Speed:     r.Speed,
		Pitch:     r.Pitch,
		Volume:    r.Volume,
		CreatedAt: r.CreatedAt.Format(TimeLayout),
	}
}

// ErrRecordNotFound 不存在与不属于当前用户不做区分
func ErrRecordNotFound() error {
	return errors.WithCode(errors.CodeNotFound, "记录不存在")
}

// HistoryRepository 所有查询都按 owner 过滤
type HistoryRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) Record(ctx context.Context, rec *HistoryRecord) (*HistoryRecord, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, errors.WrapCode(err, errors.CodeStorage, "保存历史记录失败")
	}
	return rec, nil
}

// ListByOwner 按创建时间倒序，同一时间按 id 倒序；limit<=0 或超过上限时取上限
func (r *HistoryRepository) ListByOwner(ctx context.Context, ownerID uint, limit int) ([]HistoryRecord, error) {
	if limit <= 0 || limit > DefaultHistoryLimit {
		limit = DefaultHistoryLimit
	}
	var out []HistoryRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ?", ownerID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, errors.WrapCode(err, errors.CodeStorage, "查询历史记录失败")
	}
	return out, nil
}

func (r *HistoryRepository) FindByOwnerAndID(ctx context.Context, ownerID, id uint) (*HistoryRecord, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, ownerID))
}

func (r *HistoryRepository) FindByOwnerAndFilename(ctx context.Context, ownerID uint, filename string) (*HistoryRecord, error) {
	return r.first(r.db.WithContext(ctx).Where("filename = ? AND user_id = ?", filename, ownerID))
}

func (r *HistoryRepository) first(q *gorm.DB) (*HistoryRecord, error) {
	var rec HistoryRecord
	if err := q.First(&rec).Error; err != nil {
		if stderrs.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound()
		}
		return nil, errors.WrapCode(err, errors.CodeStorage, "查询历史记录失败")
	}
	return &rec, nil
}

// DeleteByID 返回被删除的记录
func (r *HistoryRepository) DeleteByID(ctx context.Context, ownerID, id uint) (*HistoryRecord, error) {
	var deleted *HistoryRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := r.first(tx.Where("id = ? AND user_id = ?", id, ownerID))
		if err != nil {
			return err
		}
		res := tx.Where("id = ? AND user_id = ?", id, ownerID).Delete(&HistoryRecord{})
		if res.Error != nil {
			return errors.WrapCode(res.Error, errors.CodeStorage, "删除历史记录失败")
		}
		if res.RowsAffected == 0 {
			return ErrRecordNotFound()
		}
		deleted = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// DeleteAllByOwner 单个事务内删除，要么全部成功要么全部回滚
func (r *HistoryRepository) DeleteAllByOwner(ctx context.Context, ownerID uint) ([]HistoryRecord, error) {
	var deleted []HistoryRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", ownerID).Find(&deleted).Error; err != nil {
			return err
		}
		if len(deleted) == 0 {
			return nil
		}
		ids := make([]uint, len(deleted))
		for i := range deleted {
			ids[i] = deleted[i].ID
		}
		return tx.Where("user_id = ? AND id IN ?", ownerID, ids).Delete(&HistoryRecord{}).Error
	})
	if err != nil {
		return nil, errors.WrapCode(err, errors.CodeStorage, "清空历史记录失败")
	}
	return deleted, nil
}

// FilenameExists 不区分 owner，供孤儿文件清理使用
func (r *HistoryRepository) FilenameExists(ctx context.Context, filename string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&HistoryRecord{}).Where("filename = ?", filename).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}
