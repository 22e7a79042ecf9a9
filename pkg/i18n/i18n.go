package i18n

import (
	"embed"
	"encoding/json"
	"path"

	"XianwaiTTS/pkg/logger"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

// I18nSupport 国际化支持结构体
type I18nSupport struct {
	bundle      *i18n.Bundle
	defaultLang string
	matcher     language.Matcher
}

// NewI18nSupport 加载内置的语言文件
func NewI18nSupport(defaultLang string) (*I18nSupport, error) {
	if defaultLang == "" {
		defaultLang = "zh"
	}
	tag, err := language.Parse(defaultLang)
	if err != nil {
		return nil, err
	}
	bundle := i18n.NewBundle(tag)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		p := path.Join("locales", e.Name())
		buf, err := localeFS.ReadFile(p)
		if err != nil {
			return nil, err
		}
		if _, err := bundle.ParseMessageFileBytes(buf, p); err != nil {
			return nil, err
		}
	}

	tags := bundle.LanguageTags()
	// 默认语言放首位，匹配失败时回退到它
	ordered := []language.Tag{tag}
	for _, t := range tags {
		if t != tag {
			ordered = append(ordered, t)
		}
	}
	return &I18nSupport{
		bundle:      bundle,
		defaultLang: defaultLang,
		matcher:     language.NewMatcher(ordered),
	}, nil
}

// DefaultLang 默认语言
func (i *I18nSupport) DefaultLang() string { return i.defaultLang }

// Match 把 query 或 Accept-Language 的值归一到已支持的语言
func (i *I18nSupport) Match(prefs ...string) string {
	tag, _ := language.MatchStrings(i.matcher, prefs...)
	base, _ := tag.Base()
	return base.String()
}

// T 获取翻译文本，找不到时返回 key
func (i *I18nSupport) T(languageTag, key string, templateData map[string]interface{}) string {
	localizer := i18n.NewLocalizer(i.bundle, languageTag, i.defaultLang)

	translation, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    key,
		TemplateData: templateData,
	})
	if err != nil {
		logger.Debug("translation missing", zap.String("key", key), zap.String("lang", languageTag), zap.Error(err))
		return key
	}
	return translation
}

// TWithDefaultLang 使用默认语言获取翻译文本
func (i *I18nSupport) TWithDefaultLang(key string, templateData map[string]interface{}) string {
	return i.T(i.defaultLang, key, templateData)
}
