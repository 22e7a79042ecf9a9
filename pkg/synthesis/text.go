package synthesis

import (
	"strconv"
	"unicode/utf8"

	"XianwaiTTS/pkg/errors"

	"golang.org/x/text/encoding/simplifiedchinese"
)

// MaxTextBytes 文本在 GBK 编码下的最大字节数
const MaxTextBytes = 1024

// TextByteLength 返回 text 的 GBK 字节长度
// GBK 无法编码的字符按 2 字节计
func TextByteLength(text string) int {
	if out, err := simplifiedchinese.GBK.NewEncoder().String(text); err == nil {
		return len(out)
	}
	enc := simplifiedchinese.GBK.NewEncoder()
	n := 0
	for _, r := range text {
		if r < utf8.RuneSelf {
			n++
			continue
		}
		out, err := enc.String(string(r))
		if err != nil {
			n += 2
			continue
		}
		n += len(out)
	}
	return n
}

// ValidateText 检查文本是否为空或超长，text 应已去除首尾空白
func ValidateText(text string) error {
	if text == "" {
		return errors.WithCode(errors.CodeValidation, "请输入要转换的文本").
			WithContext("field", "text").
			WithContext("reason", "empty")
	}
	if n := TextByteLength(text); n > MaxTextBytes {
		return errors.WithCodef(errors.CodeValidation, "文本长度超过%d字节限制，请缩短文本或分段处理", MaxTextBytes).
			WithContext("field", "text").
			WithContext("reason", "too_long").
			WithContext("bytes", strconv.Itoa(n))
	}
	return nil
}
