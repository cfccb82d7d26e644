package shortlink

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidURL 是输入 URL 不合法时的统一错误，命令行参数和 stdin 输入都会用到。
var ErrInvalidURL = errors.New("invalid url")

// ParseLongURL 解析并校验一个待缩短的长链接，返回它的规范字符串形式。
//
// 规则：
// - 去掉首尾空白
// - scheme 必须是 http/https
// - host 不能为空
func ParseLongURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrInvalidURL, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w %q: scheme must be http or https", ErrInvalidURL, raw)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("%w %q: missing host", ErrInvalidURL, raw)
	}
	return u.String(), nil
}
