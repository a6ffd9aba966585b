package collector

import (
	"errors"
	"fmt"
	"net/http"
)

// FetchError 网络层失败：连接错误、超时或非 2xx 状态码
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError 订阅内容无法解析
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ErrEmptyFeed 订阅解析成功但没有任何条目
var ErrEmptyFeed = errors.New("feed has no items")

func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
