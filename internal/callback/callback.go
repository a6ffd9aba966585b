// Package callback 定义内联按钮回调载荷：kind + 参数，只在入口处解码一次。
package callback

import (
	"errors"
	"fmt"
	"strings"
)

// Kind 回调类型
type Kind string

const (
	// KindReadFullArticle 读取全文，参数为帖子 ID
	KindReadFullArticle Kind = "readFullArticle"
	// KindLatestFromSource 查看某个来源的最新新闻，参数为来源名称
	KindLatestFromSource Kind = "latestFromSource"
)

// MaxDataLen Telegram callback_data 的长度上限（字节）
const MaxDataLen = 64

var (
	ErrMalformed   = errors.New("callback: malformed payload")
	ErrUnknownKind = errors.New("callback: unknown kind")
	ErrTooLong     = errors.New("callback: payload exceeds 64 bytes")
)

// 线上编码使用短代码，节省 callback_data 空间
var kindCodes = map[Kind]string{
	KindReadFullArticle:  "rf",
	KindLatestFromSource: "ls",
}

var codeKinds = func() map[string]Kind {
	m := make(map[string]Kind, len(kindCodes))
	for k, c := range kindCodes {
		m[c] = k
	}
	return m
}()

// Action 解码后的用户操作
type Action struct {
	Kind Kind
	Arg  string
}

// Encode 编码为 "<code>:<arg>"
func Encode(a Action) (string, error) {
	code, ok := kindCodes[a.Kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, a.Kind)
	}
	if a.Arg == "" {
		return "", ErrMalformed
	}
	data := code + ":" + a.Arg
	if len(data) > MaxDataLen {
		return "", ErrTooLong
	}
	return data, nil
}

// Decode 解析回调数据；只按第一个分隔符切分，参数中允许出现 ':'
func Decode(data string) (Action, error) {
	if len(data) > MaxDataLen {
		return Action{}, ErrTooLong
	}
	code, arg, ok := strings.Cut(data, ":")
	if !ok || arg == "" {
		return Action{}, ErrMalformed
	}
	kind, ok := codeKinds[code]
	if !ok {
		return Action{}, fmt.Errorf("%w: %q", ErrUnknownKind, code)
	}
	return Action{Kind: kind, Arg: arg}, nil
}
