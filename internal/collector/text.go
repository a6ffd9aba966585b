package collector

import (
	"strings"
	"unicode/utf8"
)

// NormalizeText 合并连续空白与换行为单个空格，并去掉首尾空白
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// textLength 以字符（rune）计长度，避免多字节文本被高估
func textLength(s string) int {
	return utf8.RuneCountInString(s)
}
