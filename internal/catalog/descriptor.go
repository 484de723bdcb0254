package catalog

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrMalformedDescriptor 描述符不是 "L...;" 形式
	ErrMalformedDescriptor = errors.New("malformed class descriptor")
	// ErrClassNotFound 运行时中没有加载该类
	ErrClassNotFound = errors.New("class not found")
)

// ClassName 规范化后的点分全限定类名，例如 com.example.Foo
type ClassName string

func (n ClassName) String() string { return string(n) }

// Package 包名部分，默认包返回空串
func (n ClassName) Package() string {
	s := string(n)
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return s[:i]
	}
	return ""
}

// Simple 去掉包名后的类名
func (n ClassName) Simple() string {
	s := string(n)
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Descriptor 转回运行时内部描述符形式
func (n ClassName) Descriptor() string {
	return "L" + strings.ReplaceAll(string(n), ".", "/") + ";"
}

// 第一个 'L' 到最后一个 ';' 之间的内容
var descriptorPattern = regexp.MustCompile(`L(.*);`)

// ParseDescriptor 把内部描述符（如 Lcom/example/Foo;）解析为点分类名
// 基本类型数组（如 [I）等不含 "L...;" 的形式返回 ErrMalformedDescriptor；
// 对象数组 [Lcom/a/B; 解析为元素类型 com.a.B
func ParseDescriptor(raw string) (ClassName, error) {
	m := descriptorPattern.FindStringSubmatch(raw)
	if m == nil || m[1] == "" {
		return "", fmt.Errorf("%w: %q", ErrMalformedDescriptor, raw)
	}
	return ClassName(strings.ReplaceAll(m[1], "/", ".")), nil
}
