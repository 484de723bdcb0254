package catalog

import (
	"path"
	"regexp"
	"strings"
)

// Pattern 类名匹配规则
// Match 返回错误表示该条目无法判定，调用方会跳过该条目
type Pattern interface {
	Match(name ClassName) (bool, error)
}

// PatternFunc 函数适配器
type PatternFunc func(name ClassName) (bool, error)

func (f PatternFunc) Match(name ClassName) (bool, error) { return f(name) }

type regexpPattern struct {
	re *regexp.Regexp
}

// Regexp 正则匹配（在类名中任意位置匹配）
func Regexp(re *regexp.Regexp) Pattern {
	return regexpPattern{re: re}
}

func (p regexpPattern) Match(name ClassName) (bool, error) {
	return p.re.MatchString(string(name)), nil
}

// CompilePattern 编译正则表达式，ignoreCase 对应 /.../i
func CompilePattern(expr string, ignoreCase bool) (Pattern, error) {
	if ignoreCase {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	return Regexp(re), nil
}

// MustCompile 编译失败时 panic，只用于常量表达式
func MustCompile(expr string) Pattern {
	return Regexp(regexp.MustCompile(expr))
}

// CaseInsensitive 忽略大小写的正则，等价于 /expr/i
func CaseInsensitive(expr string) Pattern {
	return Regexp(regexp.MustCompile("(?i)" + expr))
}

type globPattern string

// Glob 通配符匹配（path.Match 语法），'*' 可以跨越 '.'，例如 com.example.* 或 *Password*
// 通配符本身非法时每个条目都会返回 path.ErrBadPattern
func Glob(pattern string) Pattern {
	return globPattern(pattern)
}

func (g globPattern) Match(name ClassName) (bool, error) {
	return path.Match(string(g), string(name))
}

type substringPattern string

// Substring 忽略大小写的子串匹配
func Substring(s string) Pattern {
	return substringPattern(strings.ToLower(s))
}

func (s substringPattern) Match(name ClassName) (bool, error) {
	return strings.Contains(strings.ToLower(string(name)), string(s)), nil
}
