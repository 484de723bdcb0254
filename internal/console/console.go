package console

import (
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	LevelLog  = "LOG"
	LevelJSON = "JSON"

	assertionPrefix = "Assertion failed: "
)

// Entry 一次日志调用：级别标签加有序参数
type Entry struct {
	Level string
	Args  []Value
}

// Console 把格式化后的行写入 logrus
type Console struct {
	logger    *logrus.Logger
	formatter *Formatter
}

// New 创建 Console，logger 为 nil 时使用 logrus 的标准 logger
func New(logger *logrus.Logger, opts Options) *Console {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Console{
		logger:    logger,
		formatter: NewFormatter(opts),
	}
}

// Formatter 返回底层格式化器
func (c *Console) Formatter() *Formatter {
	return c.formatter
}

// Log 有界输出：只展开第一层
func (c *Console) Log(args ...any) string {
	opts := c.formatter.Options()
	if opts.Deep {
		return c.Emit(Entry{Level: LevelLog, Args: Values(args...)}, false)
	}
	return c.Emit(Entry{Level: LevelLog, Args: ShallowValues(opts.MaxElements, args...)}, false)
}

// LogJSON 完整递归输出，用于针对性地检查某个值
func (c *Console) LogJSON(args ...any) string {
	return c.Emit(Entry{Level: LevelJSON, Args: Values(args...)}, true)
}

// Emit 格式化一条 Entry 并写入日志，返回写入的行
func (c *Console) Emit(e Entry, deep bool) string {
	line := c.formatter.Format(e.Level, e.Args, deep)
	c.logger.Info(line)
	return line
}

// Assert 条件不成立时输出诊断信息，不会 panic
// 返回输出的行，条件成立时返回空串
func (c *Console) Assert(cond bool, msgs ...any) string {
	if cond {
		return ""
	}
	parts := make([]string, len(msgs))
	for i, m := range msgs {
		parts[i] = Flat(Shallow(m, c.formatter.Options().MaxElements))
	}
	line := assertionPrefix + strings.Join(parts, ", ")
	c.logger.Warn(line)
	return line
}
