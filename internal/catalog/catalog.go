package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// MethodDescriptor 运行时反射接口返回的方法句柄，目录不解析其内部结构
type MethodDescriptor interface {
	String() string
}

// ClassHandle 运行时持有的类句柄，用完必须立即 Dispose
type ClassHandle interface {
	DeclaredMethods(ctx context.Context) ([]MethodDescriptor, error)
	Dispose() error
}

// Runtime 托管运行时的类加载与反射桥
type Runtime interface {
	// LoadedClasses 返回当前已加载类的原始描述符，保持运行时自身的枚举顺序
	LoadedClasses(ctx context.Context) ([]string, error)
	// Use 解析类名得到句柄，类未加载时返回的错误应包装 ErrClassNotFound
	Use(ctx context.Context, name ClassName) (ClassHandle, error)
}

// Catalog 类/方法目录
// 不缓存任何结果，每次调用都重新查询运行时，可并发使用
type Catalog struct {
	runtime Runtime
	logger  *logrus.Logger
	metrics *Metrics
}

// Option Catalog 可选项
type Option func(*Catalog)

// WithMetrics 记录枚举与解析计数
func WithMetrics(m *Metrics) Option {
	return func(c *Catalog) { c.metrics = m }
}

// New 创建目录
func New(runtime Runtime, logger *logrus.Logger, opts ...Option) *Catalog {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	c := &Catalog{
		runtime: runtime,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnumerateAllClasses 枚举所有已加载的类
// 无法解析的描述符被直接跳过，不影响其余条目；只有运行时本身枚举失败才返回错误
func (c *Catalog) EnumerateAllClasses(ctx context.Context) ([]ClassName, error) {
	raw, err := c.runtime.LoadedClasses(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate loaded classes: %w", err)
	}

	classes := make([]ClassName, 0, len(raw))
	skipped := 0
	for _, descriptor := range raw {
		name, err := ParseDescriptor(descriptor)
		if err != nil {
			skipped++
			c.logger.WithField("descriptor", descriptor).Debug("Skipping unparsable class descriptor")
			continue
		}
		classes = append(classes, name)
	}

	c.metrics.observeEnumeration(len(raw), skipped)
	c.logger.WithFields(logrus.Fields{
		"total":   len(raw),
		"classes": len(classes),
		"skipped": skipped,
	}).Debug("Enumerated loaded classes")

	return classes, nil
}

// FindClasses 返回匹配 pattern 的类，顺序与 EnumerateAllClasses 一致
// 单个条目匹配出错时跳过该条目
func (c *Catalog) FindClasses(ctx context.Context, pattern Pattern) ([]ClassName, error) {
	classes, err := c.EnumerateAllClasses(ctx)
	if err != nil {
		return nil, err
	}

	found := make([]ClassName, 0)
	for _, name := range classes {
		ok, err := match(pattern, name)
		if err != nil {
			c.metrics.observePatternError()
			c.logger.WithError(err).WithField("class", name).Debug("Pattern match failed, skipping")
			continue
		}
		if ok {
			found = append(found, name)
		}
	}

	return found, nil
}

// match 调用 pattern，panic 当作该条目的匹配错误
func match(pattern Pattern, name ClassName) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("pattern panicked on %s: %v", name, r)
		}
	}()
	return pattern.Match(name)
}

// EnumMethods 列出类中声明的方法
// 句柄在返回前一定会被释放（包括出错路径）；出错时不返回部分结果
func (c *Catalog) EnumMethods(ctx context.Context, target ClassName) (methods []MethodDescriptor, err error) {
	handle, err := c.runtime.Use(ctx, target)
	if err != nil {
		c.metrics.observeResolution(err)
		return nil, fmt.Errorf("failed to resolve class %s: %w", target, err)
	}
	c.metrics.observeResolution(nil)

	defer func() {
		if derr := handle.Dispose(); derr != nil {
			c.logger.WithError(derr).WithField("class", target).Warn("Failed to dispose class handle")
			if err == nil {
				methods, err = nil, fmt.Errorf("failed to dispose class %s: %w", target, derr)
			}
		}
	}()

	methods, err = handle.DeclaredMethods(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list methods of %s: %w", target, err)
	}

	c.logger.WithFields(logrus.Fields{
		"class":   target,
		"methods": len(methods),
	}).Debug("Enumerated declared methods")

	return methods, nil
}

// IsNotFound 判断错误是否表示类未加载
func IsNotFound(err error) bool {
	return errors.Is(err, ErrClassNotFound)
}
