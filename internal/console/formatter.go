package console

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cast"
)

const (
	// DefaultMaxElements 默认模式下序列最多渲染的元素个数
	DefaultMaxElements = 32

	callableToken = "[Function]"
	mappingToken  = "[object Object]"
	nullToken     = "null"
)

// Options 格式化配置
type Options struct {
	MaxElements int  `mapstructure:"max_elements"` // 序列扁平渲染的元素上限
	Deep        bool `mapstructure:"deep"`         // 始终使用完整递归序列化
}

// DefaultOptions 默认配置
func DefaultOptions() Options {
	return Options{MaxElements: DefaultMaxElements}
}

// Formatter 有界结构化格式化器
// 不持有可变状态，可被多个 goroutine 同时使用
type Formatter struct {
	opts Options
}

// NewFormatter 创建格式化器，MaxElements <= 0 时使用默认上限
func NewFormatter(opts Options) *Formatter {
	if opts.MaxElements <= 0 {
		opts.MaxElements = DefaultMaxElements
	}
	return &Formatter{opts: opts}
}

// Options 返回生效的配置
func (f *Formatter) Options() Options {
	return f.opts
}

// Format 把一组参数渲染为 "<LEVEL>: <arg1> <arg2> ..." 形式的一行
//
// deep 为 true（或配置了 Options.Deep）时，序列和映射按完整 JSON 结构输出；
// 否则只展开第一层，序列最多 MaxElements 个元素，嵌套值只输出占位符。
// 标量和 Callable 在两种模式下都直接输出。
func (f *Formatter) Format(level string, args []Value, deep bool) string {
	deep = deep || f.opts.Deep

	var b strings.Builder
	b.WriteString(level)
	b.WriteByte(':')
	for _, arg := range args {
		b.WriteByte(' ')
		b.WriteString(f.Render(arg, deep))
	}
	return b.String()
}

// Render 渲染单个顶层参数
func (f *Formatter) Render(v Value, deep bool) string {
	switch v.Kind {
	case KindSequence, KindMapping:
		if deep {
			return Dump(v)
		}
		if v.Kind == KindSequence {
			return f.renderSequence(v)
		}
		return f.renderMapping(v)
	case KindCallable:
		return callableToken
	default:
		return scalarString(v.Scalar)
	}
}

func (f *Formatter) renderSequence(v Value) string {
	n := len(v.Items)
	if n > f.opts.MaxElements {
		n = f.opts.MaxElements
	}
	omitted := v.Len() - n

	var b strings.Builder
	b.WriteByte('[')
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(Flat(v.Items[i]))
	}
	if omitted > 0 {
		b.WriteString(", ...")
		b.WriteString(strconv.Itoa(omitted))
		b.WriteString(" more")
	}
	b.WriteByte(']')
	return b.String()
}

func (f *Formatter) renderMapping(v Value) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, field := range v.Fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(field.Key)
		b.WriteString(": ")
		b.WriteString(Flat(field.Value))
	}
	b.WriteByte('}')
	return b.String()
}

// Flat 单层渲染：不递归进入嵌套的序列或映射
func Flat(v Value) string {
	switch v.Kind {
	case KindCallable:
		return callableToken
	case KindSequence:
		return "[Array " + strconv.Itoa(v.Len()) + "]"
	case KindMapping:
		return mappingToken
	default:
		return scalarString(v.Scalar)
	}
}

// scalarString 标量的自然字符串形式，无法转换时退化为 fmt 输出
func scalarString(v any) string {
	if v == nil {
		return nullToken
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}

var deepAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Dump 完整递归序列化，不做任何截断
// 与 JSON 规则一致：映射中的 Callable 被省略，序列中的 Callable 写为 null
func Dump(v Value) string {
	stream := deepAPI.BorrowStream(nil)
	defer deepAPI.ReturnStream(stream)

	writeJSON(stream, v)
	return string(stream.Buffer())
}

func writeJSON(stream *jsoniter.Stream, v Value) {
	// 超过转换深度的容器没有内容，只能输出占位符
	if v.IsContainer() && v.Omitted > 0 && len(v.Items) == 0 && len(v.Fields) == 0 {
		stream.WriteString(Flat(v))
		return
	}
	switch v.Kind {
	case KindSequence:
		stream.WriteArrayStart()
		for i, item := range v.Items {
			if i > 0 {
				stream.WriteMore()
			}
			if item.Kind == KindCallable {
				stream.WriteNil()
				continue
			}
			writeJSON(stream, item)
		}
		if v.Omitted > 0 {
			if len(v.Items) > 0 {
				stream.WriteMore()
			}
			stream.WriteString("..." + strconv.Itoa(v.Omitted) + " more")
		}
		stream.WriteArrayEnd()
	case KindMapping:
		stream.WriteObjectStart()
		first := true
		for _, field := range v.Fields {
			if field.Value.Kind == KindCallable {
				continue
			}
			if !first {
				stream.WriteMore()
			}
			first = false
			stream.WriteObjectField(field.Key)
			writeJSON(stream, field.Value)
		}
		stream.WriteObjectEnd()
	case KindCallable:
		stream.WriteNil()
	default:
		writeScalar(stream, v.Scalar)
	}
}

func writeScalar(stream *jsoniter.Stream, v any) {
	switch t := v.(type) {
	case nil:
		stream.WriteNil()
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			stream.WriteNil()
			return
		}
		stream.WriteFloat64(t)
	case float32:
		if math.IsNaN(float64(t)) || math.IsInf(float64(t), 0) {
			stream.WriteNil()
			return
		}
		stream.WriteFloat32(t)
	case error:
		stream.WriteString(t.Error())
	case fmt.Stringer:
		stream.WriteString(t.String())
	default:
		// jsoniter 无法编码的标量（chan、complex 等）按 fmt 形式写成字符串
		b, err := deepAPI.Marshal(t)
		if err != nil {
			stream.WriteString(fmt.Sprint(t))
			return
		}
		stream.WriteRaw(string(b))
	}
}
