package console

import (
	"fmt"
	"reflect"
	"sort"
)

// Kind 值的形态标签
type Kind uint8

const (
	KindScalar Kind = iota + 1
	KindSequence
	KindMapping
	KindCallable
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	case KindCallable:
		return "callable"
	default:
		return "unknown"
	}
}

// Value 日志参数的标签联合体
// 只有与 Kind 对应的字段有意义；零值等价于 null 标量
type Value struct {
	Kind    Kind
	Scalar  any     // KindScalar，nil 表示 null
	Items   []Value // KindSequence
	Fields  []Field // KindMapping，保持插入顺序
	Omitted int     // 转换时未展开的元素个数，Len 计入
}

// Field 映射中的一个键值对
type Field struct {
	Key   string
	Value Value
}

func Scalar(v any) Value            { return Value{Kind: KindScalar, Scalar: v} }
func Null() Value                   { return Value{Kind: KindScalar} }
func Sequence(items ...Value) Value { return Value{Kind: KindSequence, Items: items} }
func Mapping(fields ...Field) Value { return Value{Kind: KindMapping, Fields: fields} }
func Callable() Value               { return Value{Kind: KindCallable} }
func KV(key string, v Value) Field  { return Field{Key: key, Value: v} }

// Len 序列或映射的元素个数（含未展开的部分），其余形态为 0
func (v Value) Len() int {
	switch v.Kind {
	case KindSequence:
		return len(v.Items) + v.Omitted
	case KindMapping:
		return len(v.Fields) + v.Omitted
	default:
		return 0
	}
}

// IsContainer 是否为需要结构化渲染的值（序列或映射）
func (v Value) IsContainer() bool {
	return v.Kind == KindSequence || v.Kind == KindMapping
}

const (
	// circularToken 指回当前路径上祖先的引用
	circularToken = "[Circular]"

	// maxDepth 完整转换的最大嵌套层数，更深的容器只记录长度
	maxDepth = 64
)

// Of 在调用边界把 Go 原生值转换为 Value
//   - Value 原样返回
//   - nil / nil 指针 → null
//   - error、fmt.Stringer → 标量（按其字符串形式渲染）
//   - func → Callable
//   - slice / array（含 []byte）→ Sequence
//   - map → Mapping，键按字符串排序保证输出稳定
//   - struct → Mapping，按字段声明顺序，只含导出字段
//   - 其余 → 标量
//
// 指回祖先的指针、map 或 slice 转换为 "[Circular]" 标量。
func Of(v any) Value {
	return newConverter(0, maxDepth).value(v, 0)
}

// Shallow 只展开顶层容器，且最多转换 limit 个序列元素（limit <= 0 不限）
// 更深的容器只保留形态和长度，足够单层渲染使用
func Shallow(v any, limit int) Value {
	return newConverter(limit, 0).value(v, 0)
}

type visit struct {
	ptr uintptr
	typ reflect.Type
}

type converter struct {
	limit int
	depth int
	path  map[visit]struct{}
}

func newConverter(limit, depth int) *converter {
	return &converter{limit: limit, depth: depth, path: make(map[visit]struct{})}
}

func (c *converter) value(v any, level int) Value {
	if v == nil {
		return Null()
	}
	switch t := v.(type) {
	case Value:
		return t
	case []Value:
		return Sequence(t...)
	case []byte:
		if level > c.depth {
			return Value{Kind: KindSequence, Omitted: len(t)}
		}
		n := c.shown(len(t))
		items := make([]Value, n)
		for i := range items {
			items[i] = Scalar(t[i])
		}
		return Value{Kind: KindSequence, Items: items, Omitted: len(t) - n}
	case error, fmt.Stringer:
		return Scalar(t)
	}
	return c.fromReflect(reflect.ValueOf(v), level)
}

func (c *converter) elem(rv reflect.Value, level int) Value {
	if rv.CanInterface() {
		return c.value(rv.Interface(), level)
	}
	return c.fromReflect(rv, level)
}

// enter 记录当前路径上的引用，已在路径上时返回 false
func (c *converter) enter(rv reflect.Value) (visit, bool) {
	key := visit{ptr: rv.Pointer(), typ: rv.Type()}
	if _, ok := c.path[key]; ok {
		return key, false
	}
	c.path[key] = struct{}{}
	return key, true
}

func (c *converter) shown(n int) int {
	if c.limit > 0 && n > c.limit {
		return c.limit
	}
	return n
}

func (c *converter) fromReflect(rv reflect.Value, level int) Value {
	switch rv.Kind() {
	case reflect.Invalid:
		return Null()
	case reflect.Pointer:
		if rv.IsNil() {
			return Null()
		}
		key, ok := c.enter(rv)
		if !ok {
			return Scalar(circularToken)
		}
		defer delete(c.path, key)
		return c.elem(rv.Elem(), level)
	case reflect.Interface:
		if rv.IsNil() {
			return Null()
		}
		return c.elem(rv.Elem(), level)
	case reflect.Func:
		if rv.IsNil() {
			return Null()
		}
		return Callable()
	case reflect.Slice, reflect.Array:
		n := rv.Len()
		if level > c.depth {
			return Value{Kind: KindSequence, Omitted: n}
		}
		if rv.Kind() == reflect.Slice && n > 0 {
			key, ok := c.enter(rv)
			if !ok {
				return Scalar(circularToken)
			}
			defer delete(c.path, key)
		}
		shown := c.shown(n)
		items := make([]Value, shown)
		for i := range items {
			items[i] = c.elem(rv.Index(i), level+1)
		}
		return Value{Kind: KindSequence, Items: items, Omitted: n - shown}
	case reflect.Map:
		if level > c.depth {
			return Value{Kind: KindMapping, Omitted: rv.Len()}
		}
		if !rv.IsNil() {
			key, ok := c.enter(rv)
			if !ok {
				return Scalar(circularToken)
			}
			defer delete(c.path, key)
		}
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
		})
		fields := make([]Field, 0, len(keys))
		for _, k := range keys {
			fields = append(fields, KV(fmt.Sprint(k.Interface()), c.elem(rv.MapIndex(k), level+1)))
		}
		return Mapping(fields...)
	case reflect.Struct:
		rt := rv.Type()
		fields := make([]Field, 0, rt.NumField())
		omitted := 0
		for i := 0; i < rt.NumField(); i++ {
			sf := rt.Field(i)
			if !sf.IsExported() {
				continue
			}
			if level > c.depth {
				omitted++
				continue
			}
			fields = append(fields, KV(sf.Name, c.elem(rv.Field(i), level+1)))
		}
		return Value{Kind: KindMapping, Fields: fields, Omitted: omitted}
	default:
		if rv.CanInterface() {
			return Scalar(rv.Interface())
		}
		return Scalar(rv.String())
	}
}

// Values 批量转换参数列表
func Values(args ...any) []Value {
	out := make([]Value, len(args))
	for i, a := range args {
		out[i] = Of(a)
	}
	return out
}

// ShallowValues 批量做单层转换
func ShallowValues(limit int, args ...any) []Value {
	out := make([]Value, len(args))
	for i, a := range args {
		out[i] = Shallow(a, limit)
	}
	return out
}
