package dex

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// 访问标志
const (
	AccPublic       = 0x1
	AccPrivate      = 0x2
	AccProtected    = 0x4
	AccStatic       = 0x8
	AccFinal        = 0x10
	AccSynchronized = 0x20
	AccBridge       = 0x40
	AccVarargs      = 0x80
	AccNative       = 0x100
	AccAbstract     = 0x400
	AccStrict       = 0x800
	AccSynthetic    = 0x1000
	AccConstructor  = 0x10000
)

// Method 类中声明的一个方法
type Method struct {
	Class       string   // 点分类名
	Name        string
	Params      []string // Java 类型名
	Return      string
	AccessFlags uint32
}

// String 与 java.lang.reflect.Method.toString 的格式一致，例如
// public static void com.a.B.run(int,java.lang.String)
func (m Method) String() string {
	var b strings.Builder
	if mods := modifiers(m.AccessFlags); mods != "" {
		b.WriteString(mods)
		b.WriteByte(' ')
	}
	b.WriteString(m.Return)
	b.WriteByte(' ')
	b.WriteString(m.Class)
	b.WriteByte('.')
	b.WriteString(m.Name)
	b.WriteByte('(')
	b.WriteString(strings.Join(m.Params, ","))
	b.WriteByte(')')
	return b.String()
}

// modifiers 顺序与 java.lang.reflect.Modifier.toString 相同
func modifiers(flags uint32) string {
	var mods []string
	for _, m := range []struct {
		flag uint32
		name string
	}{
		{AccPublic, "public"},
		{AccProtected, "protected"},
		{AccPrivate, "private"},
		{AccAbstract, "abstract"},
		{AccStatic, "static"},
		{AccFinal, "final"},
		{AccSynchronized, "synchronized"},
		{AccNative, "native"},
		{AccStrict, "strictfp"},
	} {
		if flags&m.flag != 0 {
			mods = append(mods, m.name)
		}
	}
	return strings.Join(mods, " ")
}

// TypeName 把类型描述符转换为 Java 源码中的类型名
// I → int，[Ljava/lang/String; → java.lang.String[]
func TypeName(desc string) string {
	dims := 0
	for dims < len(desc) && desc[dims] == '[' {
		dims++
	}
	base := desc[dims:]
	var name string
	switch base {
	case "V":
		name = "void"
	case "Z":
		name = "boolean"
	case "B":
		name = "byte"
	case "S":
		name = "short"
	case "C":
		name = "char"
	case "I":
		name = "int"
	case "J":
		name = "long"
	case "F":
		name = "float"
	case "D":
		name = "double"
	default:
		if len(base) >= 2 && base[0] == 'L' && base[len(base)-1] == ';' {
			name = strings.ReplaceAll(base[1:len(base)-1], "/", ".")
		} else {
			name = base
		}
	}
	return name + strings.Repeat("[]", dims)
}

// Methods 返回类中声明的方法（direct + virtual），不含构造器和静态初始化块
// classDesc 为类描述符，例如 Lcom/a/B;
func (f *File) Methods(classDesc string) ([]Method, error) {
	def, ok := f.findClassDef(classDesc)
	if !ok {
		return nil, fmt.Errorf("class %s not defined in %s", classDesc, f.Name)
	}
	if def.ClassDataOff == 0 {
		// 没有 class_data，例如标记接口
		return []Method{}, nil
	}

	data := f.data
	pos := int(def.ClassDataOff)
	next := func() (uint32, error) {
		v, n, err := readULEB128(data, pos)
		pos += n
		return v, err
	}

	var sizes [4]uint32 // static_fields, instance_fields, direct_methods, virtual_methods
	for i := range sizes {
		v, err := next()
		if err != nil {
			return nil, fmt.Errorf("class_data of %s: %w", classDesc, err)
		}
		sizes[i] = v
	}

	// 计数来自不可信输入，先按每项的最小编码长度和剩余字节校验
	// 字段至少 2 字节，方法至少 3 字节
	fieldCount := uint64(sizes[0]) + uint64(sizes[1])
	methodCount := uint64(sizes[2]) + uint64(sizes[3])
	if remaining := uint64(len(data) - pos); fieldCount*2+methodCount*3 > remaining {
		return nil, fmt.Errorf("class_data of %s: %w: %d fields and %d methods in %d bytes",
			classDesc, ErrTruncated, fieldCount, methodCount, remaining)
	}

	// 跳过字段：field_idx_diff, access_flags
	for i := uint64(0); i < fieldCount*2; i++ {
		if _, err := next(); err != nil {
			return nil, fmt.Errorf("class_data fields of %s: %w", classDesc, err)
		}
	}

	methods := make([]Method, 0, methodCount)
	for _, count := range sizes[2:] {
		var methodIdx uint32
		for i := uint32(0); i < count; i++ {
			diff, err := next()
			if err != nil {
				return nil, fmt.Errorf("class_data methods of %s: %w", classDesc, err)
			}
			flags, err := next()
			if err != nil {
				return nil, fmt.Errorf("class_data methods of %s: %w", classDesc, err)
			}
			if _, err := next(); err != nil { // code_off
				return nil, fmt.Errorf("class_data methods of %s: %w", classDesc, err)
			}
			methodIdx += diff

			m, err := f.method(methodIdx, flags)
			if err != nil {
				return nil, err
			}
			if m.Name == "<init>" || m.Name == "<clinit>" {
				continue
			}
			methods = append(methods, m)
		}
	}

	return methods, nil
}

func (f *File) findClassDef(classDesc string) (ClassDef, bool) {
	for _, def := range f.classDefs {
		desc, err := f.TypeDescriptor(def.ClassIdx)
		if err == nil && desc == classDesc {
			return def, true
		}
	}
	return ClassDef{}, false
}

// method 读取 method_ids[idx] 及其 proto
func (f *File) method(idx, flags uint32) (Method, error) {
	if idx >= f.Header.MethodIDsSize {
		return Method{}, fmt.Errorf("method index %d out of range", idx)
	}
	off := f.Header.MethodIDsOff + idx*methodIDSize
	classIdx := uint32(binary.LittleEndian.Uint16(f.data[off:]))
	protoIdx := uint32(binary.LittleEndian.Uint16(f.data[off+2:]))
	nameIdx := binary.LittleEndian.Uint32(f.data[off+4:])

	classDesc, err := f.TypeDescriptor(classIdx)
	if err != nil {
		return Method{}, err
	}
	name, err := f.String(nameIdx)
	if err != nil {
		return Method{}, err
	}
	ret, params, err := f.proto(protoIdx)
	if err != nil {
		return Method{}, err
	}

	return Method{
		Class:       TypeName(classDesc),
		Name:        name,
		Params:      params,
		Return:      ret,
		AccessFlags: flags,
	}, nil
}

// proto 读取 proto_ids[idx]，返回返回值类型和参数类型
func (f *File) proto(idx uint32) (string, []string, error) {
	if idx >= f.Header.ProtoIDsSize {
		return "", nil, fmt.Errorf("proto index %d out of range", idx)
	}
	off := f.Header.ProtoIDsOff + idx*protoIDSize
	returnIdx := binary.LittleEndian.Uint32(f.data[off+4:])
	paramsOff := binary.LittleEndian.Uint32(f.data[off+8:])

	retDesc, err := f.TypeDescriptor(returnIdx)
	if err != nil {
		return "", nil, err
	}

	params := []string{}
	if paramsOff != 0 {
		if err := f.checkRange(paramsOff, 4); err != nil {
			return "", nil, err
		}
		size := binary.LittleEndian.Uint32(f.data[paramsOff:])
		if err := f.checkRange(paramsOff+4, uint64(size)*2); err != nil {
			return "", nil, err
		}
		params = make([]string, size)
		for i := uint32(0); i < size; i++ {
			typeIdx := uint32(binary.LittleEndian.Uint16(f.data[paramsOff+4+i*2:]))
			desc, err := f.TypeDescriptor(typeIdx)
			if err != nil {
				return "", nil, err
			}
			params[i] = TypeName(desc)
		}
	}

	return TypeName(retDesc), params, nil
}
