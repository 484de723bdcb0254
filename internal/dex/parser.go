// Package dex 读取 DEX 文件中定义的类和方法，
// 作为离线的类目录运行时使用（不需要连接设备）。
//
// 格式参考 https://source.android.com/docs/core/runtime/dex-format
package dex

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	headerSize    = 0x70
	endianConst   = 0x12345678
	classDefSize  = 32
	methodIDSize  = 8
	protoIDSize   = 12
	typeIDSize    = 4
	stringIDSize  = 4
	maxULEB128Len = 5
)

var (
	magicPrefix = []byte("dex\n")

	ErrInvalidMagic = errors.New("invalid dex magic")
	ErrTruncated    = errors.New("dex data truncated")
)

// Header DEX 文件头中用到的字段
type Header struct {
	Version       string
	FileSize      uint32
	StringIDsSize uint32
	StringIDsOff  uint32
	TypeIDsSize   uint32
	TypeIDsOff    uint32
	ProtoIDsSize  uint32
	ProtoIDsOff   uint32
	MethodIDsSize uint32
	MethodIDsOff  uint32
	ClassDefsSize uint32
	ClassDefsOff  uint32
}

// ClassDef class_def_item
type ClassDef struct {
	ClassIdx      uint32
	AccessFlags   uint32
	SuperclassIdx uint32
	ClassDataOff  uint32
}

// File 解析后的 DEX 文件
// 只在 Parse 时校验表边界，字符串和方法按需读取
type File struct {
	Name      string
	Header    Header
	data      []byte
	classDefs []ClassDef
}

// Parse 解析 DEX 数据，data 在 File 的整个生命周期内不能被修改
func Parse(data []byte) (*File, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes is smaller than the header", ErrTruncated, len(data))
	}
	if !bytes.Equal(data[:4], magicPrefix) || data[7] != 0 {
		return nil, fmt.Errorf("%w: % x", ErrInvalidMagic, data[:8])
	}
	if tag := binary.LittleEndian.Uint32(data[40:]); tag != endianConst {
		return nil, fmt.Errorf("unsupported endian tag %#x", tag)
	}

	u32 := func(off int) uint32 { return binary.LittleEndian.Uint32(data[off:]) }
	h := Header{
		Version:       string(data[4:7]),
		FileSize:      u32(32),
		StringIDsSize: u32(56),
		StringIDsOff:  u32(60),
		TypeIDsSize:   u32(64),
		TypeIDsOff:    u32(68),
		ProtoIDsSize:  u32(72),
		ProtoIDsOff:   u32(76),
		MethodIDsSize: u32(88),
		MethodIDsOff:  u32(92),
		ClassDefsSize: u32(96),
		ClassDefsOff:  u32(100),
	}

	f := &File{Header: h, data: data}
	tables := []struct {
		name      string
		off, size uint32
		item      uint32
	}{
		{"string_ids", h.StringIDsOff, h.StringIDsSize, stringIDSize},
		{"type_ids", h.TypeIDsOff, h.TypeIDsSize, typeIDSize},
		{"proto_ids", h.ProtoIDsOff, h.ProtoIDsSize, protoIDSize},
		{"method_ids", h.MethodIDsOff, h.MethodIDsSize, methodIDSize},
		{"class_defs", h.ClassDefsOff, h.ClassDefsSize, classDefSize},
	}
	for _, t := range tables {
		if err := f.checkRange(t.off, uint64(t.size)*uint64(t.item)); err != nil {
			return nil, fmt.Errorf("%s: %w", t.name, err)
		}
	}

	f.classDefs = make([]ClassDef, h.ClassDefsSize)
	for i := range f.classDefs {
		off := int(h.ClassDefsOff) + i*classDefSize
		f.classDefs[i] = ClassDef{
			ClassIdx:      u32(off),
			AccessFlags:   u32(off + 4),
			SuperclassIdx: u32(off + 8),
			ClassDataOff:  u32(off + 24),
		}
	}

	return f, nil
}

func (f *File) checkRange(off uint32, n uint64) error {
	if uint64(off)+n > uint64(len(f.data)) {
		return fmt.Errorf("%w: [%#x, %#x) beyond %#x", ErrTruncated, off, uint64(off)+n, len(f.data))
	}
	return nil
}

// String 读取 string_ids[idx] 指向的字符串（MUTF-8）
func (f *File) String(idx uint32) (string, error) {
	if idx >= f.Header.StringIDsSize {
		return "", fmt.Errorf("string index %d out of range", idx)
	}
	dataOff := binary.LittleEndian.Uint32(f.data[f.Header.StringIDsOff+idx*stringIDSize:])
	if err := f.checkRange(dataOff, 1); err != nil {
		return "", err
	}
	// utf16_size 只是长度提示，以 NUL 结尾为准
	_, n, err := readULEB128(f.data, int(dataOff))
	if err != nil {
		return "", err
	}
	start := int(dataOff) + n
	end := bytes.IndexByte(f.data[start:], 0)
	if end < 0 {
		return "", fmt.Errorf("%w: unterminated string at %#x", ErrTruncated, dataOff)
	}
	return decodeMUTF8(f.data[start : start+end]), nil
}

// TypeDescriptor 读取 type_ids[idx] 的描述符
func (f *File) TypeDescriptor(idx uint32) (string, error) {
	if idx >= f.Header.TypeIDsSize {
		return "", fmt.Errorf("type index %d out of range", idx)
	}
	return f.String(binary.LittleEndian.Uint32(f.data[f.Header.TypeIDsOff+idx*typeIDSize:]))
}

// ClassDefs 按文件顺序返回所有 class_def
func (f *File) ClassDefs() []ClassDef {
	return f.classDefs
}

// Classes 按 class_def 顺序返回类描述符，无法读取的条目原样跳过
func (f *File) Classes() []string {
	out := make([]string, 0, len(f.classDefs))
	for _, def := range f.classDefs {
		desc, err := f.TypeDescriptor(def.ClassIdx)
		if err != nil {
			continue
		}
		out = append(out, desc)
	}
	return out
}

// readULEB128 返回值和消耗的字节数
func readULEB128(data []byte, off int) (uint32, int, error) {
	var result uint32
	for i := 0; i < maxULEB128Len; i++ {
		if off+i >= len(data) {
			return 0, 0, fmt.Errorf("%w: uleb128 at %#x", ErrTruncated, off)
		}
		b := data[off+i]
		result |= uint32(b&0x7f) << (7 * uint(i))
		if b&0x80 == 0 {
			return result, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("invalid uleb128 at %#x", off)
}

// decodeMUTF8 处理 MUTF-8 中的 NUL 编码（C0 80），其余按 UTF-8 处理
func decodeMUTF8(b []byte) string {
	if !bytes.Contains(b, []byte{0xc0, 0x80}) {
		return string(b)
	}
	return string(bytes.ReplaceAll(b, []byte{0xc0, 0x80}, []byte{0}))
}
