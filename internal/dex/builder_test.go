package dex

import (
	"bytes"
	"encoding/binary"
	"strings"
)

// 测试用的最小 DEX 构造器，只生成解析器会读取的表

type testMethod struct {
	name   string
	ret    string
	params []string
	flags  uint32
}

type testClass struct {
	desc    string
	direct  []testMethod
	virtual []testMethod
	noData  bool
}

type testProto struct {
	shorty string
	ret    string
	params []string
}

type testMethodID struct {
	class, proto, name uint32
}

type dexBuilder struct {
	strs      []string
	strIdx    map[string]uint32
	types     []uint32
	typeIdx   map[string]uint32
	protos    []testProto
	protoIdx  map[string]uint32
	methodIDs []testMethodID
}

func newDexBuilder() *dexBuilder {
	return &dexBuilder{
		strIdx:   map[string]uint32{},
		typeIdx:  map[string]uint32{},
		protoIdx: map[string]uint32{},
	}
}

func (b *dexBuilder) str(s string) uint32 {
	if i, ok := b.strIdx[s]; ok {
		return i
	}
	b.strIdx[s] = uint32(len(b.strs))
	b.strs = append(b.strs, s)
	return b.strIdx[s]
}

func (b *dexBuilder) typ(desc string) uint32 {
	if i, ok := b.typeIdx[desc]; ok {
		return i
	}
	b.typeIdx[desc] = uint32(len(b.types))
	b.types = append(b.types, b.str(desc))
	return b.typeIdx[desc]
}

func shortyChar(desc string) byte {
	if desc[0] == 'L' || desc[0] == '[' {
		return 'L'
	}
	return desc[0]
}

func (b *dexBuilder) proto(ret string, params []string) uint32 {
	key := ret + "(" + strings.Join(params, ",") + ")"
	if i, ok := b.protoIdx[key]; ok {
		return i
	}
	shorty := []byte{shortyChar(ret)}
	for _, p := range params {
		shorty = append(shorty, shortyChar(p))
	}
	b.str(string(shorty))
	b.typ(ret)
	for _, p := range params {
		b.typ(p)
	}
	b.protoIdx[key] = uint32(len(b.protos))
	b.protos = append(b.protos, testProto{shorty: string(shorty), ret: ret, params: params})
	return b.protoIdx[key]
}

func appendULEB128(buf *bytes.Buffer, v uint32) {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			buf.WriteByte(c | 0x80)
			continue
		}
		buf.WriteByte(c)
		return
	}
}

func putU32(buf []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(buf[off:], v)
}

// buildDex 生成包含 classes 的 DEX 数据
func buildDex(classes []testClass) []byte {
	b := newDexBuilder()

	classTypes := make([]uint32, len(classes))
	for i, c := range classes {
		classTypes[i] = b.typ(c.desc)
		for _, list := range [][]testMethod{c.direct, c.virtual} {
			for _, m := range list {
				b.methodIDs = append(b.methodIDs, testMethodID{
					class: classTypes[i],
					proto: b.proto(m.ret, m.params),
					name:  b.str(m.name),
				})
			}
		}
	}

	off := headerSize
	stringIDsOff := off
	off += 4 * len(b.strs)
	typeIDsOff := off
	off += 4 * len(b.types)
	protoIDsOff := off
	off += 12 * len(b.protos)
	methodIDsOff := off
	off += 8 * len(b.methodIDs)
	classDefsOff := off
	off += 32 * len(classes)
	dataOff := off

	var data bytes.Buffer
	abs := func() uint32 { return uint32(dataOff + data.Len()) }
	align4 := func() {
		for abs()%4 != 0 {
			data.WriteByte(0)
		}
	}

	strOffs := make([]uint32, len(b.strs))
	for i, s := range b.strs {
		strOffs[i] = abs()
		appendULEB128(&data, uint32(len(s)))
		data.WriteString(s)
		data.WriteByte(0)
	}

	paramOffs := make([]uint32, len(b.protos))
	for i, p := range b.protos {
		if len(p.params) == 0 {
			continue
		}
		align4()
		paramOffs[i] = abs()
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], uint32(len(p.params)))
		data.Write(tmp[:])
		for _, param := range p.params {
			binary.LittleEndian.PutUint16(tmp[:2], uint16(b.typeIdx[param]))
			data.Write(tmp[:2])
		}
	}

	classDataOffs := make([]uint32, len(classes))
	methodIdx := uint32(0)
	for i, c := range classes {
		if c.noData {
			methodIdx += uint32(len(c.direct) + len(c.virtual))
			continue
		}
		classDataOffs[i] = abs()
		appendULEB128(&data, 0)
		appendULEB128(&data, 0)
		appendULEB128(&data, uint32(len(c.direct)))
		appendULEB128(&data, uint32(len(c.virtual)))
		for _, list := range [][]testMethod{c.direct, c.virtual} {
			prev := uint32(0)
			for j, m := range list {
				diff := methodIdx - prev
				if j == 0 {
					diff = methodIdx
				}
				appendULEB128(&data, diff)
				appendULEB128(&data, m.flags)
				appendULEB128(&data, 0)
				prev = methodIdx
				methodIdx++
			}
		}
	}

	out := make([]byte, dataOff+data.Len())
	copy(out, "dex\n035\x00")
	putU32(out, 32, uint32(len(out)))
	putU32(out, 36, headerSize)
	putU32(out, 40, endianConst)
	putU32(out, 56, uint32(len(b.strs)))
	putU32(out, 60, uint32(stringIDsOff))
	putU32(out, 64, uint32(len(b.types)))
	putU32(out, 68, uint32(typeIDsOff))
	putU32(out, 72, uint32(len(b.protos)))
	putU32(out, 76, uint32(protoIDsOff))
	putU32(out, 88, uint32(len(b.methodIDs)))
	putU32(out, 92, uint32(methodIDsOff))
	putU32(out, 96, uint32(len(classes)))
	putU32(out, 100, uint32(classDefsOff))
	putU32(out, 104, uint32(data.Len()))
	putU32(out, 108, uint32(dataOff))

	for i, so := range strOffs {
		putU32(out, stringIDsOff+4*i, so)
	}
	for i, s := range b.types {
		putU32(out, typeIDsOff+4*i, s)
	}
	for i, p := range b.protos {
		base := protoIDsOff + 12*i
		putU32(out, base, b.strIdx[p.shorty])
		putU32(out, base+4, b.typeIdx[p.ret])
		putU32(out, base+8, paramOffs[i])
	}
	for i, m := range b.methodIDs {
		base := methodIDsOff + 8*i
		binary.LittleEndian.PutUint16(out[base:], uint16(m.class))
		binary.LittleEndian.PutUint16(out[base+2:], uint16(m.proto))
		putU32(out, base+4, m.name)
	}
	for i := range classes {
		base := classDefsOff + 32*i
		putU32(out, base, classTypes[i])
		putU32(out, base+4, AccPublic)
		putU32(out, base+8, 0xffffffff)
		putU32(out, base+24, classDataOffs[i])
	}
	copy(out[dataOff:], data.Bytes())

	return out
}
