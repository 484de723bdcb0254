package frida

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// 消息类型
const (
	MessageClass   = "class"
	MessageMethod  = "method"
	MessagePacket  = "packet"
	MessagePackage = "package"
	MessageError   = "error"
	MessageReady   = "ready"
	MessageDone    = "done"
)

// Message agent 通过 console.log 输出的一条消息
type Message struct {
	Type    string `json:"type"`
	Name    string `json:"name,omitempty"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message,omitempty"`
	Fn      string `json:"fn,omitempty"`
	Len     int    `json:"len,omitempty"`
	Data    string `json:"data,omitempty"`

	Package *PackageInfo `json:"package,omitempty"` // 仅 package 消息
}

// MaxLineSize 单行输出的上限，超过的行整体丢弃
const MaxLineSize = 10 * 1024 * 1024

var (
	// ErrLineTooLong 带本会话标记的行超过 MaxLineSize，读取器仍可继续使用
	ErrLineTooLong = errors.New("agent message exceeds line limit")
	// ErrMalformedMessage 带标记的行不是合法的 JSON 消息
	ErrMalformedMessage = errors.New("malformed agent message")
)

// MessageReader 流式读取 frida 输出，只解析带本会话标记的行
// 其余行（frida 自身的提示、目标应用的日志）直接跳过
type MessageReader struct {
	reader  *bufio.Reader
	marker  []byte
	maxLine int
	line    []byte
	lineNum int
}

// NewMessageReader 创建读取器
func NewMessageReader(r io.Reader, marker string) *MessageReader {
	return newMessageReaderSize(r, marker, MaxLineSize)
}

func newMessageReaderSize(r io.Reader, marker string, maxLine int) *MessageReader {
	return &MessageReader{
		reader:  bufio.NewReaderSize(r, 64*1024),
		marker:  []byte(marker),
		maxLine: maxLine,
	}
}

// Next 读取下一条消息，读完返回 io.EOF
// ErrLineTooLong 和 ErrMalformedMessage 只影响当前行，之后可以继续调用 Next
func (r *MessageReader) Next() (*Message, error) {
	for {
		line, size, err := r.readLine()
		if err != nil {
			return nil, err
		}

		idx := bytes.Index(line, r.marker)
		if idx < 0 {
			continue
		}
		if size > r.maxLine {
			return nil, fmt.Errorf("%w: %d bytes", ErrLineTooLong, size)
		}

		var msg Message
		if err := json.Unmarshal(line[idx+len(r.marker):], &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		return &msg, nil
	}
}

// readLine 读取一行，返回去掉换行的内容和整行字节数（含换行）
// 超长的行只保留前 maxLine 个字节，其余部分读出后丢弃
func (r *MessageReader) readLine() ([]byte, int, error) {
	r.line = r.line[:0]
	size := 0
	for {
		chunk, err := r.reader.ReadSlice('\n')
		if keep := r.maxLine - len(r.line); keep > 0 {
			if len(chunk) > keep {
				r.line = append(r.line, chunk[:keep]...)
			} else {
				r.line = append(r.line, chunk...)
			}
		}
		size += len(chunk)

		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil && (!errors.Is(err, io.EOF) || size == 0) {
			return nil, 0, err
		}
		break
	}
	r.lineNum++

	return bytes.TrimRight(r.line, "\r\n"), size, nil
}

// LineNumber 获取当前行号
func (r *MessageReader) LineNumber() int {
	return r.lineNum
}
