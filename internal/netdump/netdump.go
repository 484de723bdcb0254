// Package netdump 渲染被拦截的 socket 收发缓冲区
package netdump

import (
	"bytes"
	"fmt"
	"io"

	"github.com/fatih/color"
)

// 被 hook 的 libc 导出函数
const (
	FuncSend     = "send"
	FuncSendTo   = "sendto"
	FuncRecv     = "recv"
	FuncRecvFrom = "recvfrom"
)

// Packet 一次被拦截的调用：函数名、缓冲区内容和调用给出的长度
type Packet struct {
	Function string `json:"fn"`
	Length   int    `json:"len"`
	Data     []byte `json:"-"`
}

// Outbound 是否为发送方向
func (p Packet) Outbound() bool {
	return p.Function == FuncSend || p.Function == FuncSendTo
}

// CString 按 C 字符串读取：最多 n 字节，遇到 NUL 截止
func CString(data []byte, n int) string {
	if n > len(data) {
		n = len(data)
	}
	if n <= 0 {
		return ""
	}
	b := data[:n]
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// Render 渲染为 "<fn>:\n<payload>"，长度不为正时不输出
func Render(p Packet) (string, bool) {
	if p.Length <= 0 {
		return "", false
	}
	return p.Function + ":\n" + CString(p.Data, p.Length), true
}

// Printer 把数据包写到终端，标题按方向着色
type Printer struct {
	w        io.Writer
	outbound *color.Color
	inbound  *color.Color
}

// NewPrinter 创建 Printer，colored 为 false 时输出纯文本
func NewPrinter(w io.Writer, colored bool) *Printer {
	p := &Printer{
		w:        w,
		outbound: color.New(color.FgGreen, color.Bold),
		inbound:  color.New(color.FgYellow, color.Bold),
	}
	if colored {
		p.outbound.EnableColor()
		p.inbound.EnableColor()
	} else {
		p.outbound.DisableColor()
		p.inbound.DisableColor()
	}
	return p
}

// Print 输出一个数据包，返回是否有输出
func (p *Printer) Print(pkt Packet) (bool, error) {
	if pkt.Length <= 0 {
		return false, nil
	}
	title := p.inbound
	if pkt.Outbound() {
		title = p.outbound
	}
	_, err := fmt.Fprintf(p.w, "%s\n%s\n", title.Sprint(pkt.Function+":"), CString(pkt.Data, pkt.Length))
	return err == nil, err
}
