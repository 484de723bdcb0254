package netdump

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCString(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		n    int
		want string
	}{
		{"whole buffer", []byte("GET / HTTP/1.1"), 14, "GET / HTTP/1.1"},
		{"length shorter than buffer", []byte("GET / HTTP/1.1"), 3, "GET"},
		{"stops at NUL", []byte("abc\x00def"), 7, "abc"},
		{"length beyond buffer", []byte("ab"), 10, "ab"},
		{"zero length", []byte("ab"), 0, ""},
		{"negative length", []byte("ab"), -1, ""},
		{"nil buffer", nil, 4, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CString(tt.data, tt.n))
		})
	}
}

func TestRender(t *testing.T) {
	s, ok := Render(Packet{Function: FuncSendTo, Data: []byte("ping\x00junk"), Length: 9})
	assert.True(t, ok)
	assert.Equal(t, "sendto:\nping", s)

	_, ok = Render(Packet{Function: FuncSend, Data: []byte("x"), Length: 0})
	assert.False(t, ok)

	_, ok = Render(Packet{Function: FuncRecv, Length: -1})
	assert.False(t, ok)
}

func TestPacket_Outbound(t *testing.T) {
	assert.True(t, Packet{Function: FuncSend}.Outbound())
	assert.True(t, Packet{Function: FuncSendTo}.Outbound())
	assert.False(t, Packet{Function: FuncRecv}.Outbound())
	assert.False(t, Packet{Function: FuncRecvFrom}.Outbound())
}

func TestPrinter_Plain(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, false)

	printed, err := p.Print(Packet{Function: FuncSend, Data: []byte("hello"), Length: 5})
	require.NoError(t, err)
	assert.True(t, printed)

	printed, err = p.Print(Packet{Function: FuncRecv, Data: []byte("x"), Length: 0})
	require.NoError(t, err)
	assert.False(t, printed)

	assert.Equal(t, "send:\nhello\n", buf.String())
}

func TestPrinter_Colored(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, true)

	_, err := p.Print(Packet{Function: FuncRecvFrom, Data: []byte("pong"), Length: 4})
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "\x1b[")
	assert.Contains(t, buf.String(), "recvfrom:")
	assert.Contains(t, buf.String(), "pong\n")
}
