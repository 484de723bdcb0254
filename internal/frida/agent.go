package frida

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"

	"github.com/google/uuid"
)

//go:embed agents/*.js
var agentFS embed.FS

var agents = template.Must(template.ParseFS(agentFS, "agents/*.js"))

const (
	agentClasses = "classes.js"
	agentMethods = "methods.js"
	agentNet     = "net.js"
	agentPackage = "package.js"
)

// agentData 模板参数
type agentData struct {
	Marker     string
	Class      string
	Inbound    bool
	MaxCapture int
}

// session 一次注入会话，Marker 用于从 frida 输出中挑出本会话的消息
type session struct {
	ID     string
	Marker string
}

func newSession() session {
	id := uuid.New().String()
	return session{
		ID:     id,
		Marker: "@@frida-enum:" + id + "@@",
	}
}

// render 渲染 agent 脚本
func render(name string, data agentData) (string, error) {
	var buf bytes.Buffer
	if err := agents.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render agent %s: %w", name, err)
	}
	return buf.String(), nil
}
