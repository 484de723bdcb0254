package frida

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/apk-analysis/frida-enum/internal/retry"
	"github.com/sirupsen/logrus"
)

// DefaultBinary frida CLI 可执行文件名
const DefaultBinary = "frida"

// Options frida 连接与注入参数
type Options struct {
	Binary    string        // frida 可执行文件，默认 "frida"
	Host      string        // Frida 网络连接地址（WiFi 模式），如 "192.168.2.34:27042"
	Device    string        // ADB 设备序列号
	USB       bool          // USB 模式
	Target    string        // 包名或进程名
	Spawn     bool          // true 时启动应用 (-f)，否则附加到已运行进程 (-n)
	Timeout   time.Duration // 单次枚举的超时，0 表示不限制
	ScriptDir string        // 生成的脚本存放目录，默认系统临时目录
}

// Executor 执行外部命令，stdout 写入 w
type Executor interface {
	Run(ctx context.Context, name string, args []string, stdout io.Writer) error
}

// CommandExecutor 基于 os/exec 的默认实现
type CommandExecutor struct{}

// Run 运行命令，失败时带上 stderr
func (CommandExecutor) Run(ctx context.Context, name string, args []string, stdout io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stdout = stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return retry.NewNonRetryableError(fmt.Errorf("%s not installed: %w", name, err))
		}
		return fmt.Errorf("%s failed: %w, stderr: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Client Frida 客户端
type Client struct {
	opts     Options
	executor Executor
	logger   *logrus.Logger
}

// NewClient 创建 Frida 客户端，executor 为 nil 时使用 CommandExecutor
func NewClient(opts Options, executor Executor, logger *logrus.Logger) *Client {
	if opts.Binary == "" {
		opts.Binary = DefaultBinary
	}
	if opts.ScriptDir == "" {
		opts.ScriptDir = os.TempDir()
	}
	if executor == nil {
		executor = CommandExecutor{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		opts:     opts,
		executor: executor,
		logger:   logger,
	}
}

// Options 返回补全默认值后的参数
func (c *Client) Options() Options {
	return c.opts
}

// Args 构建 frida 命令参数
// 连接方式优先级：Host (-H) > Device (-D) > USB (-U)，都未设置时连接本机
// keepAlive 为 true 时脚本加载后不退出，直到进程被取消
func (c *Client) Args(scriptPath string, keepAlive bool) []string {
	var args []string
	switch {
	case c.opts.Host != "":
		args = append(args, "-H", c.opts.Host)
	case c.opts.Device != "":
		args = append(args, "-D", c.opts.Device)
	case c.opts.USB:
		args = append(args, "-U")
	}

	if c.opts.Spawn {
		args = append(args, "-f", c.opts.Target)
	} else {
		args = append(args, "-n", c.opts.Target)
	}

	args = append(args, "-l", scriptPath, "-q")
	if keepAlive {
		args = append(args, "-t", "inf")
	}
	return args
}

// Run 把脚本写入临时文件并注入目标进程，脚本的 console 输出写入 stdout
func (c *Client) Run(ctx context.Context, sessionID, script string, stdout io.Writer, keepAlive bool) error {
	if c.opts.Target == "" {
		return retry.NewNonRetryableError(errors.New("frida target not set"))
	}

	scriptPath := filepath.Join(c.opts.ScriptDir, "frida-enum-"+sessionID+".js")
	if err := os.WriteFile(scriptPath, []byte(script), 0600); err != nil {
		return retry.NewNonRetryableError(fmt.Errorf("failed to write agent script: %w", err))
	}
	defer os.Remove(scriptPath)

	if !keepAlive && c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	args := c.Args(scriptPath, keepAlive)
	c.logger.WithFields(logrus.Fields{
		"session":    sessionID,
		"target":     c.opts.Target,
		"frida_host": c.opts.Host,
		"spawn":      c.opts.Spawn,
	}).Debug("Injecting Frida agent")

	if err := c.executor.Run(ctx, c.opts.Binary, args, stdout); err != nil {
		return fmt.Errorf("failed to inject agent: %w", err)
	}
	return nil
}
