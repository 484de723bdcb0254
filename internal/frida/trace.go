package frida

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/apk-analysis/frida-enum/internal/netdump"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
)

// DefaultMaxCapture 每个缓冲区默认最多抓取的字节数
const DefaultMaxCapture = 64 * 1024

// TraceOptions socket 跟踪参数
type TraceOptions struct {
	Inbound    bool // 同时 hook recv/recvfrom
	MaxCapture int  // 每个缓冲区最多抓取的字节数，<= 0 时使用 DefaultMaxCapture；Packet.Length 仍是实际长度
}

// PacketHandler 处理一个被拦截的缓冲区，返回错误时结束跟踪
type PacketHandler func(netdump.Packet) error

// TraceNet hook libc 的 send/sendto（可选 recv/recvfrom），把每次调用交给 handler
// 跟踪持续到 ctx 取消、frida 退出或 handler 返回错误；ctx 取消视为正常结束
func (r *Runtime) TraceNet(ctx context.Context, opts TraceOptions, handler PacketHandler) error {
	if opts.MaxCapture <= 0 {
		opts.MaxCapture = DefaultMaxCapture
	}
	sess := newSession()
	script, err := render(agentNet, agentData{Marker: sess.Marker, Inbound: opts.Inbound, MaxCapture: opts.MaxCapture})
	if err != nil {
		return err
	}

	logger := r.logger.WithField("session", sess.ID)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pr, pw := io.Pipe()
	var runErr error
	var wg conc.WaitGroup
	wg.Go(func() {
		runErr = r.client.Run(runCtx, sess.ID, script, pw, true)
		pw.Close()
	})

	consumeErr := consume(pr, sess.Marker, handler, logger)

	cancel()
	pr.Close()
	wg.Wait()

	switch {
	case ctx.Err() != nil:
		logger.Info("Net trace stopped")
		return nil
	case consumeErr != nil:
		return consumeErr
	case runErr != nil:
		return fmt.Errorf("net trace: %w", runErr)
	}
	return nil
}

func consume(r io.Reader, marker string, handler PacketHandler, logger *logrus.Entry) error {
	reader := NewMessageReader(r, marker)
	for {
		msg, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		// 单条消息损坏只丢弃这一条
		if errors.Is(err, ErrLineTooLong) || errors.Is(err, ErrMalformedMessage) {
			logger.WithError(err).WithField("line", reader.LineNumber()).Warn("Dropping agent message")
			continue
		}
		if err != nil {
			return fmt.Errorf("decode agent message at line %d: %w", reader.LineNumber(), err)
		}

		switch msg.Type {
		case MessageReady:
			logger.Info("Socket hooks installed")
		case MessageError:
			logger.WithField("error", msg.Message).Warn("Agent reported error")
		case MessagePacket:
			pkt, err := toPacket(msg)
			if err != nil {
				logger.WithError(err).Warn("Dropping malformed packet")
				continue
			}
			if err := handler(pkt); err != nil {
				return err
			}
		}
	}
}

func toPacket(msg *Message) (netdump.Packet, error) {
	data, err := hex.DecodeString(msg.Data)
	if err != nil {
		return netdump.Packet{}, fmt.Errorf("packet data: %w", err)
	}
	return netdump.Packet{
		Function: msg.Fn,
		Length:   msg.Len,
		Data:     data,
	}, nil
}
