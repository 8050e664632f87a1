// Package supervisor
package supervisor

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"watchdogd/pkg/codec"
	"watchdogd/pkg/logger"

	"github.com/fxamacker/cbor/v2"
	"go.uber.org/zap"
)

const (
	// 帧头是 8 字节大端序的消息长度
	frameHeaderSize = 8
	maxFrameSize    = 1 << 20

	// sessionTimeout 覆盖 ApplyConfiguration 中停止守护进程的命令
	sessionTimeout = 3 * time.Minute

	// recvTimeout 限制客户端发送请求的时间
	recvTimeout = 10 * time.Second
)

type rpcSocket struct {
	conn net.Conn
}

// Recv 读取一帧
func (s *rpcSocket) Recv() ([]byte, error) {
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(s.conn, header); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint64(header)
	if size > maxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit", size)
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(s.conn, buf); err != nil {
		return nil, err
	}

	return buf, nil
}

// Send 写入一帧
func (s *rpcSocket) Send(v []byte) error {
	header := make([]byte, frameHeaderSize)
	binary.BigEndian.PutUint64(header, uint64(len(v)))

	if _, err := s.conn.Write(header); err != nil {
		return err
	}

	_, err := s.conn.Write(v)
	return err
}

func (s *rpcSocket) Close() error {
	return s.conn.Close()
}

// CtlSession 处理一个控制连接上的一次请求
type CtlSession struct {
	sv     *Supervisor
	sock   *rpcSocket
	logger *zap.SugaredLogger
}

func NewSession(s *Supervisor, c net.Conn) *CtlSession {
	return &CtlSession{
		sv: s,
		sock: &rpcSocket{
			conn: c,
		},
		logger: logger.Logging("ctl-session"),
	}
}

func (se *CtlSession) errorResponse(code int, err error) (*codec.ResponseMsg, codec.ResponseCtl) {
	se.logger.Error(err)
	return &codec.ResponseMsg{
		Code:    code,
		Message: err.Error(),
	}, codec.ResponseMsgErr
}

// sendResponse 编码并发送响应，发送失败返回 ResponseMsgErr
func (se *CtlSession) sendResponse(res *codec.ResponseMsg, result codec.ResponseCtl) codec.ResponseCtl {
	encoder, err := codec.GetEncoder()
	if err != nil {
		se.logger.Error(err)
		return codec.ResponseMsgErr
	}

	buf, err := encoder.Marshal(res)
	if err != nil {
		se.logger.Error(err)
		return codec.ResponseMsgErr
	}

	if err = se.sock.Send(buf); err != nil {
		se.logger.Error(err)
		return codec.ResponseMsgErr
	}

	return result
}

func (se *CtlSession) Handle() codec.ResponseCtl {
	defer func() {
		_ = se.sock.Close()
	}()

	_ = se.sock.conn.SetReadDeadline(time.Now().Add(recvTimeout))

	buf, err := se.sock.Recv()
	if err != nil {
		res, result := se.errorResponse(400, err)
		return se.sendResponse(res, result)
	}

	var msg codec.ActionMsg
	if err = cbor.Unmarshal(buf, &msg); err != nil {
		res, result := se.errorResponse(400, err)
		return se.sendResponse(res, result)
	}

	_ = se.sock.conn.SetReadDeadline(time.Time{})

	ctx, cancel := context.WithTimeout(context.Background(), sessionTimeout)
	defer cancel()

	var res *codec.ResponseMsg
	result := codec.ResponseNormal

	switch msg.Action {
	case codec.ActionStatus:
		res, result = se.doStatus(ctx)
	case codec.ActionList:
		res = se.doList()
	case codec.ActionRegister:
		res, result = se.doRegister(&msg)
	case codec.ActionUnregister:
		if h, ok := se.sv.Lookup(msg.ID); ok {
			se.sv.Unregister(h)
		}
		res = se.ok(msg.Action)
	case codec.ActionCheckin:
		// 未知或已注销的 ID 静默忽略
		if h, ok := se.sv.Lookup(msg.ID); ok {
			se.sv.Checkin(h)
		}
		res = se.ok(msg.Action)
	case codec.ActionReload:
		if err := se.sv.Reload(ctx); err != nil {
			res, result = se.errorResponse(500, err)
		} else {
			res = se.ok(msg.Action)
			result = codec.ResponseReload
		}
	case codec.ActionShutdown:
		res = &codec.ResponseMsg{
			Code:    200,
			Message: "Shutdown prepared",
		}
		result = codec.ResponseShutdown
	case codec.ActionHistory:
		res, result = se.doHistory()
	default:
		res, result = se.errorResponse(400, fmt.Errorf("unknown action %d", msg.Action))
	}

	return se.sendResponse(res, result)
}

func (se *CtlSession) ok(action codec.ActionCtl) *codec.ResponseMsg {
	return &codec.ResponseMsg{
		Code:    200,
		Message: codec.ActionResponse[action],
	}
}

func (se *CtlSession) doStatus(ctx context.Context) (*codec.ResponseMsg, codec.ResponseCtl) {
	st, err := se.sv.Status(ctx)
	if err != nil {
		return se.errorResponse(500, err)
	}

	info := &codec.StatusInfo{
		State:             st.State,
		Enabled:           st.Config.Enabled,
		DevicePath:        st.DevicePath,
		PingIntervalMs:    st.Config.PingIntervalMs,
		TimedOutComponent: st.TimedOutComponent,
		GraceRemainingMs:  st.GraceRemaining.Milliseconds(),
		Registered:        st.Registered,
	}
	if !st.TimedOutAt.IsZero() {
		info.TimedOutAt = st.TimedOutAt.UnixMilli()
	}

	res := se.ok(codec.ActionStatus)
	res.Status = info

	return res, codec.ResponseNormal
}

func (se *CtlSession) doList() *codec.ResponseMsg {
	entries := se.sv.ListRegistered()

	infos := make([]*codec.ComponentInfo, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, &codec.ComponentInfo{
			ID:             e.ID,
			Name:           e.Name,
			TimeoutMs:      e.Timeout.Milliseconds(),
			SinceCheckinMs: e.SinceCheckin.Milliseconds(),
		})
	}

	res := se.ok(codec.ActionList)
	res.Components = infos

	return res
}

func (se *CtlSession) doRegister(msg *codec.ActionMsg) (*codec.ResponseMsg, codec.ResponseCtl) {
	if msg.Name == "" {
		return se.errorResponse(400, errors.New("component name must not be empty"))
	}

	h, err := se.sv.Register(msg.Name, time.Duration(msg.TimeoutMs)*time.Millisecond)
	if err != nil {
		return se.errorResponse(400, err)
	}

	res := se.ok(codec.ActionRegister)
	res.ID = h.ID()

	return res, codec.ResponseNormal
}

func (se *CtlSession) doHistory() (*codec.ResponseMsg, codec.ResponseCtl) {
	causes, err := se.sv.History()
	if errors.Is(err, ErrHistoryDisabled) {
		return se.errorResponse(404, err)
	} else if err != nil {
		return se.errorResponse(500, err)
	}

	infos := make([]*codec.CauseInfo, 0, len(causes))
	for _, c := range causes {
		infos = append(infos, &codec.CauseInfo{
			At:        c.At.UnixMilli(),
			Component: c.Component,
		})
	}

	res := se.ok(codec.ActionHistory)
	res.Causes = infos

	return res, codec.ResponseNormal
}
