package supervisor

import (
	"errors"
	"net"
	"os"
	"sync"
	"time"

	"watchdogd/pkg/codec"
	"watchdogd/pkg/logger"
	"watchdogd/pkg/utils"

	"go.uber.org/zap"
)

// Accept 临时失败时的退避上限
const maxAcceptDelay = time.Second

// CtlServer 在 unix socket 上接受控制命令
type CtlServer struct {
	sv     *Supervisor
	path   string
	wg     sync.WaitGroup
	sock   net.Listener
	logger *zap.SugaredLogger

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	done  chan struct{}

	closeOnce sync.Once
}

// StartServer 监听控制 socket 并在后台处理连接
//
// 文件锁保证只有一个守护进程，残留的 socket 文件直接删除。
func StartServer(sv *Supervisor, path string) (*CtlServer, error) {
	_ = os.Remove(path)

	socket, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}

	if err = os.Chmod(path, 0660); err != nil {
		_ = socket.Close()
		return nil, err
	}

	s := &CtlServer{
		sv:     sv,
		path:   path,
		sock:   socket,
		conns:  make(map[net.Conn]struct{}),
		done:   make(chan struct{}),
		logger: logger.Logging("ctl-server"),
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Listen()
	}()

	return s, nil
}

func (s *CtlServer) Listen() {
	var delay time.Duration

	for {
		conn, err := s.sock.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}

			if delay == 0 {
				delay = 5 * time.Millisecond
			} else {
				delay = min(2*delay, maxAcceptDelay)
			}
			s.logger.Errorf("Accept error: %v; retrying in %s", err, delay)

			select {
			case <-s.done:
				return
			case <-time.After(delay):
			}
			continue
		}
		delay = 0

		if !s.track(conn) {
			_ = conn.Close()
			return
		}

		session := NewSession(s.sv, conn)

		s.wg.Add(1)
		go func(se *CtlSession) {
			defer s.wg.Done()
			defer s.untrack(conn)

			if se.Handle() == codec.ResponseShutdown {
				select {
				case utils.FinishChan <- struct{}{}:
				default:
				}
			}
		}(session)
	}
}

// track 登记会话连接，服务器已关闭时返回 false
func (s *CtlServer) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conns == nil {
		return false
	}
	s.conns[conn] = struct{}{}

	return true
}

func (s *CtlServer) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.conns, conn)
}

// Close 停止接受连接，断开仍在进行的会话并等待其结束
func (s *CtlServer) Close() error {
	var err error

	s.closeOnce.Do(func() {
		close(s.done)
		err = s.sock.Close()

		s.mu.Lock()
		for conn := range s.conns {
			_ = conn.Close()
		}
		s.conns = nil
		s.mu.Unlock()

		s.wg.Wait()
		_ = os.Remove(s.path)
		s.logger.Info("Control server is stopped")
	})

	return err
}
