package supervisor

import (
	"net"
	"time"

	"watchdogd/pkg/codec"

	"github.com/fxamacker/cbor/v2"
)

// Call 向守护进程发送一条控制命令并等待响应
func Call(socket string, msg *codec.ActionMsg) (*codec.ResponseMsg, error) {
	conn, err := net.DialTimeout("unix", socket, 5*time.Second)
	if err != nil {
		return nil, err
	}

	sock := &rpcSocket{
		conn: conn,
	}
	defer func() {
		_ = sock.Close()
	}()

	if err = conn.SetDeadline(time.Now().Add(sessionTimeout)); err != nil {
		return nil, err
	}

	encoder, err := codec.GetEncoder()
	if err != nil {
		return nil, err
	}

	data, err := encoder.Marshal(msg)
	if err != nil {
		return nil, err
	}

	if err = sock.Send(data); err != nil {
		return nil, err
	}

	data, err = sock.Recv()
	if err != nil {
		return nil, err
	}

	res := new(codec.ResponseMsg)
	if err = cbor.Unmarshal(data, res); err != nil {
		return nil, err
	}

	return res, nil
}
