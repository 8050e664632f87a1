// Package client 封装与 watchdogd 守护进程的控制 socket 通信
//
// cmd 层只依赖本包，不直接接触 supervisor 的协议细节。
// 所有函数在守护进程返回非 200 时返回错误。
package client

import (
	"fmt"
	"time"

	"watchdogd/pkg/codec"
	"watchdogd/pkg/config"
	"watchdogd/pkg/supervisor"
)

// ResponseError 守护进程拒绝了请求
type ResponseError struct {
	Code    int
	Message string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%d %s", e.Code, e.Message)
}

func call(msg *codec.ActionMsg) (*codec.ResponseMsg, error) {
	res, err := supervisor.Call(config.GetConfig().Socket, msg)
	if err != nil {
		return nil, err
	}

	if res.Code != 200 {
		return res, &ResponseError{Code: res.Code, Message: res.Message}
	}

	return res, nil
}

// Status 查询看门狗状态
func Status() (*codec.StatusInfo, error) {
	res, err := call(&codec.ActionMsg{Action: codec.ActionStatus})
	if err != nil {
		return nil, err
	}

	return res.Status, nil
}

// List 列出已注册的关键组件
func List() ([]*codec.ComponentInfo, error) {
	res, err := call(&codec.ActionMsg{Action: codec.ActionList})
	if err != nil {
		return nil, err
	}

	return res.Components, nil
}

// Register 注册关键组件，返回之后签到和注销使用的 ID
//
// 注册时间即第一次签到，timeout 内必须再次调用 Checkin。
func Register(name string, timeout time.Duration) (uint64, error) {
	res, err := call(&codec.ActionMsg{
		Action:    codec.ActionRegister,
		Name:      name,
		TimeoutMs: timeout.Milliseconds(),
	})
	if err != nil {
		return 0, err
	}

	return res.ID, nil
}

func Checkin(id uint64) error {
	_, err := call(&codec.ActionMsg{Action: codec.ActionCheckin, ID: id})
	return err
}

func Unregister(id uint64) error {
	_, err := call(&codec.ActionMsg{Action: codec.ActionUnregister, ID: id})
	return err
}

// Reload 让守护进程重新读取配置文件
func Reload() error {
	_, err := call(&codec.ActionMsg{Action: codec.ActionReload})
	return err
}

// Shutdown 关闭守护进程，设备在退出前被禁用
func Shutdown() error {
	_, err := call(&codec.ActionMsg{Action: codec.ActionShutdown})
	return err
}

// History 返回归档的重启原因，从旧到新
func History() ([]*codec.CauseInfo, error) {
	res, err := call(&codec.ActionMsg{Action: codec.ActionHistory})
	if err != nil {
		return nil, err
	}

	return res.Causes, nil
}
