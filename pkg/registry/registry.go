// Package registry 维护被监控的关键组件表
//
// 组件通过 Register 声明名字和超时时间，之后周期性地 Checkin。
// Supervisor 在自己的工作协程里调用 FirstTimedOut 扫描整张表，
// 注册、签到可以在任意协程并发调用，不会阻塞在 Supervisor 上：
//   - 表结构的增删使用写锁
//   - 签到只持有读锁，时间戳用原子操作更新
//
// 表按注册先后排序，多个组件同时超时时返回最早注册的那一个。
package registry

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/zap"
)

var ErrInvalidTimeout = errors.New("component timeout must be positive")

// Handle 标识一次注册
//
// 相等性基于指针而不是名字，两个不同的组件可以同名。
// ID 只是给控制接口用的查找键。
type Handle struct {
	id      uint64
	name    string
	timeout time.Duration
}

func (h *Handle) ID() uint64 { return h.id }

func (h *Handle) Name() string { return h.name }

func (h *Handle) Timeout() time.Duration { return h.timeout }

func (h *Handle) String() string {
	return fmt.Sprintf("%s#%d", h.name, h.id)
}

type registration struct {
	handle *Handle

	// 相对于 Registry.epoch 的单调时间（纳秒）
	lastCheckin atomic.Int64
}

// touch 只会把签到时间往后推
func (reg *registration) touch(now int64) {
	for {
		last := reg.lastCheckin.Load()
		if now <= last {
			return
		}
		if reg.lastCheckin.CompareAndSwap(last, now) {
			return
		}
	}
}

// Entry 是 Snapshot 返回的诊断信息
type Entry struct {
	ID           uint64
	Name         string
	Timeout      time.Duration
	SinceCheckin time.Duration
}

type Registry struct {
	mu sync.RWMutex

	clock  clock.Clock
	epoch  time.Time
	nextID atomic.Uint64
	logger *zap.SugaredLogger

	table *orderedmap.OrderedMap[uint64, *registration]
}

func New(clk clock.Clock, logger *zap.SugaredLogger) *Registry {
	return &Registry{
		clock:  clk,
		epoch:  clk.Now(),
		logger: logger,
		table:  orderedmap.New[uint64, *registration](),
	}
}

func (r *Registry) now() int64 {
	return int64(r.clock.Since(r.epoch))
}

// NewHandle 创建一个尚未注册的句柄
func (r *Registry) NewHandle(name string, timeout time.Duration) (*Handle, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("%w: %s has timeout %s", ErrInvalidTimeout, name, timeout)
	}

	return &Handle{
		id:      r.nextID.Add(1),
		name:    name,
		timeout: timeout,
	}, nil
}

// Register 创建句柄并立即注册，签到时间为当前时间
func (r *Registry) Register(name string, timeout time.Duration) (*Handle, error) {
	h, err := r.NewHandle(name, timeout)
	if err != nil {
		return nil, err
	}

	r.Add(h)

	return h, nil
}

// Add 注册一个已有的句柄
//
// 同一个句柄重复注册会被忽略并记录警告，返回 false。
// 注销之后可以用同一个句柄再次注册。
func (r *Registry) Add(h *Handle) bool {
	if h == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.table.Get(h.id); ok {
		r.logger.Warnf("Component %s is already registered", h)
		return false
	}

	reg := &registration{handle: h}
	reg.lastCheckin.Store(r.now())
	r.table.Set(h.id, reg)

	r.logger.Infof("Registered critical component %s with timeout %s", h, h.timeout)

	return true
}

// Unregister 删除注册，不存在时什么也不做
func (r *Registry) Unregister(h *Handle) bool {
	if h == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.table.Get(h.id)
	if !ok || reg.handle != h {
		return false
	}

	r.table.Delete(h.id)
	r.logger.Infof("Unregistered critical component %s", h)

	return true
}

// Checkin 更新签到时间；句柄已注销时静默忽略
func (r *Registry) Checkin(h *Handle) bool {
	if h == nil {
		return false
	}

	r.mu.RLock()
	reg, ok := r.table.Get(h.id)
	r.mu.RUnlock()

	if !ok || reg.handle != h {
		return false
	}

	reg.touch(r.now())

	return true
}

// Lookup 按 ID 查找已注册的句柄
func (r *Registry) Lookup(id uint64) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.table.Get(id)
	if !ok {
		return nil, false
	}

	return reg.handle, true
}

// FirstTimedOut 返回第一个距上次签到超过超时时间的组件
//
// 只读操作，可以和 Register/Checkin 并发调用。
func (r *Registry) FirstTimedOut() (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now()
	for pair := r.table.Oldest(); pair != nil; pair = pair.Next() {
		reg := pair.Value
		if now-reg.lastCheckin.Load() > int64(reg.handle.timeout) {
			return reg.handle, true
		}
	}

	return nil, false
}

// Snapshot 按注册顺序列出所有组件
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now()
	entries := make([]Entry, 0, r.table.Len())
	for pair := r.table.Oldest(); pair != nil; pair = pair.Next() {
		reg := pair.Value
		entries = append(entries, Entry{
			ID:           reg.handle.id,
			Name:         reg.handle.name,
			Timeout:      reg.handle.timeout,
			SinceCheckin: time.Duration(now - reg.lastCheckin.Load()),
		})
	}

	return entries
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.table.Len()
}
