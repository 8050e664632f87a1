package device

import (
	"errors"
	"sync"
)

// FakeFile 记录写入设备的字节，用于测试
type FakeFile struct {
	mu       sync.Mutex
	written  []byte
	closed   bool
	writeErr error
}

func (f *FakeFile) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, errors.New("write on closed fake device")
	}
	if f.writeErr != nil {
		return 0, f.writeErr
	}

	f.written = append(f.written, p...)

	return len(p), nil
}

func (f *FakeFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true

	return nil
}

// SetWriteErr 让之后的写入失败，传 nil 恢复
func (f *FakeFile) SetWriteErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.writeErr = err
}

func (f *FakeFile) Written() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return string(f.written)
}

func (f *FakeFile) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.closed
}

// FakeDevices 替代 OpenFile，按顺序返回预设的打开错误
type FakeDevices struct {
	mu    sync.Mutex
	errs  []error
	files []*FakeFile
	opens int
}

// FailNext 接下来的几次打开依次返回这些错误
func (f *FakeDevices) FailNext(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.errs = append(f.errs, errs...)
}

func (f *FakeDevices) Open(string) (File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.opens++

	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}

	file := &FakeFile{}
	f.files = append(f.files, file)

	return file, nil
}

func (f *FakeDevices) Opens() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.opens
}

// Last 返回最近一次成功打开的文件
func (f *FakeDevices) Last() *FakeFile {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.files) == 0 {
		return nil
	}

	return f.files[len(f.files)-1]
}
