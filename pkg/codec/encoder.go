package codec

import (
	"sync"

	"github.com/fxamacker/cbor/v2"
)

var (
	encodeMode cbor.EncMode
	encodeErr  error
	encodeOnce sync.Once
)

// GetEncoder 返回确定性编码的 cbor EncMode，控制协议和历史记录共用
func GetEncoder() (cbor.EncMode, error) {
	encodeOnce.Do(func() {
		opts := cbor.CoreDetEncOptions()
		opts.Time = cbor.TimeUnixMicro
		encodeMode, encodeErr = opts.EncMode()
	})

	return encodeMode, encodeErr
}
