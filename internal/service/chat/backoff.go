package chat

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// newReconnectBackOff 第 n 次重连等待 base·2^(n-1)，不超过 maxInterval
// 关闭随机抖动，保证退避序列可预期
func newReconnectBackOff(base, maxInterval time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = maxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
