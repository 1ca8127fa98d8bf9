// Copyright (C) 2019-2020 Zilliz. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License
// is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express
// or implied. See the License for the specific language governing permissions and limitations under the License.

package retry

import (
	"context"
	"runtime"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/chatrelay-go/pkg/log"
)

type config struct {
	attempts     uint
	sleep        time.Duration
	maxSleepTime time.Duration
	isRetryErr   func(err error) bool
}

func newDefaultConfig() *config {
	return &config{
		attempts:     10,
		sleep:        200 * time.Millisecond,
		maxSleepTime: 3 * time.Second,
	}
}

// Option 用于调整重试行为。
type Option func(*config)

// Attempts 设置最大尝试次数，0 表示不限次数（直至 ctx 结束）。
func Attempts(attempts uint) Option {
	return func(c *config) {
		c.attempts = attempts
	}
}

// Sleep 设置首次重试前的等待时间，之后每次翻倍。
func Sleep(sleep time.Duration) Option {
	return func(c *config) {
		c.sleep = sleep
		if c.sleep*2 > c.maxSleepTime {
			c.maxSleepTime = 2 * c.sleep
		}
	}
}

// MaxSleepTime 设置等待时间上限。
func MaxSleepTime(maxSleepTime time.Duration) Option {
	return func(c *config) {
		if c.sleep < maxSleepTime {
			c.maxSleepTime = maxSleepTime
		} else {
			c.maxSleepTime = 2 * c.sleep
		}
	}
}

// RetryErr 设置判断错误是否值得重试的函数。
func RetryErr(isRetryErr func(err error) bool) Option {
	return func(c *config) {
		c.isRetryErr = isRetryErr
	}
}

var errUnrecoverable = errors.New("unrecoverable error")

// Unrecoverable 将 err 标记为不可恢复，Do 遇到后立即返回。
func Unrecoverable(err error) error {
	return errors.Mark(err, errUnrecoverable)
}

// IsRecoverable 判断 err 是否可以重试。
func IsRecoverable(err error) bool {
	return !errors.Is(err, errUnrecoverable)
}

func getCaller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	return file + ":" + strconv.Itoa(line)
}

// Do 使用重试机制执行指定函数。
// fn 为待执行的函数。
// opts 用于控制最大重试次数、初始休眠时间等行为。
func Do(ctx context.Context, fn func() error, opts ...Option) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	log := log.Ctx(ctx)
	c := newDefaultConfig()
	for _, opt := range opts {
		opt(c)
	}

	var lastErr error
	for i := uint(0); c.attempts == 0 || i < c.attempts; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		if i%4 == 0 {
			log.Warn("retry func failed",
				zap.Uint("retried", i),
				zap.Error(err),
				zap.String("caller", getCaller(2)))
		}

		if !IsRecoverable(err) || (c.isRetryErr != nil && !c.isRetryErr(err)) {
			isContextErr := errors.IsAny(err, context.Canceled, context.DeadlineExceeded)
			log.Warn("retry func failed, not be recoverable",
				zap.Uint("retried", i),
				zap.Uint("attempt", c.attempts),
				zap.Bool("isContextErr", isContextErr),
				zap.String("caller", getCaller(2)))
			if isContextErr && lastErr != nil {
				return lastErr
			}
			return err
		}

		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < c.sleep {
			log.Warn("retry func failed, deadline",
				zap.Uint("retried", i),
				zap.Uint("attempt", c.attempts),
				zap.String("caller", getCaller(2)))
			return err
		}

		lastErr = err

		timer := time.NewTimer(c.sleep)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			log.Warn("retry func failed, ctx done",
				zap.Uint("retried", i),
				zap.Uint("attempt", c.attempts),
				zap.String("caller", getCaller(2)))
			return lastErr
		}

		c.sleep *= 2
		if c.sleep > c.maxSleepTime {
			c.sleep = c.maxSleepTime
		}
	}
	log.Warn("retry func failed, reach max retry", zap.Uint("attempt", c.attempts))
	return lastErr
}
