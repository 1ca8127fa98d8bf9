// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package conc

import (
	"time"

	"github.com/cockroachdb/errors"
	ants "github.com/panjf2000/ants/v2"
)

// Pool 为基于 ants 的有界协程池，任务结果通过 Future 返回。
type Pool[T any] struct {
	inner *ants.Pool
}

// NewPool 创建容量为 cap 的协程池。
//
// 说明：
//   - 默认阻塞模式：池满时 Submit 会等待空闲 worker，而不是返回错误；
//   - 任务 panic 会被记录日志，是否继续向上抛出由 WithConcealPanic 控制。
func NewPool[T any](cap int, opts ...PoolOption) *Pool[T] {
	opt := defaultPoolOption()
	for _, o := range opts {
		o(opt)
	}

	pool, err := ants.NewPool(cap, opt.antsOptions()...)
	if err != nil {
		panic(err)
	}

	return &Pool[T]{
		inner: pool,
	}
}

// Submit 提交一个任务，返回对应的 Future。
// 池已关闭时，Future 立即以错误完成。
func (pool *Pool[T]) Submit(method func() (T, error)) *Future[T] {
	future := newFuture[T]()
	err := pool.inner.Submit(func() {
		defer close(future.ch)
		defer func() {
			if x := recover(); x != nil {
				future.err = errors.Newf("task panicked: %v", x)
				panic(x)
			}
		}()
		res, err := method()
		if err != nil {
			future.err = err
		} else {
			future.value = res
		}
	})
	if err != nil {
		future.err = errors.Wrap(err, "submit to pool")
		close(future.ch)
	}

	return future
}

// Cap 返回协程池容量。
func (pool *Pool[T]) Cap() int {
	return pool.inner.Cap()
}

// Running 返回正在执行任务的 worker 数量。
func (pool *Pool[T]) Running() int {
	return pool.inner.Running()
}

// Waiting 返回阻塞在 Submit 上等待空闲 worker 的调用方数量。
func (pool *Pool[T]) Waiting() int {
	return pool.inner.Waiting()
}

// Release 关闭协程池，不等待运行中的任务。
func (pool *Pool[T]) Release() {
	pool.inner.Release()
}

// ReleaseTimeout 关闭协程池，并在 timeout 内等待运行中的任务结束。
func (pool *Pool[T]) ReleaseTimeout(timeout time.Duration) error {
	return pool.inner.ReleaseTimeout(timeout)
}
