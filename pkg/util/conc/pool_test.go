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
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestPool(t *testing.T) {
	pool := NewPool[any](10)
	defer pool.Release()

	futures := make([]*Future[any], 0, 100)
	for i := 0; i < 100; i++ {
		i := i
		futures = append(futures, pool.Submit(func() (any, error) {
			time.Sleep(time.Millisecond)
			return i, nil
		}))
	}
	assert.NoError(t, AwaitAll(futures...))
	for i, future := range futures {
		res, err := future.Await()
		assert.NoError(t, err)
		assert.Equal(t, i, res.(int))
	}
	assert.Equal(t, 10, pool.Cap())
}

func TestPoolBlocksWhenFull(t *testing.T) {
	pool := NewPool[struct{}](1)
	defer pool.Release()

	release := make(chan struct{})
	first := pool.Submit(func() (struct{}, error) {
		<-release
		return struct{}{}, nil
	})

	var secondStarted atomic.Bool
	submitted := Go(func() (*Future[struct{}], error) {
		return pool.Submit(func() (struct{}, error) {
			secondStarted.Store(true)
			return struct{}{}, nil
		}), nil
	})

	assert.Eventually(t, func() bool { return pool.Waiting() == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, secondStarted.Load())

	close(release)
	require.True(t, first.OK())
	second, err := submitted.Await()
	require.NoError(t, err)
	assert.True(t, second.OK())
	assert.True(t, secondStarted.Load())
}

func TestPoolConcealPanic(t *testing.T) {
	var recovered atomic.Bool
	pool := NewPool[int](1, WithConcealPanic(true), WithPanicHandler(func(any) { recovered.Store(true) }))
	defer pool.Release()

	future := pool.Submit(func() (int, error) {
		panic("boom")
	})
	assert.Error(t, future.Err())
	assert.Eventually(t, recovered.Load, time.Second, 5*time.Millisecond)
}

func TestPoolPreAllocFixedWorkers(t *testing.T) {
	pool := NewPool[int](2, WithPreAlloc(true), WithDisablePurge(true))
	defer pool.Release()
	assert.Equal(t, 2, pool.Cap())

	release := make(chan struct{})
	futures := make([]*Future[int], 0, 2)
	for i := 0; i < 2; i++ {
		futures = append(futures, pool.Submit(func() (int, error) {
			<-release
			return 1, nil
		}))
	}
	assert.Eventually(t, func() bool { return pool.Running() == 2 }, time.Second, 5*time.Millisecond)
	close(release)
	for _, f := range futures {
		v, err := f.Await()
		require.NoError(t, err)
		assert.Equal(t, 1, v)
	}
}

func TestPoolSubmitAfterRelease(t *testing.T) {
	pool := NewPool[int](1)
	pool.Release()
	future := pool.Submit(func() (int, error) { return 1, nil })
	assert.Error(t, future.Err())
}

func TestGo(t *testing.T) {
	errBoom := errors.New("boom")
	future := Go(func() (int, error) { return 0, errBoom })
	assert.ErrorIs(t, future.Err(), errBoom)

	ok := Go(func() (int, error) { return 7, nil })
	assert.Equal(t, 7, ok.Value())
	<-ok.Inner()
}
