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

package merr

import (
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

const (
	CanceledCode int32 = 10000
	TimeoutCode  int32 = 10001
)

type ErrorType int32

const (
	SystemError ErrorType = 0
	InputError  ErrorType = 1
)

var ErrorTypeName = map[ErrorType]string{
	SystemError: "system_error",
	InputError:  "input_error",
}

func (err ErrorType) String() string {
	return ErrorTypeName[err]
}

// Define leaf errors here,
// WARN: take care to add new error,
// check whether you can use the errors below before adding a new one.
// Name: Err + related prefix + error name
var (
	// Service related
	ErrServiceNotReady    = newRelayError("service not ready", 1, true)
	ErrServiceStopped     = newRelayError("service stopped", 2, false)
	ErrServiceInternal    = newRelayError("service internal error", 5, false)
	ErrServiceUnavailable = newRelayError("service unavailable", 9, true)

	// Session and room related, reported back to the requesting session only.
	ErrUserNotFound   = newRelayError("user not found", 100, false, WithErrorType(InputError))
	ErrRoomNotFound   = newRelayError("room not found", 101, false, WithErrorType(InputError))
	ErrAlreadyMember  = newRelayError("already a member of the room", 102, false, WithErrorType(InputError))
	ErrNotMember      = newRelayError("not a member of the room", 103, false, WithErrorType(InputError))
	ErrRateLimited    = newRelayError("sending messages too fast", 104, true, WithErrorType(InputError))
	ErrSessionMissing = newRelayError("session not registered", 105, false)

	// Protocol related
	ErrMalformedCommand  = newRelayError("malformed command", 200, false, WithErrorType(InputError))
	ErrCommandNotAllowed = newRelayError("command not allowed in current session state", 201, false, WithErrorType(InputError))
	ErrFrameTooLarge     = newRelayError("frame too large", 202, false)

	// Connection related
	ErrConnectionFault = newRelayError("connection fault", 300, false)

	// IO related
	ErrIoFailed = newRelayError("IO failed", 1001, false)

	// Parameter related
	ErrParameterInvalid = newRelayError("invalid parameter", 1100, false)
	ErrParameterMissing = newRelayError("missing parameter", 1101, false)

	// Do NOT export this,
	// never allow programmer using this, keep only for converting unknown error to relayError
	errUnexpected = newRelayError("unexpected error", (1<<16)-1, false)
)

type errorOption func(*relayError)

func WithErrorType(etype ErrorType) errorOption {
	return func(err *relayError) {
		err.errType = etype
	}
}

type relayError struct {
	msg       string
	retriable bool
	errCode   int32
	errType   ErrorType
}

func newRelayError(msg string, code int32, retriable bool, options ...errorOption) relayError {
	err := relayError{
		msg:       msg,
		retriable: retriable,
		errCode:   code,
	}

	for _, option := range options {
		option(&err)
	}
	return err
}

func (e relayError) code() int32 {
	return e.errCode
}

func (e relayError) Error() string {
	return e.msg
}

func (e relayError) Is(err error) bool {
	cause := errors.Cause(err)
	if cause, ok := cause.(relayError); ok {
		return e.errCode == cause.errCode
	}
	return false
}

type multiErrors struct {
	errs []error
}

func (e multiErrors) Unwrap() error {
	if len(e.errs) <= 1 {
		return nil
	}
	// the cause of multi errors is defined as the last error
	if len(e.errs) == 2 {
		return e.errs[1]
	}

	return multiErrors{
		errs: e.errs[1:],
	}
}

func (e multiErrors) Error() string {
	final := e.errs[0]
	for i := 1; i < len(e.errs); i++ {
		final = errors.Wrap(e.errs[i], final.Error())
	}
	return final.Error()
}

func (e multiErrors) Is(err error) bool {
	for _, item := range e.errs {
		if errors.Is(item, err) {
			return true
		}
	}
	return false
}

// Combine 合并多个错误，nil 会被忽略；全部为 nil 时返回 nil。
func Combine(errs ...error) error {
	errs = lo.Filter(errs, func(err error, _ int) bool { return err != nil })
	if len(errs) == 0 {
		return nil
	}
	return multiErrors{
		errs,
	}
}
