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
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Code 返回给定错误对应的错误码。
func Code(err error) int32 {
	if err == nil {
		return 0
	}

	cause := errors.Cause(err)
	switch specificErr := cause.(type) {
	case relayError:
		return specificErr.code()

	default:
		if errors.Is(specificErr, context.Canceled) {
			return CanceledCode
		} else if errors.Is(specificErr, context.DeadlineExceeded) {
			return TimeoutCode
		} else {
			return errUnexpected.code()
		}
	}
}

// Name 返回错误对应的简短名称，主要用作指标标签。
func Name(err error) string {
	if err == nil {
		return "none"
	}
	switch {
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, ErrAlreadyMember):
		return "already_member"
	case errors.Is(err, ErrNotMember):
		return "not_member"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrMalformedCommand):
		return "malformed_command"
	case errors.Is(err, ErrCommandNotAllowed):
		return "command_not_allowed"
	case errors.Is(err, ErrConnectionFault):
		return "connection_fault"
	case errors.Is(err, ErrIoFailed):
		return "io_failed"
	case errors.Is(err, ErrServiceInternal):
		return "service_internal"
	case errors.Is(err, ErrServiceUnavailable):
		return "service_unavailable"
	case IsCanceledOrTimeout(err):
		return "canceled"
	default:
		return "unexpected"
	}
}

func IsRetryableErr(err error) bool {
	var rerr relayError
	if errors.As(err, &rerr) {
		return rerr.retriable
	}
	return false
}

func IsCanceledOrTimeout(err error) bool {
	return errors.IsAny(err, context.Canceled, context.DeadlineExceeded)
}

// IsBusinessErr 判断错误是否为只影响发起会话、不影响连接的业务错误。
func IsBusinessErr(err error) bool {
	return errors.IsAny(err, ErrUserNotFound, ErrRoomNotFound, ErrAlreadyMember, ErrNotMember, ErrRateLimited)
}

func GetErrorType(err error) ErrorType {
	var rerr relayError
	if errors.As(err, &rerr) {
		return rerr.errType
	}
	return SystemError
}

// Service 相关错误封装。
func WrapErrServiceNotReady(role string, state string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrServiceNotReady, state, value("role", role))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrServiceStopped(role string, msg ...string) error {
	err := wrapFields(ErrServiceStopped, value("role", role))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrServiceInternal(reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrServiceInternal, reason)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrServiceUnavailable(reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrServiceUnavailable, reason)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Session / Room 相关错误封装。
func WrapErrUserNotFound(id any, msg ...string) error {
	err := wrapFields(ErrUserNotFound, value("user", id))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrRoomNotFound(id any, msg ...string) error {
	err := wrapFields(ErrRoomNotFound, value("room", id))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrAlreadyMember(roomID any, sessionID any) error {
	return wrapFields(ErrAlreadyMember, value("room", roomID), value("session", sessionID))
}

func WrapErrNotMember(roomID any, sessionID any) error {
	return wrapFields(ErrNotMember, value("room", roomID), value("session", sessionID))
}

func WrapErrRateLimited(sessionID any, rate float64) error {
	return wrapFields(ErrRateLimited, value("session", sessionID), value("rate", rate))
}

func WrapErrSessionMissing(sessionID any) error {
	return wrapFields(ErrSessionMissing, value("session", sessionID))
}

// 协议相关错误封装。
func WrapErrMalformedCommand(reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrMalformedCommand, reason)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrCommandNotAllowed(command string, state string) error {
	return wrapFields(ErrCommandNotAllowed, value("command", command), value("state", state))
}

func WrapErrFrameTooLarge(size, limit uint32) error {
	return wrapFields(ErrFrameTooLarge, bound("size", size, 1, limit))
}

// 连接相关错误封装。
func WrapErrConnectionFault(err error, msg ...string) error {
	if err == nil {
		return nil
	}
	wrapped := wrapFieldsWithDesc(ErrConnectionFault, err.Error())
	if len(msg) > 0 {
		wrapped = errors.Wrap(wrapped, strings.Join(msg, "->"))
	}
	return wrapped
}

func WrapErrIoFailed(key string, err error) error {
	if err == nil {
		return nil
	}
	return wrapFieldsWithDesc(ErrIoFailed, err.Error(), value("key", key))
}

// 参数相关错误封装。
func WrapErrParameterInvalid[T any](expected, actual T, msg ...string) error {
	err := wrapFields(ErrParameterInvalid,
		value("expected", expected),
		value("actual", actual),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrParameterInvalidMsg(fmt string, args ...any) error {
	return errors.Wrapf(ErrParameterInvalid, fmt, args...)
}

func WrapErrParameterMissing[T any](param T, msg ...string) error {
	err := wrapFields(ErrParameterMissing,
		value("missing_param", param),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func wrapFields(err relayError, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	return err
}

func wrapFieldsWithDesc(err relayError, desc string, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.msg += ": " + desc
	return err
}

type errorField interface {
	String() string
}

type valueField struct {
	name  string
	value any
}

func value(name string, value any) valueField {
	return valueField{
		name,
		value,
	}
}

func (f valueField) String() string {
	return fmt.Sprintf("%s=%v", f.name, f.value)
}

type boundField struct {
	name  string
	value any
	lower any
	upper any
}

func bound(name string, value, lower, upper any) boundField {
	return boundField{
		name,
		value,
		lower,
		upper,
	}
}

func (f boundField) String() string {
	return fmt.Sprintf("%v out of range %v <= %s <= %v", f.value, f.lower, f.name, f.upper)
}
