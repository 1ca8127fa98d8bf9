package network

import (
	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/chatrelay-go/pkg/util/merr"
)

// Stage 表示连接处理链路中的阶段，用于在回调和日志中标记错误位置。
type Stage string

const (
	StageAccept   Stage = "accept"
	StageRecv     Stage = "recv"     // 读取帧
	StageDecode   Stage = "decode"   // 帧 -> Packet
	StageDispatch Stage = "dispatch" // Packet -> 业务处理
	StageEncode   Stage = "encode"   // Packet -> 帧
	StageSend     Stage = "send"     // 写入连接
)

// 用于日志/监控的稳定错误码字符串。
const (
	ErrCodeRecvFailed    = "network:recv_failed"
	ErrCodeEncodeFailed  = "network:encode_failed"
	ErrCodeSendFailed    = "network:send_failed"
	ErrCodeSessionClosed = "network:session_closed"
	ErrCodeSessionLeft   = "network:session_terminated"
)

var (
	// ErrRecvFailed 表示读取底层连接时发生错误。
	ErrRecvFailed = errors.New(ErrCodeRecvFailed)

	// ErrEncodeFailed 表示 Packet 编码失败。
	ErrEncodeFailed = errors.New(ErrCodeEncodeFailed)

	// ErrSendFailed 表示数据包未能交付给对端：会话已关闭或发送队列已满。
	ErrSendFailed = errors.New(ErrCodeSendFailed)

	// ErrSessionClosed 表示会话已经关闭。
	ErrSessionClosed = errors.New(ErrCodeSessionClosed)

	// ErrSessionTerminated 由处理器返回，要求 worker 结束读循环并执行清理。
	ErrSessionTerminated = errors.New(ErrCodeSessionLeft)

	// ErrAcceptorClosed 表示监听器已关闭，属于 merr.ErrServiceUnavailable。
	ErrAcceptorClosed = merr.WrapErrServiceUnavailable("acceptor closed")
)
