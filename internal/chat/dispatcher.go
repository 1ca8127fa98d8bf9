// Package chat 实现聊天命令的分发：根据发送者的会话状态校验命令，
// 修改会话/聊天室注册表，并向相关会话推送结果。
package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/chatrelay-go/internal/network"
	"github.com/lk2023060901/chatrelay-go/internal/network/session"
	"github.com/lk2023060901/chatrelay-go/internal/protocol"
	"github.com/lk2023060901/chatrelay-go/internal/room"
	"github.com/lk2023060901/chatrelay-go/pkg/log"
	"github.com/lk2023060901/chatrelay-go/pkg/metrics"
	"github.com/lk2023060901/chatrelay-go/pkg/util/merr"
)

const defaultHostName = "HOST"

// Config 为分发器参数。
type Config struct {
	// HostName 为服务端公告使用的名字。
	HostName string
	// MessageRate 为每个会话每秒允许的命令数，0 表示不限流。
	MessageRate float64
	// MessageBurst 为令牌桶容量。
	MessageBurst float64
}

// Dispatcher 处理已解码的客户端数据包。
//
// 说明：
//   - 同一会话的数据包由其 worker 串行调用 Dispatch，不同会话之间并发；
//   - 业务错误（用户/聊天室不存在、成员关系错误、限流）只回复给发送者，同时作为返回值交给调用方记录；
//   - 推送失败只影响对应会话，不会中断其余推送；
//   - 用户/聊天室列表的快照、渲染与推送在 listMu 内完成，各会话收到的列表顺序与快照顺序一致，
//     最后收到的列表总是反映最新的注册表状态。
type Dispatcher struct {
	log.Binder

	// listMu 串行化列表推送，并与断开清理互斥，渲染时成员名总能查到。
	listMu sync.Mutex

	sessions  session.SessionManager
	rooms     room.RoomManager
	presenter Presenter
	cfg       Config
	flood     *floodGuard
}

// NewDispatcher 创建分发器，presenter 为 nil 时丢弃展示信号。
func NewDispatcher(sessions session.SessionManager, rooms room.RoomManager, presenter Presenter, cfg Config) *Dispatcher {
	if presenter == nil {
		presenter = nopPresenter{}
	}
	if cfg.HostName == "" {
		cfg.HostName = defaultHostName
	}
	return &Dispatcher{
		sessions:  sessions,
		rooms:     rooms,
		presenter: presenter,
		cfg:       cfg,
		flood:     newFloodGuard(cfg.MessageRate, cfg.MessageBurst),
	}
}

// Connected 在会话注册后调用。
func (d *Dispatcher) Connected(ctx context.Context, sess *session.Session) {
	d.presenter.Display(connectedText(sess.ID()))
	log.Ctx(ctx).Info("session connected",
		log.FieldSessionID(sess.ID()),
		log.FieldRemote(sess.RemoteString()))
}

// Dispatch 处理 senderID 发来的一个数据包。
//
// 返回值：
//   - network.ErrSessionTerminated：发送者请求离开，调用方应结束读循环并执行 Disconnect；
//   - merr.ErrMalformedCommand / merr.ErrCommandNotAllowed：数据包被丢弃，连接保持；
//   - 业务错误：已回复发送者；
//   - nil：处理成功。
func (d *Dispatcher) Dispatch(ctx context.Context, senderID uint64, pkt protocol.Packet) (err error) {
	start := time.Now()
	command := pkt.Command.String()
	metrics.PacketsReceived.WithLabelValues(command).Inc()
	defer func() {
		metrics.DispatchLatency.WithLabelValues(command).Observe(time.Since(start).Seconds())
		if err != nil && !errors.Is(err, network.ErrSessionTerminated) {
			metrics.DispatchErrors.WithLabelValues(merr.Name(err)).Inc()
		}
	}()

	sender, ok := d.sessions.Get(senderID)
	if !ok {
		return merr.WrapErrSessionMissing(senderID)
	}

	req, err := protocol.ParseRequest(pkt)
	if err != nil {
		metrics.PacketsDropped.WithLabelValues(metrics.DropReasonMalformed).Inc()
		return err
	}

	if err := checkState(sender.State(), req); err != nil {
		metrics.PacketsDropped.WithLabelValues(metrics.DropReasonNotAllowed).Inc()
		return err
	}

	if _, leaving := req.(protocol.LeaveServerRequest); !leaving && !d.flood.allow(senderID) {
		metrics.PacketsDropped.WithLabelValues(metrics.DropReasonRateLimited).Inc()
		d.deliver(ctx, sender, protocol.DisplayToUser(rateLimitedText))
		return merr.WrapErrRateLimited(senderID, d.cfg.MessageRate)
	}

	switch r := req.(type) {
	case protocol.JoinServerRequest:
		return d.joinServer(ctx, sender, r)
	case protocol.LeaveServerRequest:
		return network.ErrSessionTerminated
	case protocol.SendMessageAllRequest:
		return d.sendMessageAll(ctx, sender, r)
	case protocol.SendMessageUserRequest:
		return d.sendMessageUser(ctx, sender, r)
	case protocol.SendMessageRoomRequest:
		return d.sendMessageRoom(ctx, sender, r)
	case protocol.CreateRoomRequest:
		return d.createRoom(ctx, sender, r)
	case protocol.JoinRoomRequest:
		return d.joinRoom(ctx, sender, r)
	case protocol.LeaveRoomRequest:
		return d.leaveRoom(ctx, sender, r)
	default:
		return merr.WrapErrServiceInternal("unhandled request " + req.Command().String())
	}
}

// checkState 校验命令在当前会话状态下是否允许：
// Connecting 只允许 joinServer，Active 允许除 joinServer 外的所有客户端命令。
func checkState(state session.State, req protocol.Request) error {
	_, joining := req.(protocol.JoinServerRequest)
	switch {
	case state == session.StateConnecting && joining,
		state == session.StateActive && !joining:
		return nil
	default:
		return merr.WrapErrCommandNotAllowed(req.Command().String(), state.String())
	}
}

func (d *Dispatcher) joinServer(ctx context.Context, sender *session.Session, req protocol.JoinServerRequest) error {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = anonymousName
	}
	if !d.sessions.SetName(sender.ID(), name) {
		return merr.WrapErrCommandNotAllowed(req.Command().String(), sender.State().String())
	}

	d.presenter.Display(joinedChatText(sender.ID(), name))
	log.Ctx(ctx).Info("session joined", log.FieldSessionID(sender.ID()), zap.String("name", name))

	d.deliver(ctx, sender, protocol.JoinAck(sender.ID(), welcomeText(name, sender.ID())))
	d.broadcastLists(ctx)
	return nil
}

func (d *Dispatcher) sendMessageAll(ctx context.Context, sender *session.Session, req protocol.SendMessageAllRequest) error {
	line := chatLine(sender.Name(), sender.ID(), req.Body)
	d.presenter.Display(line)
	d.broadcast(ctx, protocol.DisplayToUser(line))
	return nil
}

func (d *Dispatcher) sendMessageUser(ctx context.Context, sender *session.Session, req protocol.SendMessageUserRequest) error {
	var (
		target *session.Session
		ok     bool
	)
	if req.Target > 0 {
		target, ok = d.sessions.Get(uint64(req.Target))
	}
	if !ok {
		d.deliver(ctx, sender, protocol.DisplayToUser(userNotFoundText(req.Target)))
		return merr.WrapErrUserNotFound(req.Target)
	}

	line := chatLine(sender.Name(), sender.ID(), req.Body)
	d.presenter.Display(line)
	pkt := protocol.DisplayToUser(line)
	d.deliver(ctx, target, pkt)
	if target.ID() != sender.ID() {
		d.deliver(ctx, sender, pkt)
	}
	return nil
}

func (d *Dispatcher) sendMessageRoom(ctx context.Context, sender *session.Session, req protocol.SendMessageRoomRequest) error {
	if req.Room <= 0 {
		d.deliver(ctx, sender, protocol.DisplayToUser(roomNotFoundText(req.Room)))
		return merr.WrapErrRoomNotFound(req.Room)
	}
	r, err := d.rooms.Lookup(uint64(req.Room), sender.ID())
	if err != nil {
		return d.replyRoomError(ctx, sender, req.Room, r, err, notMemberSendText)
	}

	line := roomLine(r, sender.Name(), sender.ID(), req.Body)
	d.presenter.Display(line)
	pkt := protocol.DisplayToUser(line)
	for _, member := range r.Members {
		if sess, ok := d.sessions.Get(member); ok {
			d.deliver(ctx, sess, pkt)
		}
	}
	return nil
}

func (d *Dispatcher) createRoom(ctx context.Context, sender *session.Session, req protocol.CreateRoomRequest) error {
	roomID := d.rooms.Create(sender.ID(), req.Name)
	log.Ctx(ctx).Info("room created",
		log.FieldSessionID(sender.ID()),
		log.FieldRoomID(roomID),
		zap.String("room", req.Name))

	d.broadcastRooms(ctx)
	d.deliver(ctx, sender, protocol.DisplayToUser(roomCreatedText(req.Name, roomID)))
	return nil
}

func (d *Dispatcher) joinRoom(ctx context.Context, sender *session.Session, req protocol.JoinRoomRequest) error {
	if req.Room <= 0 {
		d.deliver(ctx, sender, protocol.DisplayToUser(roomNotFoundText(req.Room)))
		return merr.WrapErrRoomNotFound(req.Room)
	}
	r, err := d.rooms.Join(uint64(req.Room), sender.ID())
	if err != nil {
		return d.replyRoomError(ctx, sender, req.Room, r, err, nil)
	}

	d.broadcastRooms(ctx)
	d.deliver(ctx, sender, protocol.DisplayToUser(roomJoinedText(r)))
	return nil
}

func (d *Dispatcher) leaveRoom(ctx context.Context, sender *session.Session, req protocol.LeaveRoomRequest) error {
	if req.Room <= 0 {
		d.deliver(ctx, sender, protocol.DisplayToUser(roomNotFoundText(req.Room)))
		return merr.WrapErrRoomNotFound(req.Room)
	}
	r, err := d.rooms.Leave(uint64(req.Room), sender.ID())
	if err != nil {
		return d.replyRoomError(ctx, sender, req.Room, r, err, notMemberText)
	}

	d.broadcastRooms(ctx)
	d.deliver(ctx, sender, protocol.DisplayToUser(roomLeftText(r)))
	return nil
}

// replyRoomError 将聊天室注册表返回的业务错误转换为发给发送者的系统消息。
func (d *Dispatcher) replyRoomError(ctx context.Context, sender *session.Session, roomID int64, r room.Room, err error, notMember func(room.Room) string) error {
	var text string
	switch {
	case errors.Is(err, merr.ErrRoomNotFound):
		text = roomNotFoundText(roomID)
	case errors.Is(err, merr.ErrAlreadyMember):
		text = alreadyMemberText(r)
	case errors.Is(err, merr.ErrNotMember) && notMember != nil:
		text = notMember(r)
	default:
		return err
	}
	d.deliver(ctx, sender, protocol.DisplayToUser(text))
	return err
}

// Disconnect 执行会话的断开清理：移出所有聊天室、移出会话表、推送最新列表。
// 可重复调用，只有第一次生效。
func (d *Dispatcher) Disconnect(ctx context.Context, sessionID uint64, cause error) {
	d.listMu.Lock()
	defer d.listMu.Unlock()

	affected := d.rooms.RemoveSessionEverywhere(sessionID)
	sess, ok := d.sessions.Remove(sessionID)
	if !ok {
		return
	}
	d.flood.forget(sessionID)

	d.presenter.Display(leftChatText(sessionID, sess.Name()))
	log.Ctx(ctx).Info("session disconnected",
		log.FieldSessionID(sessionID),
		zap.String("name", sess.Name()),
		zap.Uint64s("rooms", affected),
		zap.NamedError("cause", cause))

	d.publishUsers(ctx)
	d.publishRooms(ctx)
}

// Announce 以服务端名义向所有会话发送一行文本。
func (d *Dispatcher) Announce(ctx context.Context, text string) {
	line := hostLine(d.cfg.HostName, text)
	d.presenter.Display(line)
	d.broadcast(ctx, protocol.DisplayToUser(line))
}

// Shutdown 向所有会话广播 shutdown 数据包，返回合并后的发送错误。
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	err := d.sessions.Broadcast(protocol.Shutdown())
	if err != nil {
		log.Ctx(ctx).Warn("shutdown broadcast incomplete", zap.Error(err))
	}
	return err
}

func (d *Dispatcher) broadcastLists(ctx context.Context) {
	d.listMu.Lock()
	defer d.listMu.Unlock()
	d.publishUsers(ctx)
	d.publishRooms(ctx)
}

func (d *Dispatcher) broadcastRooms(ctx context.Context) {
	d.listMu.Lock()
	defer d.listMu.Unlock()
	d.publishRooms(ctx)
}

// publishUsers 与 publishRooms 要求调用方持有 listMu。
func (d *Dispatcher) publishUsers(ctx context.Context) {
	text := RenderUsers(d.sessions.All())
	d.presenter.Users(text)
	d.broadcast(ctx, protocol.UserUpdate(text))
}

func (d *Dispatcher) publishRooms(ctx context.Context) {
	text := RenderRooms(d.rooms.Snapshot(), d.nameOf)
	d.presenter.Rooms(text)
	d.broadcast(ctx, protocol.RoomUpdate(text))
}

func (d *Dispatcher) nameOf(id uint64) string {
	if sess, ok := d.sessions.Get(id); ok {
		return sess.Name()
	}
	return ""
}

func (d *Dispatcher) broadcast(ctx context.Context, pkt protocol.Packet) {
	if err := d.sessions.Broadcast(pkt); err != nil {
		log.Ctx(ctx).Debug("broadcast partially failed", log.FieldCommand(pkt.Command), zap.Error(err))
	}
}

// deliver 向单个会话推送数据包，失败只记录日志：出站通道已自行中止连接，由其 worker 完成清理。
func (d *Dispatcher) deliver(ctx context.Context, sess *session.Session, pkt protocol.Packet) {
	if err := sess.Send(pkt); err != nil {
		log.Ctx(ctx).Debug("deliver failed",
			log.FieldSessionID(sess.ID()),
			log.FieldCommand(pkt.Command),
			zap.Error(err))
	}
}
