// Package discovery 将正在运行的中继服务器发布到 etcd，供客户端或运维工具发现。
//
// 每个服务器在 <root>/<serverID> 下写入一条带租约的 JSON 记录并持续续约；
// 租约丢失时以指数退避重新注册，停止时撤销租约。
package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/lk2023060901/chatrelay-go/pkg/log"
	"github.com/lk2023060901/chatrelay-go/pkg/util/merr"
	"github.com/lk2023060901/chatrelay-go/pkg/util/retry"
)

const (
	DefaultRoot        = "/chatrelay/relays"
	defaultTTL         = 10 * time.Second
	defaultDialTimeout = 5 * time.Second
	defaultRetryTimes  = 10
)

// Config 为 etcd 发布配置。
type Config struct {
	Enabled     bool          `mapstructure:"enabled"`
	Endpoints   []string      `mapstructure:"endpoints"`
	Root        string        `mapstructure:"root"`
	TTL         time.Duration `mapstructure:"ttl"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	RetryTimes  uint          `mapstructure:"retry_times"`
}

// WithDefaults 返回补齐默认值后的配置。
func (c Config) WithDefaults() Config {
	if c.Root == "" {
		c.Root = DefaultRoot
	}
	if c.TTL < time.Second {
		c.TTL = defaultTTL
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.RetryTimes == 0 {
		c.RetryTimes = defaultRetryTimes
	}
	return c
}

// NewClient 根据配置创建 etcd 客户端。
func NewClient(cfg Config) (*clientv3.Client, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, merr.WrapErrParameterMissing("etcd.endpoints")
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.WithDefaults().DialTimeout,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create etcd client")
	}
	return cli, nil
}

// Announcer 负责发布并维持一条中继记录。
type Announcer struct {
	log.Binder

	cli        *clientv3.Client
	ownsClient bool
	cfg        Config
	record     Record

	mu      sync.Mutex
	leaseID clientv3.LeaseID

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAnnouncer 创建 Announcer 及其 etcd 客户端，Stop 时关闭该客户端。
func NewAnnouncer(cfg Config, record Record) (*Announcer, error) {
	cli, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	a := NewAnnouncerWithClient(cli, cfg, record)
	a.ownsClient = true
	return a, nil
}

// NewAnnouncerWithClient 使用已有的 etcd 客户端创建 Announcer。
func NewAnnouncerWithClient(cli *clientv3.Client, cfg Config, record Record) *Announcer {
	a := &Announcer{
		cli:    cli,
		cfg:    cfg.WithDefaults(),
		record: record,
	}
	a.SetLogger(log.With(log.FieldComponent("discovery"), zap.String("serverID", record.ServerID)))
	return a
}

// Key 返回本服务器记录的 key。
func (a *Announcer) Key() string {
	return a.record.Key(a.cfg.Root)
}

// Start 注册记录并启动续约协程，注册失败（重试耗尽）时返回错误。
func (a *Announcer) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(context.Background())
	if err := retry.Do(ctx, a.register,
		retry.Attempts(a.cfg.RetryTimes),
		retry.RetryErr(merr.IsRetryableErr)); err != nil {
		a.cancel()
		return errors.Wrap(err, "register relay in etcd")
	}
	a.wg.Add(1)
	go a.keepAliveLoop()
	return nil
}

// register 申请租约并写入记录。etcd 调用失败返回可重试的 merr.ErrServiceUnavailable，
// 记录无法编码返回标记为不可恢复的 merr.ErrServiceInternal。
func (a *Announcer) register() error {
	ctx, cancel := context.WithTimeout(a.ctx, a.cfg.DialTimeout)
	defer cancel()

	resp, err := a.cli.Grant(ctx, int64(a.cfg.TTL/time.Second))
	if err != nil {
		return merr.WrapErrServiceUnavailable(err.Error(), "grant lease")
	}

	record := a.record
	record.LeaseID = int64(resp.ID)
	value, err := json.Marshal(record)
	if err != nil {
		return retry.Unrecoverable(merr.WrapErrServiceInternal(err.Error(), "marshal relay record"))
	}
	if _, err := a.cli.Put(ctx, a.Key(), string(value), clientv3.WithLease(resp.ID)); err != nil {
		return merr.WrapErrServiceUnavailable(err.Error(), "put relay record")
	}

	a.mu.Lock()
	a.leaseID = resp.ID
	a.mu.Unlock()
	a.Logger().Info("relay registered", zap.String("key", a.Key()), zap.Int64("leaseID", int64(resp.ID)))
	return nil
}

func (a *Announcer) currentLease() clientv3.LeaseID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.leaseID
}

// keepAliveLoop 持续续约；续约通道关闭后以指数退避重新注册，直至 Stop。
func (a *Announcer) keepAliveLoop() {
	defer a.wg.Done()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0
	bo.Reset()

	var lastErr error
	for {
		if a.ctx.Err() != nil {
			return
		}
		if lastErr != nil {
			next := bo.NextBackOff()
			a.Logger().Warn("relay registration lost, wait for retry", zap.Error(lastErr), zap.Duration("next", next))
			select {
			case <-time.After(next):
			case <-a.ctx.Done():
				return
			}
			if err := a.register(); err != nil {
				lastErr = err
				continue
			}
		}

		ch, err := a.cli.KeepAlive(a.ctx, a.currentLease())
		if err != nil {
			lastErr = errors.Wrap(err, "keep alive")
			continue
		}
		for range ch {
		}
		// 通道关闭：ctx 结束或租约失效，重新注册。
		lastErr = errors.New("keep alive channel closed")
		bo.Reset()
	}
}

// Stop 停止续约并撤销租约，使记录立即从 etcd 中消失。
func (a *Announcer) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()

	var err error
	if lease := a.currentLease(); lease != clientv3.NoLease {
		if _, rerr := a.cli.Revoke(ctx, lease); rerr != nil {
			err = errors.Wrap(rerr, "revoke lease")
		} else {
			a.Logger().Info("relay lease revoked", zap.Int64("leaseID", int64(lease)))
		}
	}
	if a.ownsClient {
		err = merr.Combine(err, a.cli.Close())
	}
	return err
}

// List 返回 root 下所有中继记录，按 serverID 排序；无法解析的记录被跳过。
func List(ctx context.Context, cli *clientv3.Client, root string) ([]Record, error) {
	if root == "" {
		root = DefaultRoot
	}
	resp, err := cli.Get(ctx, root+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, errors.Wrap(err, "list relay records")
	}
	records := make([]Record, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var r Record
		if err := json.Unmarshal(kv.Value, &r); err != nil {
			log.Warn("skip invalid relay record", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		records = append(records, r)
	}
	sortRecords(records)
	return records, nil
}
