package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"rollcall/pkg/logger"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"go.uber.org/zap"
)

// Locker guards a sync run across agents sharing one queue.
// ok is false when another holder owns the lock.
type Locker interface {
	TryLock(ctx context.Context) (unlock func(), ok bool, err error)
}

// EtcdLocker holds one lease-backed session for the life of the agent.
type EtcdLocker struct {
	client *clientv3.Client
	key    string
	ttl    int

	mu      sync.Mutex
	session *concurrency.Session
}

func NewEtcdLocker(client *clientv3.Client, key string) *EtcdLocker {
	return &EtcdLocker{client: client, key: key, ttl: 10}
}

// NewEtcdClient dials etcd the same way for the agent and the CLI.
func NewEtcdClient(endpoints []string, dialTimeout time.Duration) (*clientv3.Client, error) {
	return clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
}

func (l *EtcdLocker) currentSession() (*concurrency.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.session != nil {
		select {
		case <-l.session.Done():
			// lease expired, start over
			l.session = nil
		default:
			return l.session, nil
		}
	}

	s, err := concurrency.NewSession(l.client, concurrency.WithTTL(l.ttl))
	if err != nil {
		return nil, err
	}
	l.session = s
	return s, nil
}

func (l *EtcdLocker) TryLock(ctx context.Context) (func(), bool, error) {
	session, err := l.currentSession()
	if err != nil {
		return nil, false, err
	}

	mutex := concurrency.NewMutex(session, l.key)
	if err := mutex.TryLock(ctx); err != nil {
		if errors.Is(err, concurrency.ErrLocked) {
			return nil, false, nil
		}
		return nil, false, err
	}

	unlock := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mutex.Unlock(ctx); err != nil {
			logger.Warn("failed to release sync lock", zap.String("key", l.key), zap.Error(err))
		}
	}
	return unlock, true, nil
}

func (l *EtcdLocker) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.session == nil {
		return nil
	}
	err := l.session.Close()
	l.session = nil
	return err
}

// Local is an in-process Locker for orchestrators sharing one process.
type Local struct {
	mu   sync.Mutex
	held bool
}

func (l *Local) TryLock(context.Context) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return nil, false, nil
	}
	l.held = true
	return func() {
		l.mu.Lock()
		l.held = false
		l.mu.Unlock()
	}, true, nil
}
