package adapter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"storefront/internal/pkg/logger"

	"github.com/go-zookeeper/zk"
)

const lockRoot = "/storefront_locks" // 所有购物车锁的根节点

// ZookeeperLocker 用临时顺序节点实现公平锁, 会话断开时锁自动释放
type ZookeeperLocker struct {
	conn *zk.Conn

	mu      sync.Mutex
	ensured map[string]bool
}

func NewZookeeperConn(servers []string, sessionTimeout time.Duration) (*zk.Conn, error) {
	conn, _, err := zk.Connect(servers, sessionTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect zookeeper %v: %w", servers, err)
	}
	return conn, nil
}

func NewZookeeperLocker(conn *zk.Conn) *ZookeeperLocker {
	return &ZookeeperLocker{conn: conn, ensured: make(map[string]bool)}
}

func (l *ZookeeperLocker) ensure(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ensured[path] {
		return nil
	}
	for _, p := range []string{lockRoot, path} {
		_, err := l.conn.Create(p, []byte(""), 0, zk.WorldACL(zk.PermAll))
		if err != nil && !errors.Is(err, zk.ErrNodeExists) {
			return fmt.Errorf("failed to create lock node %s: %w", p, err)
		}
	}
	l.ensured[path] = true
	return nil
}

func (l *ZookeeperLocker) Lock(ctx context.Context, key string) (func(), error) {
	path := lockRoot + "/" + strings.ReplaceAll(key, "/", "_")
	if err := l.ensure(path); err != nil {
		return nil, err
	}

	// 1. 在锁路径下创建一个临时顺序节点
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(path+"/lock-", []byte(""), zk.WorldACL(zk.PermAll))
	if err != nil {
		return nil, fmt.Errorf("failed to create sequential node: %w", err)
	}
	unlock := func() {
		if err := l.conn.Delete(nodePath, -1); err != nil && !errors.Is(err, zk.ErrNoNode) {
			logger.Ctx(ctx).Warn().Err(err).Str("node", nodePath).Msg("failed to delete lock node")
		}
	}

	if err := l.wait(ctx, path, nodePath); err != nil {
		unlock()
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(unlock) }, nil
}

func (l *ZookeeperLocker) wait(ctx context.Context, path, nodePath string) error {
	myNode := strings.TrimPrefix(nodePath, path+"/")
	for {
		// 2. 按序号排序子节点, 受保护节点带有 GUID 前缀, 只比较序号部分
		children, _, err := l.conn.Children(path)
		if err != nil {
			return fmt.Errorf("failed to get children nodes: %w", err)
		}
		sort.Slice(children, func(i, j int) bool { return sequenceOf(children[i]) < sequenceOf(children[j]) })

		idx := -1
		for i, child := range children {
			if child == myNode {
				idx = i
				break
			}
		}
		if idx < 0 {
			return errors.New("lock node vanished, session may have expired")
		}
		// 3. 最小节点即持有锁
		if idx == 0 {
			return nil
		}

		// 4. 只监听前一个节点, 避免惊群
		exists, _, events, err := l.conn.ExistsW(path + "/" + children[idx-1])
		if err != nil {
			return fmt.Errorf("failed to watch previous node: %w", err)
		}
		if !exists {
			continue
		}
		select {
		case <-events:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// sequenceOf 取节点名末尾的 10 位序号
func sequenceOf(node string) string {
	if i := strings.LastIndex(node, "lock-"); i >= 0 {
		return node[i+len("lock-"):]
	}
	return node
}
