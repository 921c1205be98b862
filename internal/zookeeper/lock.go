// internal/zookeeper/lock.go
package zookeeper

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
)

const (
	lockRoot = "/flashdeal_locks" // 所有分布式锁的根节点
)

// DistributedLock 基于临时顺序节点实现的分布式锁。
// 库存对账进程用它做多实例部署下的 leader 选举：
// 只有持锁实例执行扫描，其余实例阻塞等待接替。
type DistributedLock struct {
	conn     *Conn
	path     string // 锁的路径，例如 /flashdeal_locks/stock-reconciler
	lockNode string // 成功获取锁后，自己创建的节点路径
}

// NewDistributedLock 创建一个新的分布式锁实例，并确保锁路径存在。
func NewDistributedLock(conn *Conn, resourceID string) (*DistributedLock, error) {
	for _, p := range []string{lockRoot, lockRoot + "/" + resourceID} {
		exists, _, err := conn.Exists(p)
		if err != nil {
			return nil, fmt.Errorf("failed to check lock path %s: %w", p, err)
		}
		if exists {
			continue
		}
		if _, err := conn.Create(p, []byte(""), 0, zk.WorldACL(zk.PermAll)); err != nil && err != zk.ErrNodeExists {
			return nil, fmt.Errorf("failed to create lock path %s: %w", p, err)
		}
	}

	return &DistributedLock{
		conn: conn,
		path: lockRoot + "/" + resourceID,
	}, nil
}

// Lock 尝试获取锁，获取不到则阻塞等待，直到拿到锁或等待超时。
func (l *DistributedLock) Lock(waitTimeout time.Duration) error {
	// 1. 创建临时顺序节点，会话断开时节点自动删除，锁随之释放
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", []byte(""), zk.WorldACL(zk.PermAll))
	if err != nil {
		return fmt.Errorf("failed to create sequential node: %w", err)
	}
	l.lockNode = nodePath

	for {
		children, _, err := l.conn.Children(l.path)
		if err != nil {
			return fmt.Errorf("failed to get children nodes: %w", err)
		}
		sort.Strings(children)

		// 2. 自己是最小节点即持锁
		myNodeName := strings.TrimPrefix(l.lockNode, l.path+"/")
		if myNodeName == children[0] {
			return nil
		}

		// 3. 否则只监听排在自己前面的那个节点，避免惊群
		prevNodeIndex := -1
		for i, child := range children {
			if child == myNodeName {
				prevNodeIndex = i - 1
				break
			}
		}
		if prevNodeIndex < 0 {
			return errors.New("cannot find previous node, something is wrong")
		}
		prevNodePath := l.path + "/" + children[prevNodeIndex]

		_, _, eventChan, err := l.conn.ExistsW(prevNodePath)
		if err != nil {
			// 前一个节点刚好被删除，重新竞争
			if err == zk.ErrNoNode {
				continue
			}
			return fmt.Errorf("failed to watch previous node: %w", err)
		}

		select {
		case event := <-eventChan:
			if event.Type == zk.EventNodeDeleted {
				continue
			}
		case <-time.After(waitTimeout):
			// 超时要把自己的节点删掉，否则会永远占着队列位置
			_ = l.conn.Delete(l.lockNode, -1)
			l.lockNode = ""
			return errors.New("timeout waiting for lock")
		}
	}
}

// Unlock 释放锁。
func (l *DistributedLock) Unlock() error {
	if l.lockNode == "" {
		return errors.New("no lock to unlock")
	}
	err := l.conn.Delete(l.lockNode, -1)
	if err != nil && err != zk.ErrNoNode {
		return fmt.Errorf("failed to delete lock node: %w", err)
	}
	l.lockNode = ""
	return nil
}
