// internal/zookeeper/conn.go
package zookeeper

import (
	"time"

	"github.com/go-zookeeper/zk"
)

// Conn 封装 ZooKeeper 连接。锁等上层组件只依赖这个类型，
// 便于在一个进程内共享同一条会话连接。
type Conn struct {
	*zk.Conn
}

// NewConn 建立到 ZooKeeper 集群的连接。
func NewConn(servers []string, sessionTimeout time.Duration) (*Conn, error) {
	conn, _, err := zk.Connect(servers, sessionTimeout)
	if err != nil {
		return nil, err
	}
	return &Conn{Conn: conn}, nil
}

// Close 关闭会话，所有由本会话创建的临时节点随之消失。
func (c *Conn) Close() {
	c.Conn.Close()
}
