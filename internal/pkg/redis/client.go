// internal/pkg/redis/client.go
package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Client 封装了 go-redis 客户端，并维护一张按名字注册的 Lua 脚本表。
// 所有需要"检查并修改"语义的操作都必须通过脚本执行，
// 保证在 Redis 服务端是单个原子步骤。
type Client struct {
	rdb *redis.Client

	mu      sync.RWMutex
	scripts map[string]*redis.Script
}

// NewClient 创建一个新的客户端实例。
func NewClient(addr, password string, db int) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Client{
		rdb:     rdb,
		scripts: make(map[string]*redis.Script),
	}
}

// NewClientFromRedis 用一个已有的 go-redis 实例构造 Client。
// 测试中配合 redismock 使用。
func NewClientFromRedis(rdb *redis.Client) *Client {
	return &Client{
		rdb:     rdb,
		scripts: make(map[string]*redis.Script),
	}
}

// GetClient 暴露底层的 go-redis 客户端，供需要 pipeline 等高级特性的调用方使用。
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// LoadScriptFromContent 以指定名字注册一段 Lua 脚本。
// 脚本首次执行时由 go-redis 自动走 EVALSHA/EVAL 回退，无需提前 SCRIPT LOAD。
func (c *Client) LoadScriptFromContent(name, content string) error {
	if content == "" {
		return fmt.Errorf("script %q has empty content", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[name] = redis.NewScript(content)
	return nil
}

// RunScript 执行一段已注册的脚本。
func (c *Client) RunScript(ctx context.Context, name string, keys []string, args ...interface{}) (interface{}, error) {
	c.mu.RLock()
	script, ok := c.scripts[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("script %q is not loaded", name)
	}
	return script.Run(ctx, c.rdb, keys, args...).Result()
}

// Ping 检查连接可用性，服务启动时调用。
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close 关闭底层连接。
func (c *Client) Close() error {
	return c.rdb.Close()
}
