// Package redis 封装 go-redis 客户端, 按名字管理 Lua 脚本。
package redis

import (
	"context"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

// Client 持有底层连接以及已注册的脚本。
type Client struct {
	rdb     *goredis.Client
	mu      sync.RWMutex
	scripts map[string]*goredis.Script
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return NewFromClient(rdb), nil
}

// NewFromClient 包装一个已经建好的连接。
func NewFromClient(rdb *goredis.Client) *Client {
	return &Client{rdb: rdb, scripts: make(map[string]*goredis.Script)}
}

func (c *Client) GetClient() *goredis.Client {
	return c.rdb
}

// LoadScriptFromContent 以 name 注册脚本, 并预先加载到服务端脚本缓存。
func (c *Client) LoadScriptFromContent(ctx context.Context, name, content string) error {
	script := goredis.NewScript(content)
	if err := script.Load(ctx, c.rdb).Err(); err != nil {
		return fmt.Errorf("load script %s: %w", name, err)
	}
	c.mu.Lock()
	c.scripts[name] = script
	c.mu.Unlock()
	return nil
}

// RunScript 执行已注册的脚本, 服务端缓存丢失时 Run 会自动回退到 EVAL。
func (c *Client) RunScript(ctx context.Context, name string, keys []string, args ...any) (any, error) {
	c.mu.RLock()
	script, ok := c.scripts[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("script %s not loaded", name)
	}
	return script.Run(ctx, c.rdb, keys, args...).Result()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
