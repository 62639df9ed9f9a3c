// Package nacos 负责把服务实例注册到 Nacos 以及在退出时注销。
package nacos

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"storefront/internal/pkg/logger"

	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/naming_client"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
)

const defaultGroup = "DEFAULT_GROUP"

// Options Nacos 连接参数
type Options struct {
	// Addrs 格式为 "ip1:port1,ip2:port2"
	Addrs       string
	NamespaceID string
	GroupName   string
	LogDir      string
	CacheDir    string
}

// Instance 是本进程注册出去的实例
type Instance struct {
	ServiceName string
	IP          string
	Port        int
	Metadata    map[string]string
}

// Client 封装了 Nacos 命名客户端
type Client struct {
	namingClient naming_client.INamingClient
	groupName    string
}

// ParseServerAddrs 把逗号分隔的地址解析成 ServerConfig。
func ParseServerAddrs(addrs string) ([]constant.ServerConfig, error) {
	var serverConfigs []constant.ServerConfig
	for _, addr := range strings.Split(addrs, ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		host, portStr, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid nacos address format: %s", addr)
		}
		port, err := strconv.ParseUint(portStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid port in nacos address: %s", portStr)
		}
		serverConfigs = append(serverConfigs, *constant.NewServerConfig(host, port))
	}
	if len(serverConfigs) == 0 {
		return nil, fmt.Errorf("no nacos server address configured")
	}
	return serverConfigs, nil
}

// NewClient 创建 Nacos 命名客户端。
func NewClient(opts Options) (*Client, error) {
	serverConfigs, err := ParseServerAddrs(opts.Addrs)
	if err != nil {
		return nil, err
	}
	if opts.NamespaceID == "" {
		logger.L().Warn().Msg("nacos namespace is not set, using the public namespace")
	}
	group := opts.GroupName
	if group == "" {
		group = defaultGroup
	}
	logDir, cacheDir := opts.LogDir, opts.CacheDir
	if logDir == "" {
		logDir = "/tmp/nacos/log"
	}
	if cacheDir == "" {
		cacheDir = "/tmp/nacos/cache"
	}

	clientConfig := *constant.NewClientConfig(
		constant.WithNotLoadCacheAtStart(true),
		constant.WithLogDir(logDir),
		constant.WithCacheDir(cacheDir),
		constant.WithLogLevel("warn"),
		constant.WithNamespaceId(opts.NamespaceID),
	)

	namingClient, err := clients.NewNamingClient(vo.NacosClientParam{
		ClientConfig:  &clientConfig,
		ServerConfigs: serverConfigs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create nacos naming client: %w", err)
	}
	logger.L().Info().Str("addrs", opts.Addrs).Str("group", group).Msg("connected to nacos")
	return &Client{namingClient: namingClient, groupName: group}, nil
}

// Register 以临时实例注册, 心跳断开后会被自动摘除。
func (c *Client) Register(inst Instance) error {
	ok, err := c.namingClient.RegisterInstance(vo.RegisterInstanceParam{
		Ip:          inst.IP,
		Port:        uint64(inst.Port),
		ServiceName: inst.ServiceName,
		Weight:      10,
		Enable:      true,
		Healthy:     true,
		Ephemeral:   true,
		Metadata:    inst.Metadata,
		GroupName:   c.groupName,
	})
	if err != nil {
		return fmt.Errorf("failed to register service with nacos: %w", err)
	}
	if !ok {
		return fmt.Errorf("nacos registration was not successful for service: %s", inst.ServiceName)
	}
	logger.L().Info().Str("service", inst.ServiceName).Str("ip", inst.IP).Int("port", inst.Port).Msg("registered to nacos")
	return nil
}

func (c *Client) Deregister(inst Instance) error {
	_, err := c.namingClient.DeregisterInstance(vo.DeregisterInstanceParam{
		Ip:          inst.IP,
		Port:        uint64(inst.Port),
		ServiceName: inst.ServiceName,
		Ephemeral:   true,
		GroupName:   c.groupName,
	})
	if err != nil {
		return fmt.Errorf("failed to deregister service with nacos: %w", err)
	}
	logger.L().Info().Str("service", inst.ServiceName).Msg("deregistered from nacos")
	return nil
}

// Close 关闭后台心跳。
func (c *Client) Close() {
	c.namingClient.CloseClient()
}

// OutboundIP 通过一次 UDP "连接" 找出本机对外的地址, 不会真的发包。
func OutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
