// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"log"
	"os"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// Config 是所有服务共享的配置结构。
// 来源优先级：环境变量 > 配置文件 > 默认值。
type Config struct {
	App struct {
		// 预约记录的默认存活时长（秒），商品未单独配置时使用
		ReservationTTLSeconds int `yaml:"reservationTTLSeconds"`
		// 一次批量预约允许的最大商品条目数
		MaxBatchItems int `yaml:"maxBatchItems"`
		// 可用库存低于 totalStock * ratio 时报告 LOW_STOCK
		LowStockRatio float64 `yaml:"lowStockRatio"`
		// 对账扫描间隔（秒）
		ReconcileIntervalSeconds int `yaml:"reconcileIntervalSeconds"`
	} `yaml:"app"`

	Infra struct {
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
		Mysql struct {
			DSN string `yaml:"dsn"`
		} `yaml:"mysql"`
		Kafka struct {
			Brokers          []string `yaml:"brokers"`
			StockEventsTopic string   `yaml:"stockEventsTopic"`
		} `yaml:"kafka"`
		Jaeger struct {
			Endpoint string `yaml:"endpoint"`
		} `yaml:"jaeger"`
		Zookeeper struct {
			Servers []string `yaml:"servers"`
		} `yaml:"zookeeper"`
		Nacos struct {
			Enabled     bool   `yaml:"enabled"`
			ServerAddrs string `yaml:"serverAddrs"`
			Namespace   string `yaml:"namespace"`
			Group       string `yaml:"group"`
		} `yaml:"nacos"`
	} `yaml:"infra"`
}

var currentConfig atomic.Pointer[Config]

// GetCurrentConfig 返回当前生效的配置。必须先调用 Init。
func GetCurrentConfig() *Config {
	cfg := currentConfig.Load()
	if cfg == nil {
		log.Fatal("FATAL: bootstrap.Init must be called before GetCurrentConfig")
	}
	return cfg
}

// Init 加载配置。配置文件路径由 CONFIG_FILE 指定，缺省 config.yaml；
// 文件不存在时直接使用默认值加环境变量，方便本地起服务。
func Init() {
	cfg := defaultConfig()

	path := getEnv("CONFIG_FILE", "config.yaml")
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			log.Fatalf("FATAL: invalid config file %s: %v", path, err)
		}
		log.Printf("Config loaded from %s", path)
	} else {
		log.Printf("Config file %s not found, using defaults + env", path)
	}

	applyEnvOverrides(cfg)
	currentConfig.Store(cfg)
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.App.ReservationTTLSeconds = 600
	cfg.App.MaxBatchItems = 10
	cfg.App.LowStockRatio = 0.1
	cfg.App.ReconcileIntervalSeconds = 60
	cfg.Infra.Redis.Addr = "localhost:6379"
	cfg.Infra.Mysql.DSN = "root:root@tcp(localhost:3306)/flashdeal?charset=utf8mb4&parseTime=True&loc=Local"
	cfg.Infra.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Infra.Kafka.StockEventsTopic = "stock-events-topic"
	cfg.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	cfg.Infra.Zookeeper.Servers = []string{"localhost:2181"}
	cfg.Infra.Nacos.Group = "DEFAULT_GROUP"
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("REDIS_ADDR"); ok {
		cfg.Infra.Redis.Addr = v
	}
	if v, ok := os.LookupEnv("MYSQL_DSN"); ok {
		cfg.Infra.Mysql.DSN = v
	}
	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok {
		cfg.Infra.Kafka.Brokers = strings.Split(v, ",")
	}
	if v, ok := os.LookupEnv("JAEGER_ENDPOINT"); ok {
		cfg.Infra.Jaeger.Endpoint = v
	}
	if v, ok := os.LookupEnv("ZK_SERVERS"); ok {
		cfg.Infra.Zookeeper.Servers = strings.Split(v, ",")
	}
	if v, ok := os.LookupEnv("NACOS_SERVER_ADDRS"); ok {
		cfg.Infra.Nacos.Enabled = true
		cfg.Infra.Nacos.ServerAddrs = v
	}
	if v, ok := os.LookupEnv("NACOS_NAMESPACE"); ok {
		cfg.Infra.Nacos.Namespace = v
	}
	if v, ok := os.LookupEnv("NACOS_GROUP"); ok {
		cfg.Infra.Nacos.Group = v
	}
}

// getEnv 从环境变量读取配置，带默认值。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
