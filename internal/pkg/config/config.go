// internal/pkg/config/config.go
package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Config 聚合了 cash-service 运行所需的全部配置。
// 配置来源：YAML 文件为主，环境变量覆盖个别字段，便于容器化部署。
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Infra   InfraConfig   `yaml:"infra"`
	Cash    CashConfig    `yaml:"cash"`
}

type ServiceConfig struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
}

type InfraConfig struct {
	MySQL  MySQLConfig  `yaml:"mysql"`
	Redis  RedisConfig  `yaml:"redis"`
	Kafka  KafkaConfig  `yaml:"kafka"`
	Jaeger JaegerConfig `yaml:"jaeger"`
}

type MySQLConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers         []string `yaml:"brokers"`
	CouponTopic     string   `yaml:"coupon_topic"`
	ConsumerGroupID string   `yaml:"consumer_group_id"`
}

type JaegerConfig struct {
	Endpoint string `yaml:"endpoint"`
}

// CashConfig 是积分域的业务配置。
// 留空的字段使用 domain 包内的默认常量。
type CashConfig struct {
	DailyLimitRetentionDays int    `yaml:"daily_limit_retention_days"`
	FraudRulesPath          string `yaml:"fraud_rules_path"`
}

var (
	current *Config
	once    sync.Once
)

// Load 从指定路径加载配置文件，环境变量优先级更高。
// 只允许调用一次，后续通过 GetCurrentConfig 读取。
func Load(path string) (*Config, error) {
	var loadErr error
	once.Do(func() {
		cfg := defaultConfig()

		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				loadErr = fmt.Errorf("read config file %s: %w", path, err)
				return
			}
			// 没有配置文件时用默认值加环境变量跑，方便本地起服务
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			loadErr = fmt.Errorf("parse config file %s: %w", path, err)
			return
		}

		applyEnvOverrides(cfg)
		current = cfg
	})
	if loadErr != nil {
		return nil, loadErr
	}
	return current, nil
}

// GetCurrentConfig 返回已加载的配置，未加载时返回默认值。
func GetCurrentConfig() *Config {
	if current == nil {
		return defaultConfig()
	}
	return current
}

func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name: "cash-service",
			Port: 8091,
		},
		Infra: InfraConfig{
			MySQL: MySQLConfig{
				DSN: "root:root@tcp(localhost:3306)/cashkeyboard?charset=utf8mb4&parseTime=True&loc=Local",
			},
			Redis: RedisConfig{Addr: "localhost:6379"},
			Kafka: KafkaConfig{
				Brokers:     []string{"localhost:9092"},
				CouponTopic: "coupon-events",
			},
			Jaeger: JaegerConfig{Endpoint: "http://localhost:14268/api/traces"},
		},
		Cash: CashConfig{
			DailyLimitRetentionDays: 90,
		},
	}
}

// applyEnvOverrides 允许部署环境用环境变量覆盖关键连接信息。
func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("MYSQL_DSN"); ok {
		cfg.Infra.MySQL.DSN = v
	}
	if v, ok := os.LookupEnv("REDIS_ADDR"); ok {
		cfg.Infra.Redis.Addr = v
	}
	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok {
		cfg.Infra.Kafka.Brokers = []string{v}
	}
	if v, ok := os.LookupEnv("JAEGER_ENDPOINT"); ok {
		cfg.Infra.Jaeger.Endpoint = v
	}
}
