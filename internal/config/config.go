package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Monitor MonitorConfig `yaml:"monitor"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // 読み込みタイムアウト
	WriteTimeout time.Duration `yaml:"write_timeout"` // 書き込みタイムアウト
}

// MonitorConfig はデバイスモニター関連の設定
type MonitorConfig struct {
	// 監視するudevサブシステム
	Subsystem string `yaml:"subsystem"`

	// 静的列挙で走査するデバイスノードの命名規則
	DeviceBases []string `yaml:"device_bases"`

	// 静的列挙で走査するデバイス番号の上限
	MaxDeviceIndex int `yaml:"max_device_index"`
}

// Load は設定を読み込む。デフォルト値をベースに、MIHARI_CONFIG で
// 指定されたYAMLファイルと環境変数で上書きする
func Load() (*Config, error) {
	// デフォルト設定を作成
	cfg := &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 0, // イベントストリーミング用にタイムアウト無効化
		},
		Monitor: MonitorConfig{
			Subsystem:      "video4linux",
			DeviceBases:    []string{"/dev/video", "/dev/v4l2/video"},
			MaxDeviceIndex: 64,
		},
	}

	// YAMLファイルによる上書き
	if path := os.Getenv("MIHARI_CONFIG"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("設定ファイルの解析に失敗: %w", err)
		}
	}

	// 環境変数による上書き
	cfg.Server.Host = getEnvOrDefault("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvAsIntOrDefault("PORT", cfg.Server.Port)

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	// サーバー設定の検証
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}

	// モニター設定の検証
	if c.Monitor.Subsystem == "" {
		return fmt.Errorf("サブシステムが設定されていません")
	}
	if len(c.Monitor.DeviceBases) == 0 {
		return fmt.Errorf("デバイスノードの命名規則が設定されていません")
	}
	if c.Monitor.MaxDeviceIndex < 1 {
		return fmt.Errorf("無効なデバイス番号の上限: %d", c.Monitor.MaxDeviceIndex)
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}
