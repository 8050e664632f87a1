// Package config 管理守护进程配置
//
// 配置来源（优先级从高到低）：
//  1. WATCHDOGD_ 前缀的环境变量（"." 替换为 "_"，例如 WATCHDOGD_WATCHDOG_ENABLED）
//  2. watchdogd.yml 配置文件
//  3. setDefault 中的默认值
//
// watchdog 小节是交给 Supervisor 的配置快照，其余为守护进程本身的运行参数。
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"watchdogd/pkg/utils/constants"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var config *Config

var vp *viper.Viper

// configViperMutex 保护全局配置加载时的 viper 状态操作
var configViperMutex sync.Mutex

type Config struct {
	Daemonize bool     `yaml:"daemonize" mapstructure:"daemonize"`
	PidFile   string   `yaml:"pidfile" mapstructure:"pidfile"`
	Socket    string   `yaml:"socket" mapstructure:"socket"`
	LockFile  string   `yaml:"lockfile" mapstructure:"lockfile"`
	Log       Log      `yaml:"log" mapstructure:"log"`
	Metrics   Metrics  `yaml:"metrics" mapstructure:"metrics"`
	History   History  `yaml:"history" mapstructure:"history"`
	Watchdog  Watchdog `yaml:"watchdog" mapstructure:"watchdog"`
}

type Log struct {
	Level        string `yaml:"level,omitempty" mapstructure:"level,omitempty"`
	FileEnabled  bool   `yaml:"file_enabled" mapstructure:"file_enabled"`
	FilePath     string `yaml:"file_path,omitempty" mapstructure:"file_path,omitempty"`
	FileSize     int    `yaml:"file_size,omitempty" mapstructure:"file_size,omitempty"`
	FileCompress bool   `yaml:"file_compress,omitempty" mapstructure:"file_compress,omitempty"`
	MaxAge       int    `yaml:"max_age,omitempty" mapstructure:"max_age,omitempty"`
	MaxBackups   int    `yaml:"max_backups,omitempty" mapstructure:"max_backups,omitempty"`
}

type Metrics struct {
	// Listen 为空时不启动 /metrics 服务
	Listen string `yaml:"listen" mapstructure:"listen"`
}

type History struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
	// Consume 为 true 时，归档后删除重启原因文件，以便记录下一次事故
	Consume bool `yaml:"consume" mapstructure:"consume"`
}

// Watchdog 是 Supervisor 消费的配置快照
type Watchdog struct {
	Enabled             bool   `yaml:"enabled" mapstructure:"enabled"`
	PingIntervalMs      int64  `yaml:"ping_interval_ms" mapstructure:"ping_interval_ms"`
	WatchdogDevicePath  string `yaml:"watchdog_device_path" mapstructure:"watchdog_device_path"`
	RebootCauseFilePath string `yaml:"reboot_cause_file_path" mapstructure:"reboot_cause_file_path"`
}

// DefaultWatchdog 返回全部取默认值的快照（看门狗处于关闭状态）
func DefaultWatchdog() Watchdog {
	return Watchdog{
		Enabled:             false,
		PingIntervalMs:      constants.DefaultPingInterval.Milliseconds(),
		WatchdogDevicePath:  constants.DefaultWatchdogDevicePath,
		RebootCauseFilePath: constants.DefaultRebootCausePath,
	}
}

func (w Watchdog) PingInterval() time.Duration {
	return time.Duration(w.PingIntervalMs) * time.Millisecond
}

// Validate 检查快照的字段取值，设备文件是否存在由 Supervisor 在启用时检查
func (w Watchdog) Validate() error {
	var err error

	if w.PingIntervalMs <= 0 {
		err = errors.Join(err, fmt.Errorf("watchdog.ping_interval_ms must be positive, got %d", w.PingIntervalMs))
	}

	if w.WatchdogDevicePath == "" {
		err = errors.Join(err, errors.New("watchdog.watchdog_device_path must not be empty"))
	}

	if w.RebootCauseFilePath == "" {
		err = errors.Join(err, errors.New("watchdog.reboot_cause_file_path must not be empty"))
	}

	return err
}

func setDefault(v *viper.Viper) {
	v.SetDefault("daemonize", true)
	v.SetDefault("pidfile", constants.DaemonPidFilePath)
	v.SetDefault("socket", constants.DaemonSockFilePath)
	v.SetDefault("lockfile", constants.DaemonLockFilePath)

	v.SetDefault("log.level", constants.DefaultLogLevel)
	v.SetDefault("log.file_enabled", true)
	v.SetDefault("log.file_path", constants.DaemonLogFilePath)
	v.SetDefault("log.file_size", 10)
	v.SetDefault("log.file_compress", false)
	v.SetDefault("log.max_age", 7)
	v.SetDefault("log.max_backups", 7)

	v.SetDefault("metrics.listen", "")

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", constants.HistoryDBPath)
	v.SetDefault("history.consume", false)

	def := DefaultWatchdog()
	v.SetDefault("watchdog.enabled", def.Enabled)
	v.SetDefault("watchdog.ping_interval_ms", def.PingIntervalMs)
	v.SetDefault("watchdog.watchdog_device_path", def.WatchdogDevicePath)
	v.SetDefault("watchdog.reboot_cause_file_path", def.RebootCauseFilePath)
}

func GetConfig() *Config {
	configViperMutex.Lock()
	defer configViperMutex.Unlock()

	return config
}

// SetConfig 加载配置，失败时直接退出进程
func SetConfig(configFile string) {
	if _, err := LoadConfig(configFile); err != nil {
		log.Fatalf("Error loading config, %v", err)
	}
}

// LoadConfig 创建新的 viper 实例并加载配置
//
// configFile 不存在时按 . etc ../etc ~/.watchdogd 的顺序查找 watchdogd.yml，
// 找不到配置文件不算错误，使用默认值。
func LoadConfig(configFile string) (*Config, error) {
	configViperMutex.Lock()
	defer configViperMutex.Unlock()

	v := viper.New()

	_, err := os.Stat(configFile)
	if configFile == "" || errors.Is(err, os.ErrNotExist) {
		v.SetConfigName(constants.DefaultDaemonName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("etc")
		v.AddConfigPath("../etc")
		v.AddConfigPath(constants.WatchdogdHome)
	} else if err != nil {
		return nil, err
	} else {
		v.SetConfigFile(configFile)
	}

	v.SetEnvPrefix(constants.EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefault(v)

	cfg, err := readConfig(v)
	if err != nil {
		return nil, err
	}

	vp = v
	config = cfg

	return cfg, nil
}

// Reload 使用上一次 LoadConfig 的 viper 实例重新读取配置文件
func Reload() (*Config, error) {
	configViperMutex.Lock()
	defer configViperMutex.Unlock()

	if vp == nil {
		return nil, errors.New("config has not been loaded")
	}

	cfg, err := readConfig(vp)
	if err != nil {
		return nil, err
	}

	config = cfg

	return cfg, nil
}

// Watch 在配置文件变化时重新加载并回调 onChange
//
// 没有使用配置文件（仅默认值和环境变量）时不做任何事。
func Watch(onChange func(*Config, error)) bool {
	configViperMutex.Lock()
	defer configViperMutex.Unlock()

	if vp == nil || vp.ConfigFileUsed() == "" {
		return false
	}

	vp.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		onChange(Reload())
	})
	vp.WatchConfig()

	return true
}

// ConfigFileUsed 返回实际加载的配置文件路径
func ConfigFileUsed() string {
	configViperMutex.Lock()
	defer configViperMutex.Unlock()

	if vp == nil {
		return ""
	}

	return vp.ConfigFileUsed()
}

func readConfig(v *viper.Viper) (*Config, error) {
	err := v.ReadInConfig()
	if err != nil && !errors.As(err, &viper.ConfigFileNotFoundError{}) {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg *Config
	if err = v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err = cfg.Watchdog.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
