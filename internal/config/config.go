package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/iyuangang/sqlrun/internal/utils"
)

const (
	// DefaultConfigFile 默认配置文件名
	DefaultConfigFile = "config.json"
	// EnvPrefix 环境变量前缀
	EnvPrefix = "SQLRUN"
	// EnvDatabaseName 由 SQLRUN_DRIVER/SQLRUN_DSN 生成的数据库配置名
	EnvDatabaseName = "env"
)

// 支持的驱动名及别名
var driverNames = map[string]string{
	"mysql":      "mysql",
	"mariadb":    "mysql",
	"postgres":   "postgres",
	"postgresql": "postgres",
	"pq":         "postgres",
	"sqlite3":    "sqlite3",
	"sqlite":     "sqlite3",
	"oracle":     "oracle",
	"godror":     "oracle",
}

// NormalizeDriver 返回驱动的规范名称，不支持的驱动返回 false
func NormalizeDriver(name string) (string, bool) {
	canonical, ok := driverNames[strings.ToLower(strings.TrimSpace(name))]
	return canonical, ok
}

// DatabaseConfig 数据库连接描述
type DatabaseConfig struct {
	Name           string            `mapstructure:"name" json:"name"`
	Driver         string            `mapstructure:"driver" json:"driver"`
	DSN            string            `mapstructure:"dsn" json:"dsn,omitempty"`
	User           string            `mapstructure:"user" json:"user,omitempty"`
	Password       string            `mapstructure:"password" json:"password,omitempty"`
	Host           string            `mapstructure:"host" json:"host,omitempty"`
	Port           int               `mapstructure:"port" json:"port,omitempty"`
	Database       string            `mapstructure:"database" json:"database,omitempty"`
	Options        map[string]string `mapstructure:"options" json:"options,omitempty"`
	ConnectTimeout time.Duration     `mapstructure:"connect_timeout" json:"connect_timeout,omitempty"`
}

// Address host:port，未配置端口时只返回 host
func (dc *DatabaseConfig) Address() string {
	if dc.Port == 0 {
		return dc.Host
	}
	return fmt.Sprintf("%s:%d", dc.Host, dc.Port)
}

// Config 全局配置
type Config struct {
	Databases       map[string]DatabaseConfig `mapstructure:"databases"`
	DefaultDatabase string                    `mapstructure:"default_database"`
	LogLevel        string                    `mapstructure:"log_level"`
	LogFile         string                    `mapstructure:"log_file"`
	EscapeCells     bool                      `mapstructure:"escape_cells"`

	// 实际读取的配置文件，未读取文件时为空
	Source string `mapstructure:"-"`
}

// Loader 配置加载器
type Loader struct {
	Fs     afero.Fs
	Setenv func(key, value string) error
	// HomeDir 返回用户主目录，用于查找 ~/.sqlrun/config.json
	HomeDir func() (string, error)
}

// NewLoader 使用操作系统文件系统的加载器
func NewLoader() *Loader {
	return &Loader{
		Fs:      afero.NewOsFs(),
		Setenv:  os.Setenv,
		HomeDir: homedir.Dir,
	}
}

// Load 使用默认加载器加载配置文件
func Load(path string) (*Config, error) {
	return NewLoader().Load(path)
}

// Load 加载配置
//
// path 为空时依次尝试 ./config.json 和 ~/.sqlrun/config.json，都不存在时只使用环境变量。
// 显式指定的文件不存在时返回错误。
func (l *Loader) Load(path string) (*Config, error) {
	if err := l.loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetFs(l.Fs)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "sqlrun.log")
	v.SetDefault("escape_cells", false)
	v.SetDefault("default_database", "")

	source, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	if source != "" {
		v.SetConfigFile(source)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	cfg.Source = source
	if cfg.Databases == nil {
		cfg.Databases = make(map[string]DatabaseConfig)
	}

	if driver, dsn := v.GetString("driver"), v.GetString("dsn"); driver != "" || dsn != "" {
		cfg.Databases[EnvDatabaseName] = DatabaseConfig{
			Name:   EnvDatabaseName,
			Driver: driver,
			DSN:    dsn,
		}
	}

	for name, db := range cfg.Databases {
		if db.Name == "" {
			db.Name = name
		}
		if canonical, ok := NormalizeDriver(db.Driver); ok {
			db.Driver = canonical
		} else {
			db.Driver = strings.ToLower(db.Driver)
		}
		cfg.Databases[name] = db
	}

	if err := utils.UsePassphrase(v.GetString("secret")); err != nil {
		return nil, err
	}
	if err := cfg.decryptPasswords(); err != nil {
		return nil, err
	}

	return &cfg, validate(&cfg)
}

func (l *Loader) resolve(path string) (string, error) {
	if path != "" {
		if _, err := l.Fs.Stat(path); err != nil {
			return "", fmt.Errorf("读取配置文件失败: %w", err)
		}
		return path, nil
	}

	candidates := []string{DefaultConfigFile}
	if l.HomeDir != nil {
		if home, err := l.HomeDir(); err == nil {
			candidates = append(candidates, filepath.Join(home, ".sqlrun", DefaultConfigFile))
		}
	}
	for _, candidate := range candidates {
		if _, err := l.Fs.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", nil
}

// loadDotEnv 读取 .env(不覆盖已有变量) 和 .env.local(覆盖)
func (l *Loader) loadDotEnv() error {
	files := []struct {
		name     string
		override bool
	}{
		{".env", false},
		{".env.local", true},
	}

	for _, f := range files {
		file, err := l.Fs.Open(f.name)
		if err != nil {
			continue
		}
		values, err := godotenv.Parse(file)
		file.Close()
		if err != nil {
			return fmt.Errorf("解析 %s 失败: %w", f.name, err)
		}

		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, exists := os.LookupEnv(k); exists && !f.override {
				continue
			}
			if err := l.Setenv(k, values[k]); err != nil {
				return err
			}
		}
	}
	return nil
}

// UseSecret 读取 .env 后按 SQLRUN_SECRET 设置密码加密密钥，不读取配置文件
func UseSecret() error {
	return NewLoader().UseSecret()
}

// UseSecret 读取 .env 后按 SQLRUN_SECRET 设置密码加密密钥
func (l *Loader) UseSecret() error {
	if err := l.loadDotEnv(); err != nil {
		return err
	}
	return utils.UsePassphrase(os.Getenv(EnvPrefix + "_SECRET"))
}

func (c *Config) decryptPasswords() error {
	for name, db := range c.Databases {
		if !utils.IsEncrypted(db.Password) {
			continue
		}
		decrypted, err := utils.DecryptPassword(db.Password)
		if err != nil {
			return fmt.Errorf("解密数据库 %s 的密码失败: %w", name, err)
		}
		db.Password = decrypted
		c.Databases[name] = db
	}
	return nil
}

// Select 选择本次使用的数据库配置
//
// 顺序: 参数 name, SQLRUN_DATABASE, SQLRUN_DRIVER/SQLRUN_DSN 生成的配置,
// default_database, 唯一的一个配置。
func (c *Config) Select(name string) (DatabaseConfig, error) {
	if name == "" {
		name = os.Getenv(EnvPrefix + "_DATABASE")
	}
	if name == "" {
		if _, ok := c.Databases[EnvDatabaseName]; ok {
			name = EnvDatabaseName
		}
	}
	if name == "" {
		name = c.DefaultDatabase
	}
	if name == "" {
		if len(c.Databases) != 1 {
			return DatabaseConfig{}, fmt.Errorf("请指定数据库名称 (-d)，可选: %s", strings.Join(c.Names(), ", "))
		}
		for n := range c.Databases {
			name = n
		}
	}

	db, ok := c.Databases[name]
	if !ok {
		return DatabaseConfig{}, fmt.Errorf("数据库 %s 未配置", name)
	}
	return db, nil
}

// Names 已配置的数据库名称(排序)
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Databases))
	for name := range c.Databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// validate 验证配置
func validate(cfg *Config) error {
	if len(cfg.Databases) == 0 {
		return fmt.Errorf("至少需要配置一个数据库")
	}

	for _, name := range cfg.Names() {
		db := cfg.Databases[name]
		if db.Driver == "" {
			return fmt.Errorf("数据库 %s 未配置驱动", name)
		}
		if _, ok := NormalizeDriver(db.Driver); !ok {
			return fmt.Errorf("数据库 %s 的驱动 %q 不受支持", name, db.Driver)
		}
		if db.DSN != "" {
			continue
		}
		if db.Driver == "sqlite3" {
			if db.Database == "" {
				return fmt.Errorf("数据库 %s 未配置数据库文件", name)
			}
			continue
		}
		if db.Host == "" {
			return fmt.Errorf("数据库 %s 未配置主机地址", name)
		}
		if db.User == "" {
			return fmt.Errorf("数据库 %s 未配置用户名", name)
		}
	}

	if cfg.DefaultDatabase != "" {
		if _, ok := cfg.Databases[cfg.DefaultDatabase]; !ok {
			return fmt.Errorf("默认数据库 %s 未配置", cfg.DefaultDatabase)
		}
	}

	return nil
}
