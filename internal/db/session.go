package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/iyuangang/sqlrun/internal/config"
	"github.com/iyuangang/sqlrun/internal/utils"
	"github.com/iyuangang/sqlrun/pkg/models"
)

// Provider 连接提供者，方言集合由调用方注入
type Provider struct {
	dialects Dialects
	logger   *utils.Logger
}

// NewProvider 创建连接提供者
func NewProvider(dialects Dialects, logger *utils.Logger) *Provider {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Provider{dialects: dialects, logger: logger}
}

// Open 打开一个独占的数据库会话，失败时返回 ConnectivityError 并释放已打开的资源
func (p *Provider) Open(ctx context.Context, cfg *config.DatabaseConfig) (*Session, error) {
	dialect, err := p.dialects.Lookup(cfg.Driver)
	if err != nil {
		return nil, models.NewConnectivityError(err)
	}

	dsn, err := dialect.DSN(cfg)
	if err != nil {
		return nil, models.NewConnectivityError(err)
	}

	connector, err := dialect.NewConnector(dsn)
	if err != nil {
		return nil, models.NewConnectivityError(fmt.Errorf("解析连接参数失败: %w", err))
	}

	start := time.Now()
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		p.logger.Error("连接数据库失败", "database", cfg.Name, "driver", dialect.Name, "error", err)
		return nil, models.NewConnectivityError(err)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		db.Close()
		p.logger.Error("测试数据库连接失败", "database", cfg.Name, "driver", dialect.Name, "error", err)
		return nil, models.NewConnectivityError(err)
	}

	p.logger.Debug("数据库连接成功",
		"database", cfg.Name,
		"driver", dialect.Name,
		"duration", time.Since(start))

	return &Session{
		name:    cfg.Name,
		db:      db,
		conn:    conn,
		dialect: dialect,
		counter: NewCounter(dialect),
		logger:  p.logger,
	}, nil
}

// Session 单个数据库会话，整个调用期间独占一个连接
type Session struct {
	name    string
	db      *sql.DB
	conn    *sql.Conn
	dialect Dialect
	counter *Counter
	logger  *utils.Logger
	closed  bool
}

// Name 配置中的数据库名称
func (s *Session) Name() string {
	return s.name
}

// Dialect 会话使用的方言
func (s *Session) Dialect() Dialect {
	return s.dialect
}

// Raw 在会话的驱动连接上执行 fn，fn 返回后不得再使用该连接
func (s *Session) Raw(ctx context.Context, fn func(dc driver.Conn) error) error {
	if s.closed {
		return fmt.Errorf("会话已关闭")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.conn.Raw(func(dc any) error {
		conn, ok := dc.(driver.Conn)
		if !ok {
			return fmt.Errorf("驱动连接类型错误: %T", dc)
		}
		return fn(conn)
	})
}

// Affected 返回刚执行完的无结果集语句的影响行数，须在 Raw 的 fn 中调用
func (s *Session) Affected(ctx context.Context, dc driver.Conn, rows driver.Rows) (int64, error) {
	return s.counter.Affected(ctx, dc, rows)
}

// Ping 检测连接
func (s *Session) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// Close 关闭连接和连接池，重复调用无副作用
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.conn.Close()
	if cerr := s.db.Close(); err == nil {
		err = cerr
	}
	s.logger.Debug("数据库会话已关闭", "database", s.name)
	return err
}
