package db

import (
	"context"
	"database/sql/driver"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/godror/godror"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/iyuangang/sqlrun/internal/config"
)

// Dialect 一种数据库驱动及其相关约定
type Dialect struct {
	Name string

	// NewConnector 由 DSN 创建驱动连接器，驱动由此显式传入而不是通过全局注册表查找
	NewConnector func(dsn string) (driver.Connector, error)
	// BuildDSN 由配置字段拼装 DSN
	BuildDSN func(cfg *config.DatabaseConfig) (string, error)

	// CountQuery 获取上一条语句影响行数的查询，为空表示没有此类查询
	CountQuery string
	// CountTotal 为 true 时 CountQuery 的第二列是连接上的累计变更数，
	// 累计值没有变化说明语句没有修改任何行
	CountTotal bool

	TablesQuery   string
	DescribeQuery func(table string) string
}

// Dialects 按驱动名索引的方言集合
type Dialects map[string]Dialect

// DefaultDialects 内置的全部方言
func DefaultDialects() Dialects {
	return Dialects{
		"mysql":    MySQL(),
		"postgres": Postgres(),
		"sqlite3":  SQLite(),
		"oracle":   Oracle(),
	}
}

// Lookup 按名称或别名查找方言
func (d Dialects) Lookup(name string) (Dialect, error) {
	if canonical, ok := config.NormalizeDriver(name); ok {
		name = canonical
	} else {
		name = strings.ToLower(strings.TrimSpace(name))
	}
	dialect, ok := d[name]
	if !ok {
		return Dialect{}, fmt.Errorf("不支持的数据库驱动: %q", name)
	}
	return dialect, nil
}

// DSN 返回配置中的 DSN，未配置时由字段拼装
func (d Dialect) DSN(cfg *config.DatabaseConfig) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if d.BuildDSN == nil {
		return "", fmt.Errorf("驱动 %s 需要配置 dsn", d.Name)
	}
	return d.BuildDSN(cfg)
}

// MySQL go-sql-driver/mysql
func MySQL() Dialect {
	return Dialect{
		Name: "mysql",
		NewConnector: func(dsn string) (driver.Connector, error) {
			cfg, err := mysql.ParseDSN(dsn)
			if err != nil {
				return nil, err
			}
			return mysql.NewConnector(cfg)
		},
		BuildDSN: func(dc *config.DatabaseConfig) (string, error) {
			cfg := mysql.NewConfig()
			cfg.User = dc.User
			cfg.Passwd = dc.Password
			cfg.Net = "tcp"
			cfg.Addr = withDefaultPort(dc, 3306)
			cfg.DBName = dc.Database
			cfg.Timeout = dc.ConnectTimeout
			if len(dc.Options) > 0 {
				cfg.Params = make(map[string]string, len(dc.Options))
				for k, v := range dc.Options {
					cfg.Params[k] = v
				}
			}
			return cfg.FormatDSN(), nil
		},
		CountQuery:  "SELECT ROW_COUNT()",
		TablesQuery: "SELECT TABLE_NAME FROM information_schema.TABLES WHERE TABLE_SCHEMA = DATABASE() ORDER BY TABLE_NAME",
		DescribeQuery: func(table string) string {
			return "SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE, COLUMN_KEY, COLUMN_DEFAULT, EXTRA " +
				"FROM information_schema.COLUMNS " +
				"WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = " + quoteLiteral(table) + " " +
				"ORDER BY ORDINAL_POSITION"
		},
	}
}

// Postgres lib/pq，影响行数来自驱动返回的命令结果
func Postgres() Dialect {
	return Dialect{
		Name: "postgres",
		NewConnector: func(dsn string) (driver.Connector, error) {
			return pq.NewConnector(dsn)
		},
		BuildDSN: func(dc *config.DatabaseConfig) (string, error) {
			u := url.URL{
				Scheme: "postgres",
				Host:   withDefaultPort(dc, 5432),
				Path:   "/" + dc.Database,
			}
			if dc.Password != "" {
				u.User = url.UserPassword(dc.User, dc.Password)
			} else {
				u.User = url.User(dc.User)
			}
			q := url.Values{}
			for k, v := range dc.Options {
				q.Set(k, v)
			}
			if dc.ConnectTimeout > 0 {
				q.Set("connect_timeout", strconv.Itoa(int(dc.ConnectTimeout.Seconds())))
			}
			u.RawQuery = q.Encode()
			return u.String(), nil
		},
		TablesQuery: "SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() ORDER BY table_name",
		DescribeQuery: func(table string) string {
			return "SELECT column_name, data_type, is_nullable, column_default " +
				"FROM information_schema.columns " +
				"WHERE table_schema = current_schema() AND table_name = " + quoteLiteral(table) + " " +
				"ORDER BY ordinal_position"
		},
	}
}

// SQLite mattn/go-sqlite3
func SQLite() Dialect {
	return Dialect{
		Name: "sqlite3",
		NewConnector: func(dsn string) (driver.Connector, error) {
			return &dsnConnector{dsn: dsn, driver: &sqlite3.SQLiteDriver{}}, nil
		},
		BuildDSN: func(dc *config.DatabaseConfig) (string, error) {
			if len(dc.Options) == 0 {
				return dc.Database, nil
			}
			q := url.Values{}
			for k, v := range dc.Options {
				q.Set(k, v)
			}
			return dc.Database + "?" + q.Encode(), nil
		},
		CountQuery:  "SELECT changes(), total_changes()",
		CountTotal:  true,
		TablesQuery: `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite\_%' ESCAPE '\' ORDER BY name`,
		DescribeQuery: func(table string) string {
			return `SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(` + quoteLiteral(table) + `) ORDER BY cid`
		},
	}
}

// Oracle godror，驱动不提供影响行数，报告 models.NoCount
func Oracle() Dialect {
	return Dialect{
		Name: "oracle",
		NewConnector: func(dsn string) (driver.Connector, error) {
			params, err := godror.ParseDSN(dsn)
			if err != nil {
				return nil, err
			}
			return godror.NewConnector(params), nil
		},
		BuildDSN: func(dc *config.DatabaseConfig) (string, error) {
			var sb strings.Builder
			fmt.Fprintf(&sb, `user="%s" password="%s" connectString="%s/%s"`,
				dc.User,
				dc.Password,
				withDefaultPort(dc, 1521),
				dc.Database,
			)
			keys := make([]string, 0, len(dc.Options))
			for k := range dc.Options {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&sb, ` %s="%s"`, k, dc.Options[k])
			}
			return sb.String(), nil
		},
		TablesQuery: "SELECT TABLE_NAME FROM USER_TABLES ORDER BY TABLE_NAME",
		DescribeQuery: func(table string) string {
			return "SELECT COLUMN_NAME, DATA_TYPE, DATA_LENGTH, NULLABLE, DATA_DEFAULT " +
				"FROM USER_TAB_COLUMNS WHERE TABLE_NAME = " + quoteLiteral(table) + " ORDER BY COLUMN_ID"
		},
	}
}

func withDefaultPort(dc *config.DatabaseConfig, port int) string {
	if dc.Port != 0 {
		return dc.Address()
	}
	return fmt.Sprintf("%s:%d", dc.Host, port)
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// dsnConnector 为只实现 driver.Driver 的驱动提供 driver.Connector
type dsnConnector struct {
	dsn    string
	driver driver.Driver
}

func (c *dsnConnector) Connect(_ context.Context) (driver.Conn, error) {
	return c.driver.Open(c.dsn)
}

func (c *dsnConnector) Driver() driver.Driver {
	return c.driver
}
