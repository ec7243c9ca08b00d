package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iyuangang/sqlrun/internal/config"
	"github.com/iyuangang/sqlrun/internal/db"
	"github.com/iyuangang/sqlrun/internal/utils"
)

// catalogStatement 取得选中数据库方言的目录查询
func catalogStatement(build func(d db.Dialect) (string, error)) (string, error) {
	env, err := loadEnvironment()
	if err != nil {
		return "", err
	}
	defer env.logger.Close()

	dialect, err := db.DefaultDialects().Lookup(env.db.Driver)
	if err != nil {
		return "", err
	}
	return build(dialect)
}

func newTablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "列出当前数据库中的表",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sql, err := catalogStatement(func(d db.Dialect) (string, error) {
				if d.TablesQuery == "" {
					return "", fmt.Errorf("驱动 %s 不支持列出表", d.Name)
				}
				return d.TablesQuery, nil
			})
			if err != nil {
				return err
			}
			return runStatement(cmd, sql)
		},
	}
}

func newDescribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe <table>",
		Short: "显示表的列定义",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sql, err := catalogStatement(func(d db.Dialect) (string, error) {
				if d.DescribeQuery == nil {
					return "", fmt.Errorf("驱动 %s 不支持查看表结构", d.Name)
				}
				return d.DescribeQuery(args[0]), nil
			})
			if err != nil {
				return err
			}
			return runStatement(cmd, sql)
		},
	}
}

func newTestConnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test-connection",
		Short: "测试数据库连接",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment()
			if err != nil {
				return err
			}
			defer env.logger.Close()

			ctx := context.Background()
			start := time.Now()
			session, err := db.NewProvider(db.DefaultDialects(), env.logger).Open(ctx, &env.db)
			if err != nil {
				return err
			}
			defer session.Close()
			connectTime := time.Since(start)

			start = time.Now()
			if err := session.Ping(ctx); err != nil {
				return fmt.Errorf("连接测试失败: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "成功连接到数据库 %s (%s)\n", session.Name(), session.Dialect().Name)
			fmt.Fprintf(out, "连接时间: %s\n", utils.FormatDuration(connectTime))
			fmt.Fprintf(out, "响应时间: %s\n", utils.FormatDuration(time.Since(start)))
			return session.Close()
		},
	}
}

func newEncryptCmd() *cobra.Command {
	var password string
	encryptCmd := &cobra.Command{
		Use:   "encrypt",
		Short: "加密数据库密码",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				return fmt.Errorf("请提供密码")
			}
			if err := config.UseSecret(); err != nil {
				return err
			}
			encrypted, err := utils.EncryptPassword(password)
			if err != nil {
				return fmt.Errorf("加密失败: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), encrypted)
			return nil
		},
	}
	encryptCmd.Flags().StringVarP(&password, "password", "p", "", "要加密的密码")
	return encryptCmd
}

func newDecryptCmd() *cobra.Command {
	var password string
	decryptCmd := &cobra.Command{
		Use:   "decrypt",
		Short: "解密数据库密码",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				return fmt.Errorf("请提供加密密码")
			}
			if err := config.UseSecret(); err != nil {
				return err
			}
			decrypted, err := utils.DecryptPassword(password)
			if err != nil {
				return fmt.Errorf("解密失败: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), decrypted)
			return nil
		},
	}
	decryptCmd.Flags().StringVarP(&password, "password", "p", "", "要解密的密码")
	return decryptCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "显示版本信息",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "sqlrun %s\n", Version)
			fmt.Fprintf(out, "构建时间: %s\n", BuildTime)
			fmt.Fprintf(out, "Git提交: %s\n", Commit)
		},
	}
}
