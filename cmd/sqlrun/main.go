package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/iyuangang/sqlrun/internal/config"
	"github.com/iyuangang/sqlrun/internal/core"
	"github.com/iyuangang/sqlrun/internal/db"
	"github.com/iyuangang/sqlrun/internal/utils"
	"github.com/iyuangang/sqlrun/pkg/models"
)

var (
	// 版本信息，通过编译时注入
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"

	// 命令行参数
	configFile string
	dbName     string
	verbose    bool
	escape     bool
	progress   bool
	osExit     = os.Exit
)

// environment 一次调用所需的配置、数据库描述和日志
type environment struct {
	cfg    *config.Config
	db     config.DatabaseConfig
	logger *utils.Logger
}

// setupLogger 初始化日志记录器，相对路径的日志文件放在配置文件所在目录
func setupLogger(cfg *config.Config) (*utils.Logger, error) {
	logFile := cfg.LogFile
	if !filepath.IsAbs(logFile) && cfg.Source != "" {
		logFile = filepath.Join(filepath.Dir(cfg.Source), logFile)
	}
	return utils.NewLogger(logFile, cfg.LogLevel, verbose)
}

// loadEnvironment 加载配置并选择数据库
func loadEnvironment() (*environment, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}

	dbConfig, err := cfg.Select(dbName)
	if err != nil {
		return nil, err
	}

	logger, err := setupLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	return &environment{cfg: cfg, db: dbConfig, logger: logger}, nil
}

// opener 把连接提供者绑定到选中的数据库
func (e *environment) opener() core.OpenFunc {
	provider := db.NewProvider(db.DefaultDialects(), e.logger)
	return func(ctx context.Context) (core.Session, error) {
		s, err := provider.Open(ctx, &e.db)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// formatter 根据 --escape 和 escape_cells 选择单元格格式
func (e *environment) formatter() core.Formatter {
	if escape || e.cfg.EscapeCells {
		return core.EscapeFormatter{Base: core.TextFormatter{}}
	}
	return core.TextFormatter{}
}

// isTerminal w 是否为终端
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// runStatement 执行一条 SQL 并把结果写到 cmd 的标准输出
func runStatement(cmd *cobra.Command, sql string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer env.logger.Close()

	env.logger.Info("启动 sqlrun",
		"version", Version,
		"config", env.cfg.Source,
		"database", env.db.Name,
		"driver", env.db.Driver)

	var bar *utils.Progress
	if progress && isTerminal(cmd.ErrOrStderr()) {
		bar = utils.NewProgress(cmd.ErrOrStderr(), "输出")
	}

	runner := core.NewRunner(
		env.opener(),
		core.NewExecutor(env.formatter(), env.logger),
		core.NewRenderer(cmd.OutOrStdout(), bar),
		env.logger,
	)
	if err := runner.Run(context.Background(), sql); err != nil {
		return err
	}

	if verbose {
		fmt.Fprintln(cmd.ErrOrStderr(), runner.Metrics().String())
	}
	return nil
}

// readStatement 取得 SQL 文本，参数为 "-" 时从标准输入读取
func readStatement(cmd *cobra.Command, arg string) (string, error) {
	if arg != "-" {
		return arg, nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("读取标准输入失败: %w", err)
	}
	sql := strings.TrimSpace(string(data))
	if sql == "" {
		return "", fmt.Errorf("标准输入中没有SQL语句")
	}
	return sql, nil
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sqlrun [flags] <sql>",
		Short: "执行一条 SQL 语句并输出结果",
		Long: fmt.Sprintf(`执行一条 SQL 语句并输出结果。

结果集以制表符分隔输出表头和数据行，其他语句输出 "Rows affected: N"。
参数为 "-" 时从标准输入读取语句。

语句以 "-" 开头(例如 "-- 注释" 开头的语句)或恰好是子命令名(如 tables、version)时，
会被当作选项或子命令解析。这类语句请放在 "--" 之后，或通过 "-" 从标准输入传入:

  sqlrun -- "-- note
  SELECT 1"
  echo "tables" | sqlrun -

版本: %s
提交: %s
构建时间: %s`, Version, Commit, BuildTime),
		Version:       Version,
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			sql, err := readStatement(cmd, args[0])
			if err != nil {
				return err
			}
			return runStatement(cmd, sql)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径 (默认 ./config.json 或 ~/.sqlrun/config.json)")
	rootCmd.PersistentFlags().StringVarP(&dbName, "database", "d", "", "数据库名称")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "显示详细信息")
	rootCmd.Flags().BoolVar(&escape, "escape", false, "转义单元格中的反斜杠、制表符和换行")
	rootCmd.Flags().BoolVar(&progress, "progress", false, "在终端上显示已输出行数")

	rootCmd.AddCommand(
		newTablesCmd(),
		newDescribeCmd(),
		newTestConnCmd(),
		newEncryptCmd(),
		newDecryptCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// printError 输出错误信息，终端上 "Error:" 显示为红色，--verbose 时附带堆栈
func printError(w io.Writer, err error) {
	label := color.New(color.FgRed, color.Bold)
	if isTerminal(w) {
		label.EnableColor()
	} else {
		label.DisableColor()
	}
	fmt.Fprintf(w, "%s %s\n", label.Sprint("Error:"), err.Error())
	if verbose && models.KindOf(err) != "" {
		fmt.Fprintf(w, "%+v\n", err)
	}
}

// execute 运行命令行，返回的错误已输出到 stderr
func execute(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.Execute(); err != nil {
		printError(stderr, err)
		return err
	}
	return nil
}

func main() {
	if err := execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		osExit(1)
	}
}
