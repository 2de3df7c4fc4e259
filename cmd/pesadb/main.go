// Package main is the pesadb command line: an interactive REPL, a
// one-shot query runner, and catalog listing, all backed by the same
// engine the library exposes.
package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"pesadb/internal/audit"
	"pesadb/internal/config"
	"pesadb/internal/connection"
	"pesadb/internal/engine"
	"pesadb/internal/sql/executor"
	"pesadb/internal/sql/parser"
)

type rootFlags struct {
	configPath string
	dataDir    string
	database   string
	url        string
}

func main() {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "pesadb",
		Short: "File-backed SQL database engine",
	}
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "pesadb.toml", "Path to the settings file")
	rootCmd.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "Data directory (overrides the settings file)")
	rootCmd.PersistentFlags().StringVarP(&flags.database, "database", "d", "", "Database to select on startup")
	rootCmd.PersistentFlags().StringVar(&flags.url, "url", "", "Connection URL (pesadb://host/database)")

	rootCmd.AddCommand(replCmd(flags))
	rootCmd.AddCommand(execCmd(flags))
	rootCmd.AddCommand(databasesCmd(flags))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openExecutor builds the executor from the URL or the settings file,
// selecting the requested database when one is named.
func openExecutor(flags *rootFlags) (*executor.Executor, *engine.Catalog, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if flags.url != "" {
		conn, err := connection.Connect(flags.url, logger)
		if err != nil {
			return nil, nil, err
		}
		exec := executor.New(conn.Catalog, audit.NewLog(conn.Catalog.DataDir(), logger), logger)
		if err := exec.Use(conn.Info.Database); err != nil {
			return nil, nil, err
		}
		return exec, conn.Catalog, nil
	}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, nil, err
	}
	if flags.dataDir != "" {
		cfg.DataDir = flags.dataDir
	}
	if flags.database != "" {
		cfg.Database = flags.database
	}

	catalog, err := engine.OpenCatalog(cfg.DataDir, logger)
	if err != nil {
		return nil, nil, err
	}

	var auditLog *audit.Log
	if cfg.Audit {
		auditLog = audit.NewLog(cfg.DataDir, logger)
	}

	exec := executor.New(catalog, auditLog, logger)
	if cfg.Database != "" {
		if err := exec.Use(cfg.Database); err != nil {
			return nil, nil, err
		}
	}
	return exec, catalog, nil
}

func replCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Interactive query shell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			exec, catalog, err := openExecutor(flags)
			if err != nil {
				return err
			}
			defer catalog.Close()
			return runRepl(cmd, exec)
		},
	}
}

func execCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <query>",
		Short: "Run a single query and print its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exec, catalog, err := openExecutor(flags)
			if err != nil {
				return err
			}
			defer catalog.Close()
			return runQuery(cmd, exec, args[0])
		},
	}
}

func databasesCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "databases",
		Short: "List the databases in the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, catalog, err := openExecutor(flags)
			if err != nil {
				return err
			}
			defer catalog.Close()
			for _, name := range catalog.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func runQuery(cmd *cobra.Command, exec *executor.Executor, query string) error {
	command, err := parser.ParseQuery(query)
	if err != nil {
		return err
	}
	res, err := exec.Execute(command)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), renderResult(res))
	return nil
}

// runRepl loops on stdin until exit/quit or EOF. Errors are printed and
// the loop keeps going.
func runRepl(cmd *cobra.Command, exec *executor.Executor) error {
	out := cmd.OutOrStdout()
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if interactive {
		fmt.Fprintln(out, "pesadb interactive shell. Type 'exit' to leave.")
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		if interactive {
			prompt := "pesadb"
			if exec.Current() != "" {
				prompt += ":" + exec.Current()
			}
			fmt.Fprintf(out, "%s> ", prompt)
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
			break
		}
		if err := runQuery(cmd, exec, line); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	}
	return scanner.Err()
}
