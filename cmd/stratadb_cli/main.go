package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/sushant-115/stratadb/api/remote"
	"github.com/sushant-115/stratadb/core/security/encryption/internaltls"
)

const clientTimeout = 10 * time.Second

var rootCmd = &cobra.Command{
	Use:   "stratadb_cli [command args...]",
	Short: "StrataDB shell",
	Long: `Runs a single command given as arguments, or an interactive shell when no
arguments are given. Type 'help' in the shell for the list of commands.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	key := "addr"
	rootCmd.Flags().String(key, "localhost:7070", "address of the StrataDB server")
	key = "env"
	rootCmd.Flags().String(key, "default", "environment to connect to on startup (empty to skip)")
	key = "tls-ca"
	rootCmd.Flags().String(key, "", "CA certificate of the server; enables mutual TLS")
	key = "tls-cert"
	rootCmd.Flags().String(key, "", "client certificate")
	key = "tls-key"
	rootCmd.Flags().String(key, "", "client private key")
	key = "tls-server-name"
	rootCmd.Flags().String(key, "", "name expected in the server certificate")
	key = "history"
	rootCmd.Flags().String(key, filepath.Join(os.TempDir(), ".stratadb_history"), "history file of the interactive shell")
}

func completer() *readline.PrefixCompleter {
	var items []readline.PrefixCompleterInterface
	for _, cmd := range []string{"connect", "open", "create", "use", "put", "set", "dup", "append", "get", "del",
		"names", "rename", "drop", "params", "flush", "begin", "commit", "abort", "help", "exit", "quit"} {
		items = append(items, readline.PcItem(cmd))
	}
	return readline.NewPrefixCompleter(items...)
}

// execute runs one command line with a timeout.
func execute(sh *shell, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), clientTimeout)
	defer cancel()
	return sh.processCommand(ctx, args)
}

func run(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	envName, _ := cmd.Flags().GetString("env")
	history, _ := cmd.Flags().GetString("history")

	var opts []grpc.DialOption
	files := internaltls.Files{}
	files.CA, _ = cmd.Flags().GetString("tls-ca")
	files.Cert, _ = cmd.Flags().GetString("tls-cert")
	files.Key, _ = cmd.Flags().GetString("tls-key")
	if files.Enabled() {
		serverName, _ := cmd.Flags().GetString("tls-server-name")
		tlsConfig, err := internaltls.LoadClientConfig(files, serverName)
		if err != nil {
			return err
		}
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
	}

	client, err := remote.Dial(addr, zap.NewNop(), opts...)
	if err != nil {
		return err
	}
	defer client.Close()

	sh := newShell(client, os.Stdout)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), clientTimeout)
		defer cancel()
		_ = sh.disconnect(ctx)
	}()
	if envName != "" {
		if err := execute(sh, []string{"connect", envName}); err != nil {
			return err
		}
	}

	if len(args) > 0 {
		if err := execute(sh, args); err != nil && !errors.Is(err, errExit) {
			return err
		}
		return nil
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          sh.prompt(),
		HistoryFile:     history,
		AutoComplete:    completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to start shell: %w", err)
	}
	defer rl.Close()

	fmt.Println("StrataDB CLI (interactive mode). Type 'help' for commands, 'exit' or 'quit' to leave.")
	for {
		rl.SetPrompt(sh.prompt())
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			fmt.Println("Exiting StrataDB CLI.")
			return nil
		}
		if err != nil {
			return err
		}

		cmdArgs := strings.Fields(line)
		if len(cmdArgs) == 0 {
			continue
		}
		if err := execute(sh, cmdArgs); err != nil {
			if errors.Is(err, errExit) {
				fmt.Println("Exiting StrataDB CLI.")
				return nil
			}
			fmt.Printf("Error: %v\n", err)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
