package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v3"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/quocson95/nedok/pkg/backup"
	"github.com/quocson95/nedok/pkg/s3"
	"github.com/quocson95/nedok/pkg/storage"
	"github.com/quocson95/nedok/pkg/tui"
	"github.com/quocson95/nedok/pkg/workspace"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		slog.Error("Error running program", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	defaultDataDir, err := storage.DefaultDataDir()
	if err != nil {
		defaultDataDir = ".nedok"
	}
	var closeLog func() error

	return &cli.Command{
		Name:      "nedok",
		Usage:     "dual-pane file manager for local and SFTP directories",
		ArgsUsage: "[left-dir] [right-dir]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "data-dir",
				Usage:   "directory for settings, sessions, credentials and logs",
				Value:   defaultDataDir,
				Sources: cli.EnvVars("NEDOK_DATA_DIR"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "debug, info, warn or error",
				Value:   "info",
				Sources: cli.EnvVars("NEDOK_LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "master-password",
				Usage:   "unlocks saved SSH passwords",
				Sources: cli.EnvVars("NEDOK_MASTER_PASSWORD"),
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			c, err := setupLogging(cmd.String("data-dir"), cmd.String("log-level"))
			if err != nil {
				return ctx, err
			}
			closeLog = c
			return ctx, nil
		},
		After: func(ctx context.Context, cmd *cli.Command) error {
			if closeLog != nil {
				return closeLog()
			}
			return nil
		},
		Action: runBrowser,
		Commands: []*cli.Command{
			{
				Name:  "backup",
				Usage: "write an encrypted backup of the data directory",
				Flags: []cli.Flag{
					backupPasswordFlag(),
					&cli.StringFlag{Name: "out", Usage: "write the backup to a local file instead of S3"},
				},
				Action: runBackup,
			},
			{
				Name:  "restore",
				Usage: "restore the data directory from an encrypted backup",
				Flags: []cli.Flag{
					backupPasswordFlag(),
					&cli.StringFlag{Name: "in", Usage: "read the backup from a local file instead of S3"},
				},
				Action: runRestore,
			},
		},
	}
}

func backupPasswordFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "password",
		Usage:    "backup encryption password",
		Sources:  cli.EnvVars("NEDOK_BACKUP_PASSWORD"),
		Required: true,
	}
}

// setupLogging sends slog and log output to a rotating file in dataDir.
// The terminal belongs to the UI.
func setupLogging(dataDir, level string) (func() error, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	rot := &lumberjack.Logger{
		Filename:   filepath.Join(dataDir, "debug.log"),
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
	}
	log.SetOutput(rot)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	slog.SetDefault(slog.New(slog.NewTextHandler(rot, &slog.HandlerOptions{Level: lvl})))
	return rot.Close, nil
}

func runBrowser(ctx context.Context, cmd *cli.Command) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to resolve home directory: %w", err)
	}
	ws, warnings, err := workspace.Open(workspace.Options{
		DataDir:        cmd.String("data-dir"),
		Home:           home,
		MasterPassword: cmd.String("master-password"),
		AgentSocket:    os.Getenv("SSH_AUTH_SOCK"),
	})
	if err != nil {
		return err
	}
	for _, w := range warnings {
		slog.Warn("startup", "warning", w)
	}

	m := tui.New(ctx, ws)
	m.Warn(append(warnings, ws.Restore(ctx, cmd.Args().Slice()...)...)...)

	runErr := tui.Run(ctx, m)
	ws.Manager.DisconnectAll()
	return runErr
}

func s3Client(ctx context.Context, dataDir string) (*s3.Client, error) {
	settings, err := storage.NewSettingsStore(dataDir)
	if err != nil {
		return nil, err
	}
	cfg := settings.Get()
	if cfg.S3Host == "" {
		return nil, errors.New("S3 is not configured: set s3Host, s3AccessKey and s3SecretKey in settings.json or pass --out/--in")
	}
	return s3.NewClient(ctx, cfg.S3Host, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket)
}

func runBackup(ctx context.Context, cmd *cli.Command) error {
	dataDir := cmd.String("data-dir")
	password := cmd.String("password")

	if out := cmd.String("out"); out != "" {
		data, err := backup.Pack(dataDir, password)
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, data, 0o600); err != nil {
			return fmt.Errorf("failed to write backup: %w", err)
		}
		fmt.Fprintf(cmd.Root().Writer, "backup written to %s\n", out)
		return nil
	}

	client, err := s3Client(ctx, dataDir)
	if err != nil {
		return err
	}
	if err := client.EnsureBucket(ctx); err != nil {
		return err
	}
	key, err := client.Backup(ctx, dataDir, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.Root().Writer, "backup uploaded to s3://%s/%s\n", client.Bucket(), key)
	return nil
}

func runRestore(ctx context.Context, cmd *cli.Command) error {
	dataDir := cmd.String("data-dir")
	password := cmd.String("password")

	if in := cmd.String("in"); in != "" {
		data, err := os.ReadFile(in)
		if err != nil {
			return fmt.Errorf("failed to read backup: %w", err)
		}
		n, err := backup.Unpack(data, password, dataDir)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.Root().Writer, "restored %d files from %s\n", n, in)
		return nil
	}

	client, err := s3Client(ctx, dataDir)
	if err != nil {
		return err
	}
	key, err := client.Restore(ctx, dataDir, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.Root().Writer, "restored from s3://%s/%s\n", client.Bucket(), key)
	return nil
}
