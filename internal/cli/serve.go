package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"gpuwatch/internal/collector"
	"gpuwatch/internal/config"
	"gpuwatch/internal/logger"
	"gpuwatch/internal/server"
	"gpuwatch/internal/status"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the collector and the local dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
	registerServeFlags(cmd)
	return cmd
}

func registerServeFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("init", false, "write a starter gpuwatch.yaml and exit")
	cmd.Flags().Bool("ask-pass", false, "prompt for the SSH password instead of reading it from config")
	cmd.Flags().String("listen", "", "listen address override, host:port")
}

func runServe(cmd *cobra.Command) error {
	if initFlag, _ := cmd.Flags().GetBool("init"); initFlag {
		path := configFlag
		if path == "" {
			path = config.ConfigFileName
		}
		if err := config.WriteStarter(path); err != nil {
			return err
		}
		fmt.Printf("Wrote %s — fill in your server details and run 'gpuwatch serve'\n", path)
		return nil
	}

	cfg, err := config.LoadOrDefault(configFlag)
	if err != nil {
		return err
	}

	if askPass, _ := cmd.Flags().GetBool("ask-pass"); askPass {
		password, err := promptPassword(cfg)
		if err != nil {
			return err
		}
		cfg.ServerPassword = password
	}

	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		host, port, ok := strings.Cut(listen, ":")
		if !ok {
			return fmt.Errorf("invalid --listen %q, want host:port", listen)
		}
		cfg.ListenHost = host
		if _, err := fmt.Sscanf(port, "%d", &cfg.ListenPort); err != nil {
			return fmt.Errorf("invalid --listen port %q", port)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pub := status.NewPublisher()
	coll := collector.New(cfg, nil, pub, logger.NewEnvLogger("[collector]"))
	go coll.Run(ctx)

	srv := server.New(pub, logger.NewEnvLogger("[http]"))
	if err := srv.Serve(ctx, cfg.ListenAddr()); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func promptPassword(cfg *config.Config) (string, error) {
	fmt.Fprintf(os.Stderr, "Password for %s@%s: ", cfg.ServerUser, cfg.ServerHost)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(password), nil
}
