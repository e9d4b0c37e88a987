// Command hpxcli talks to a server from the command line.
//
//	hpxcli info
//	hpxcli auth --user admin --password secret
//	hpxcli send '[{"fname":"get_version"}]'
//
// Settings come from flags, HPX_* environment variables and an optional
// config file (hpxcli.yaml in the working directory or ~/.config/hpx).
package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Zereker/hpx"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type config struct {
	Name     string        `mapstructure:"name"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Session  string        `mapstructure:"session"`
	TLS      bool          `mapstructure:"tls"`
	Insecure bool          `mapstructure:"insecure"`
	Timeout  time.Duration `mapstructure:"timeout"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	Debug    bool          `mapstructure:"debug"`
}

func main() {
	v := viper.New()
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "hpxcli",
		Short:         "Command-line client for the hpx protocol",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(v, cmd, configPath)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "path to config file")
	flags.String("name", "hpxcli", "client name sent in every message")
	flags.String("host", "localhost", "server host")
	flags.Int("port", 7007, "server port")
	flags.String("session", "", "resume an existing session")
	flags.Bool("tls", false, "connect with TLS")
	flags.Bool("insecure", false, "skip TLS certificate verification")
	flags.Duration("timeout", 10*time.Second, "socket timeout, 0 disables it")
	flags.String("user", "", "user to authenticate as")
	flags.String("password", "", "password for --user")
	flags.Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(
		infoCmd(v),
		authCmd(v),
		sendCmd(v),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		if code := hpx.CodeOf(err); code != 0 {
			fmt.Fprintf(os.Stderr, "  kind: %s (%d)\n", code, int(code))
		}
		os.Exit(1)
	}
}

func loadConfig(v *viper.Viper, cmd *cobra.Command, path string) error {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	v.SetEnvPrefix("hpx")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("hpxcli")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/hpx")
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return errors.Wrap(err, "failed to read config")
		}
	}
	return nil
}

func decodeConfig(v *viper.Viper) (config, error) {
	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return config{}, errors.Wrap(err, "failed to unmarshal config")
	}
	return cfg, nil
}

func newLogger(cfg config) *slog.Logger {
	level := slog.LevelWarn
	if cfg.Debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// dial builds a client from cfg and connects it.
func dial(ctx context.Context, v *viper.Viper) (*hpx.Client, config, error) {
	cfg, err := decodeConfig(v)
	if err != nil {
		return nil, cfg, err
	}

	opts := []hpx.Option{
		hpx.HostOption(cfg.Host),
		hpx.PortOption(cfg.Port),
		hpx.SessionOption(cfg.Session),
		hpx.TimeoutOption(cfg.Timeout),
		hpx.LoggerOption(newLogger(cfg)),
	}
	if cfg.TLS {
		opts = append(opts, hpx.TLSOption(&tls.Config{
			ServerName:         cfg.Host,
			InsecureSkipVerify: cfg.Insecure,
		}))
	}

	client, err := hpx.New(cfg.Name, opts...)
	if err != nil {
		return nil, cfg, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, cfg, err
	}
	return client, cfg, nil
}

// authenticate runs the handshake unless the session was resumed.
func authenticate(ctx context.Context, client *hpx.Client, cfg config) error {
	if client.Accepted() {
		return nil
	}

	var opts []hpx.HandshakeOption
	if cfg.User != "" {
		opts = append(opts, hpx.CredentialsOption(cfg.User, cfg.Password))
	}
	ok, err := client.RequestHandshake(ctx, opts...)
	if err != nil {
		return err
	}
	if !ok && !client.GuestAllowed() {
		return errors.Errorf("server did not accept %s", cfg.Name)
	}
	return nil
}

func infoCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print the server version and guest policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, _, err := dial(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer client.Close()

			fmt.Printf("address:       %s\n", client.Addr())
			fmt.Printf("version:       %s\n", client.Version())
			fmt.Printf("guest allowed: %t\n", client.GuestAllowed())
			fmt.Printf("state:         %s\n", client.State())
			return nil
		},
	}
}

func authCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authenticate and print the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, cfg, err := dial(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := authenticate(cmd.Context(), client, cfg); err != nil {
				return err
			}
			fmt.Println(client.Session())
			return nil
		},
	}
}

func sendCmd(v *viper.Viper) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "send <json>",
		Short: "Send a JSON payload and print the response",
		Long: `Send wraps the JSON argument in an envelope carrying the client name and
session, sends it and prints the response data. With --raw the argument is
sent as a complete envelope and the whole response is printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload any
			if err := json.Unmarshal([]byte(args[0]), &payload); err != nil {
				return errors.Wrap(err, "argument is not valid JSON")
			}

			client, cfg, err := dial(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := authenticate(cmd.Context(), client, cfg); err != nil {
				return err
			}

			var sendOpts []hpx.SendOption
			if !client.Accepted() {
				sendOpts = append(sendOpts, hpx.NoAuthCheckOption())
			}

			var resp *hpx.Envelope
			if raw {
				resp, err = client.SendRaw(cmd.Context(), payload, sendOpts...)
			} else {
				resp, err = client.Send(cmd.Context(), payload, sendOpts...)
			}
			if err != nil {
				return err
			}

			out := any(resp.Data)
			if raw {
				out = resp
			}
			body, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(body))
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "send the argument as a complete envelope")
	return cmd
}
