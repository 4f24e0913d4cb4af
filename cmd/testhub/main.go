package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/testhub/testhub-backend/internal/logger"
	"github.com/testhub/testhub-backend/internal/model"
	"github.com/testhub/testhub-backend/internal/service"
	"golang.org/x/term"
)

type options struct {
	server    string
	tokenFile string
	logLevel  string
}

func main() {
	_ = godotenv.Load()

	opts := &options{}
	root := &cobra.Command{
		Use:           "testhub",
		Short:         "Terminal client for taking TestHub exams",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.server, "server", envOr("TESTHUB_SERVER", "http://localhost:8080"), "API base URL")
	root.PersistentFlags().StringVar(&opts.tokenFile, "token-file", defaultTokenFile(), "where the session token is stored")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", envOr("LOG_LEVEL", "warn"), "log level written to stderr")

	root.AddCommand(loginCmd(opts), logoutCmd(opts), examsCmd(opts), takeCmd(opts))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (o *options) logger() zerolog.Logger {
	return logger.SetupTo(os.Stderr, o.logLevel, "pretty")
}

// client returns an API client carrying the stored token.
func (o *options) client() (*apiClient, error) {
	raw, err := os.ReadFile(o.tokenFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, errors.New("not logged in, run `testhub login` first")
	}
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	return newAPIClient(o.server, strings.TrimSpace(string(raw))), nil
}

func loginCmd(opts *options) *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and store the session token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if username == "" {
				fmt.Print("Username: ")
				line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
				username = strings.TrimSpace(line)
			}
			fmt.Print("Password: ")
			pw, err := term.ReadPassword(int(syscall.Stdin))
			fmt.Println()
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}

			var out model.LoginResponse
			api := newAPIClient(opts.server, "")
			req := model.LoginRequest{Username: username, Password: string(pw)}
			if err := api.do(cmd.Context(), http.MethodPost, "/api/v1/auth/login", req, &out); err != nil {
				return err
			}
			if out.User.Role != model.RoleStudent {
				fmt.Fprintf(os.Stderr, "warning: %s is a %s account; exams can only be taken by students\n", out.User.Username, out.User.Role)
			}

			if err := os.MkdirAll(filepath.Dir(opts.tokenFile), 0o700); err != nil {
				return err
			}
			if err := os.WriteFile(opts.tokenFile, []byte(out.Token), 0o600); err != nil {
				return fmt.Errorf("store token: %w", err)
			}
			fmt.Printf("Logged in as %s (%s)\n", out.User.Name, out.User.Username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	return cmd
}

func logoutCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget the stored token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, err := opts.client()
			if err != nil {
				return err
			}
			if err := logout(cmd.Context(), api, opts.tokenFile, opts.logger()); err != nil {
				return err
			}
			fmt.Println("Logged out")
			return nil
		},
	}
}

// logout ends the server session and forgets the token. The token file is
// removed even when the server call fails.
func logout(ctx context.Context, api *apiClient, tokenFile string, log zerolog.Logger) error {
	if err := api.do(ctx, http.MethodPost, "/api/v1/auth/logout", nil, nil); err != nil {
		log.Warn().Err(err).Msg("Server logout failed")
	}
	if err := os.Remove(tokenFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func examsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "exams",
		Short: "List the exams in your lobby",
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, err := opts.client()
			if err != nil {
				return err
			}
			var lobby struct {
				Exams []service.LobbyExam `json:"exams"`
			}
			if err := api.do(cmd.Context(), http.MethodGet, "/api/v1/student/exams", nil, &lobby); err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tMINUTES\tSCORE")
			for _, e := range lobby.Exams {
				score := "-"
				if e.TotalScore != nil {
					score = fmt.Sprintf("%.2f", *e.TotalScore)
					if e.Rating != nil {
						score += " " + string(*e.Rating)
					}
				}
				title := e.Title
				if e.IsPractice {
					title += " (practice)"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", e.ID, title, e.LobbyStatus, e.DurationMinutes, score)
			}
			return w.Flush()
		},
	}
}

func takeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "take <exam-id>",
		Short: "Start or resume an exam attempt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			examID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid exam id %q", args[0])
			}
			api, err := opts.client()
			if err != nil {
				return err
			}
			var me struct {
				User model.User `json:"user"`
			}
			if err := api.do(cmd.Context(), http.MethodGet, "/api/v1/auth/me", nil, &me); err != nil {
				return err
			}
			return takeExam(cmd.Context(), api, opts.logger(), examID, me.User.ID, os.Stdin, os.Stdout)
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultTokenFile() string {
	if v := os.Getenv("TESTHUB_TOKEN_FILE"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".testhub-token"
	}
	return filepath.Join(home, ".testhub", "token")
}
