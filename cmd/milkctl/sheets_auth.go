package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"milkbook/internal/backend"
	"milkbook/internal/records/google"
)

var (
	authPort    int
	authOut     string
	authTimeout time.Duration
)

var sheetsAuthCmd = &cobra.Command{
	Use:   "sheets-auth",
	Short: "Authorize spreadsheet access with a Google user account",
	Long: `Runs the OAuth consent flow for the client in GOOGLE_OAUTH_CLIENT_FILE
(or GOOGLE_OAUTH_CLIENT_JSON) and saves the token for the sheets backend and
the worker mirror. Add http://localhost:<port>/callback to the client's
authorized redirect URIs first.`,
	RunE: runSheetsAuth,
}

func init() {
	sheetsAuthCmd.Flags().IntVar(&authPort, "port", 8085, "local port for the OAuth redirect")
	sheetsAuthCmd.Flags().StringVar(&authOut, "out", "", "token file (default GOOGLE_OAUTH_TOKEN_FILE or token.json)")
	sheetsAuthCmd.Flags().DurationVar(&authTimeout, "timeout", 5*time.Minute, "how long to wait for consent")
	rootCmd.AddCommand(sheetsAuthCmd)
}

func runSheetsAuth(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	oauthCfg := backend.SheetsFromAppConfig(cfg).OAuth

	out := authOut
	if out == "" {
		out = oauthCfg.TokenFile
	}
	if out == "" {
		out = "token.json"
	}

	redirectURL := fmt.Sprintf("http://localhost:%d/callback", authPort)
	client, err := oauthCfg.Client(redirectURL)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), authTimeout)
	defer cancel()

	state := uuid.NewString()
	code, err := awaitAuthCode(ctx, authPort, state, func() {
		fmt.Fprintf(cmd.OutOrStdout(), "Open this URL to authorize:\n%s\n",
			client.AuthCodeURL(state, oauth2.AccessTypeOffline))
	})
	if err != nil {
		return err
	}

	tok, err := client.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("token exchange: %w", err)
	}
	if err := google.SaveToken(out, tok); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved token to %s\n", out)
	return nil
}

// awaitAuthCode serves the redirect on port until a code for state arrives.
// ready runs once the listener is up.
func awaitAuthCode(ctx context.Context, port int, state string, ready func()) (string, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
	if err != nil {
		return "", fmt.Errorf("listen for redirect: %w", err)
	}

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("error") != "":
			http.Error(w, "OAuth error: "+q.Get("error"), http.StatusBadRequest)
			select {
			case errCh <- fmt.Errorf("authorization denied: %s", q.Get("error")):
			default:
			}
		case q.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
		default:
			fmt.Fprintln(w, "You may close this window and return to the terminal.")
			select {
			case codeCh <- q.Get("code"):
			default:
			}
		}
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	ready()

	select {
	case code := <-codeCh:
		return code, nil
	case err := <-errCh:
		return "", err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", errors.New("authorization timed out")
		}
		return "", ctx.Err()
	}
}
