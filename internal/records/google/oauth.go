package google

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	gsheet "google.golang.org/api/sheets/v4"
)

// OAuthConfig authenticates as a user instead of a service account. The
// client is the OAuth client downloaded from the Cloud console; the token
// is written by "milkctl sheets-auth". JSON values win over files.
type OAuthConfig struct {
	ClientJSON string
	ClientFile string
	TokenJSON  string
	TokenFile  string
}

// Enabled reports whether both a client and a token are configured.
func (o OAuthConfig) Enabled() bool {
	hasClient := strings.TrimSpace(o.ClientJSON) != "" || strings.TrimSpace(o.ClientFile) != ""
	hasToken := strings.TrimSpace(o.TokenJSON) != "" || strings.TrimSpace(o.TokenFile) != ""
	return hasClient && hasToken
}

// Client returns the OAuth client configuration for the spreadsheet scope.
// A non-empty redirectURL replaces the one in the client file.
func (o OAuthConfig) Client(redirectURL string) (*oauth2.Config, error) {
	b, err := readInlineOrFile(o.ClientJSON, o.ClientFile)
	if err != nil {
		return nil, fmt.Errorf("oauth client: %w", err)
	}
	cfg, err := googleoauth.ConfigFromJSON(b, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	if redirectURL != "" {
		cfg.RedirectURL = redirectURL
	}
	return cfg, nil
}

// TokenSource returns a refreshing source for the stored user token.
func (o OAuthConfig) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	cfg, err := o.Client("")
	if err != nil {
		return nil, err
	}
	b, err := readInlineOrFile(o.TokenJSON, o.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("oauth token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("oauth token: %w", err)
	}
	return cfg.TokenSource(ctx, &tok), nil
}

// SaveToken writes tok to path, readable by the owner only.
func SaveToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

func readInlineOrFile(inline, path string) ([]byte, error) {
	if strings.TrimSpace(inline) != "" {
		return []byte(inline), nil
	}
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("neither inline JSON nor file set")
	}
	return os.ReadFile(path)
}
