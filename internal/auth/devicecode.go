package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/cache"
	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/public"
)

// DefaultAuthority is used when the config leaves msal.authority empty.
const DefaultAuthority = "https://login.microsoftonline.com/common"

// DeviceCodeAuth obtains backend tokens from Azure AD.
// Token only uses cached credentials; Login runs the interactive device code flow.
type DeviceCodeAuth struct {
	client public.Client
	scopes []string

	mu          sync.Mutex
	accessToken string
	expiresOn   time.Time
}

// NewDeviceCodeAuth creates a new device code auth client.
func NewDeviceCodeAuth(clientID, authority string, scopes []string) (*DeviceCodeAuth, error) {
	if clientID == "" {
		return nil, errors.New("msal client_id is required")
	}
	if authority == "" {
		authority = DefaultAuthority
	}

	opts := []public.Option{public.WithAuthority(authority)}

	cacheFile, err := getCacheFilePath()
	if err != nil {
		slog.Warn("could not determine token cache path", "error", err)
	} else {
		opts = append(opts, public.WithCache(&tokenCacheAccessor{path: cacheFile}))
	}

	client, err := public.New(clientID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create MSAL client: %w", err)
	}

	return &DeviceCodeAuth{
		client: client,
		scopes: scopes,
	}, nil
}

// Token returns a cached access token, refreshing it silently if needed.
// Without a cached account it returns ErrNoToken.
func (d *DeviceCodeAuth) Token(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.accessToken != "" && time.Now().Add(5*time.Minute).Before(d.expiresOn) {
		return d.accessToken, nil
	}

	accounts, err := d.client.Accounts(ctx)
	if err != nil {
		slog.Debug("could not get cached accounts", "error", err)
	}

	for _, acct := range accounts {
		result, err := d.client.AcquireTokenSilent(ctx, d.scopes, public.WithSilentAccount(acct))
		if err != nil {
			slog.Debug("silent auth failed", "account", acct.PreferredUsername, "error", err)
			continue
		}
		d.accessToken = result.AccessToken
		d.expiresOn = result.ExpiresOn
		return d.accessToken, nil
	}

	return "", fmt.Errorf("%w: run 'bookwatch login'", ErrNoToken)
}

// Login runs the device code flow, writing instructions to w.
func (d *DeviceCodeAuth) Login(ctx context.Context, w io.Writer) error {
	dc, err := d.client.AcquireTokenByDeviceCode(ctx, d.scopes)
	if err != nil {
		return fmt.Errorf("start device code flow: %w", err)
	}

	fmt.Fprintf(w, "\n"+
		"To sign in, use a web browser to open the page %s\n"+
		"and enter the code %s to authenticate.\n\n",
		dc.Result.VerificationURL,
		dc.Result.UserCode)

	result, err := dc.AuthenticationResult(ctx)
	if err != nil {
		return fmt.Errorf("device code auth: %w", err)
	}

	d.mu.Lock()
	d.accessToken = result.AccessToken
	d.expiresOn = result.ExpiresOn
	d.mu.Unlock()

	slog.Info("signed in", "account", result.Account.PreferredUsername)
	return nil
}

// tokenCacheAccessor implements cache.ExportReplace for MSAL token caching.
type tokenCacheAccessor struct {
	path string
}

func (t *tokenCacheAccessor) Replace(ctx context.Context, cache cache.Unmarshaler, hints cache.ReplaceHints) error {
	data, err := os.ReadFile(t.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return cache.Unmarshal(data)
}

func (t *tokenCacheAccessor) Export(ctx context.Context, cache cache.Marshaler, hints cache.ExportHints) error {
	data, err := cache.Marshal()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(t.path), 0700); err != nil {
		return err
	}
	return os.WriteFile(t.path, data, 0600)
}

func getCacheFilePath() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "bookwatch", "msal_token_cache.json"), nil
}
