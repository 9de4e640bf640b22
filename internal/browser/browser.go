// Package browser wraps headless Chrome (chromedp) as scoped per-site sessions.
package browser

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/config"
)

// Handle is the live-page surface used by discovery, captcha and submission.
type Handle interface {
	Navigate(ctx context.Context, url string) error
	HTML(ctx context.Context) (string, error)
	Location(ctx context.Context) (string, error)
	Eval(ctx context.Context, script string, res any) error
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	Visible(ctx context.Context, selector string) (bool, error)
	PressEscape(ctx context.Context) error
}

// Options configures the launcher.
type Options struct {
	Headless    bool
	ExecPath    string
	ProfileRoot string
	UserAgent   string
	Settle      time.Duration
}

// OptionsFromConfig builds launcher options from the app config.
func OptionsFromConfig(b config.BrowserConfig, userAgent string) Options {
	return Options{
		Headless:    b.Headless,
		ExecPath:    b.ExecPath,
		ProfileRoot: b.ProfileRoot,
		UserAgent:   userAgent,
		Settle:      time.Duration(b.SettleMs) * time.Millisecond,
	}
}

// Launcher starts isolated browser sessions.
type Launcher struct {
	opts Options
}

// NewLauncher creates a Launcher.
func NewLauncher(opts Options) *Launcher {
	if opts.ProfileRoot == "" {
		opts.ProfileRoot = os.TempDir()
	}
	if opts.Settle <= 0 {
		opts.Settle = 2 * time.Second
	}
	return &Launcher{opts: opts}
}

// Settle returns the configured post-navigation settle delay.
func (l *Launcher) Settle() time.Duration { return l.opts.Settle }

func (l *Launcher) allocatorOptions(profileDir string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserDataDir(profileDir),
		chromedp.WindowSize(1366, 900),
	)
	if l.opts.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.opts.UserAgent))
	}
	if l.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.opts.ExecPath))
	}
	return opts
}

// Acquire starts a browser with a fresh profile directory. The caller must
// defer Release; cancelling ctx also tears the browser down.
func (l *Launcher) Acquire(ctx context.Context) (*Session, error) {
	profileDir := filepath.Join(l.opts.ProfileRoot, "outreach-"+uuid.NewString())
	if err := os.MkdirAll(profileDir, 0o700); err != nil {
		return nil, eris.Wrap(err, "browser: create profile dir")
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, l.allocatorOptions(profileDir)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		ctx:        tabCtx,
		cancel:     func() { tabCancel(); allocCancel() },
		profileDir: profileDir,
		settle:     l.opts.Settle,
	}

	// Run with no actions starts the browser process.
	if err := chromedp.Run(tabCtx); err != nil {
		s.Release()
		return nil, eris.Wrap(err, "browser: start")
	}
	zap.L().Debug("browser: session acquired", zap.String("profile", profileDir))
	return s, nil
}

// Render loads url in a throwaway session and returns the settled DOM.
func (l *Launcher) Render(ctx context.Context, url string) (string, string, error) {
	s, err := l.Acquire(ctx)
	if err != nil {
		return "", "", err
	}
	defer s.Release()

	if err := s.Navigate(ctx, url); err != nil {
		return "", "", err
	}
	html, err := s.HTML(ctx)
	if err != nil {
		return "", "", err
	}
	final, err := s.Location(ctx)
	if err != nil {
		final = url
	}
	return html, final, nil
}
