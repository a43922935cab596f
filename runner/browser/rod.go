// Package browser implements runner.Browser with go-rod.
//
// Each session launches its own browser process on the profile's user data
// dir with --profile-directory set, opens the Bing home page and keeps one
// tab for the whole run.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/warp/points-engine/points"
	"github.com/warp/points-engine/runner"
)

const (
	HomeURL        = "https://www.bing.com"
	searchSelector = `[name="q"]`
	navTimeout     = 30 * time.Second
	inputTimeout   = 10 * time.Second
)

// PointSelectors are tried in order; the first visible element whose text
// contains a digit wins.
var PointSelectors = []string{
	"#id_rc",
	"span[id='id_rc']",
	".points-container",
	"a#id_rh div",
	"div[id='id_rc']",
}

// Config configures the launcher.
type Config struct {
	Bin      string // browser executable; empty = rod's default lookup
	Headless bool
	Logger   *zap.Logger
}

// Rod is a runner.Browser.
type Rod struct {
	cfg Config
}

var _ runner.Browser = (*Rod)(nil)

func New(cfg Config) *Rod {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Rod{cfg: cfg}
}

// Open launches a browser on the profile and loads the home page.
func (r *Rod) Open(ctx context.Context, profile runner.Profile) (runner.Session, error) {
	log := r.cfg.Logger.With(zap.String("identity", string(profile.Identity)))

	l := launcher.New().Context(ctx).Headless(r.cfg.Headless)
	if r.cfg.Bin != "" {
		l = l.Bin(r.cfg.Bin)
	}
	if profile.UserDataDir != "" {
		l = l.UserDataDir(profile.UserDataDir)
	}
	l = l.Set("profile-directory", string(profile.Identity)).
		Set("no-first-run").
		Set("no-default-browser-check")

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("browser: launch %s: %w", profile.Identity, err)
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("browser: connect %s: %w", profile.Identity, err)
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		b.Close()
		l.Kill()
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	s := &session{browser: b, page: page, launcher: l, log: log}
	if err := s.navigate(ctx, HomeURL); err != nil {
		s.Close()
		return nil, err
	}
	log.Info("browser session opened", zap.String("control_url", u))
	return s, nil
}

type session struct {
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher
	log      *zap.Logger
}

func (s *session) navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, navTimeout)
	defer cancel()

	if err := s.page.Context(navCtx).Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := s.page.Context(navCtx).WaitLoad(); err != nil {
		s.log.Warn("browser: wait load timeout", zap.String("url", url), zap.Error(err))
	}
	return nil
}

// Search returns to the home page when the search box is missing, types the
// query and submits it.
func (s *session) Search(ctx context.Context, query string) error {
	el, err := s.searchBox(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.navigate(ctx, HomeURL); err != nil {
			return err
		}
		if el, err = s.searchBox(ctx); err != nil {
			return fmt.Errorf("browser: search box: %w", err)
		}
	}

	navCtx, cancel := context.WithTimeout(ctx, navTimeout)
	defer cancel()
	page := s.page.Context(navCtx)

	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("browser: select search text: %w", err)
	}
	if err := el.Input(query); err != nil {
		return fmt.Errorf("browser: type query: %w", err)
	}

	wait := page.WaitNavigation(proto.PageLifecycleEventNameLoad)
	if err := el.Type(input.Enter); err != nil {
		return fmt.Errorf("browser: submit query: %w", err)
	}
	wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(navCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("browser: results page did not load within %s", navTimeout)
	}
	return nil
}

func (s *session) searchBox(ctx context.Context) (*rod.Element, error) {
	return s.page.Context(ctx).Timeout(inputTimeout).Element(searchSelector)
}

// ReadPoints never waits for elements to appear.
func (s *session) ReadPoints(ctx context.Context) (string, bool) {
	page := s.page.Context(ctx)
	for _, sel := range PointSelectors {
		els, err := page.Elements(sel)
		if err != nil {
			continue
		}
		for _, el := range els {
			visible, err := el.Visible()
			if err != nil || !visible {
				continue
			}
			text, err := el.Text()
			if err != nil {
				continue
			}
			if text = strings.TrimSpace(text); points.HasDigit(text) {
				return text, true
			}
		}
	}
	return "", false
}

// Close shuts the browser down. The user data dir is left in place.
func (s *session) Close() error {
	var errs []error
	if s.page != nil {
		if err := s.page.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.launcher != nil {
		s.launcher.Kill()
	}
	return errors.Join(errs...)
}
