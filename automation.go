package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

type Automation struct {
	config   *Config
	browser  *rod.Browser
	page     Page
	launcher *launcher.Launcher
	rand     *rand.Rand
	logger   *slog.Logger
	log      *RunLog
	sleep    func(context.Context, time.Duration) error
	added    []string
}

func NewAutomation(config *Config) *Automation {
	logger := slog.Default()
	return &Automation{
		config: config,
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
		logger: logger,
		log:    NewRunLog(logger),
		sleep:  sleepContext,
	}
}

func (a *Automation) Close() {
	a.logger.Debug(T("cleaning_up"))

	if rp, ok := a.page.(*rodPage); ok && rp.page != nil {
		rp.page.Close()
	}

	if a.browser != nil {
		a.browser.Close()
	}

	if a.launcher != nil {
		a.launcher.Cleanup()
	}

	a.logger.Debug(T("browser_destroyed"))
}

func (a *Automation) debugLog(format string, args ...interface{}) {
	if a.config.DebugMode {
		a.logger.Debug(fmt.Sprintf(format, args...))
	}
}

// randomDelay returns a whole number of milliseconds drawn uniformly from
// [minMs, maxMs], both ends included.
func randomDelay(r *rand.Rand, minMs, maxMs int) time.Duration {
	if maxMs < minMs {
		minMs, maxMs = maxMs, minMs
	}
	ms := r.Intn(maxMs-minMs+1) + minMs
	return time.Duration(ms) * time.Millisecond
}

func (a *Automation) pause(ctx context.Context, w Window) error {
	d := randomDelay(a.rand, w.MinMs, w.MaxMs)
	a.debugLog("pausing %v", d)
	return a.sleep(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run performs one entry run. The returned result is always non-nil; when
// err is non-nil the result carries status "error" and the message.
func (a *Automation) Run(ctx context.Context) (*RunResult, error) {
	status, err := a.run(ctx)
	if err != nil {
		a.log.Add(T("run_error", err.Error()))
		return errorResult(a.log.Lines(), a.added, err), err
	}

	if status == StatusNoItems {
		return noItemsResult(a.log.Lines()), nil
	}
	return okResult(a.log.Lines(), a.added), nil
}

func (a *Automation) run(ctx context.Context) (Status, error) {
	a.log.Add(T("run_starting"))

	if a.page == nil {
		if err := a.setupBrowser(ctx); err != nil {
			return "", err
		}
	}

	if err := a.authenticate(ctx); err != nil {
		return "", err
	}

	if err := a.activateFreeFilter(ctx); err != nil {
		return "", err
	}

	candidates, err := a.discover(ctx)
	if err != nil {
		return "", err
	}

	if err := a.enterAll(ctx, candidates); err != nil {
		return "", err
	}

	if len(a.added) == 0 {
		a.log.Add(T("checkout_none"))
		return StatusNoItems, nil
	}

	if err := a.checkout(ctx); err != nil {
		return "", err
	}
	return StatusOK, nil
}

func (a *Automation) authenticate(ctx context.Context) error {
	cfg := a.config
	sel := cfg.Selectors

	if n, err := loadSession(ctx, a.page, cfg.StorageStatePath); err != nil {
		return err
	} else if n > 0 {
		a.log.Add(T("session_loaded", cfg.StorageStatePath, n))
	}

	if err := a.page.Navigate(ctx, cfg.BaseURL); err != nil {
		return err
	}
	a.log.Add(T("homepage_loaded"))
	if err := a.pause(ctx, cfg.Pacing.Homepage); err != nil {
		return err
	}

	consent, err := a.exists(ctx, sel.CookieAccept)
	if err != nil {
		return fmt.Errorf("probe cookie banner: %w", err)
	}
	if consent {
		if err := a.page.Click(ctx, sel.CookieAccept); err != nil {
			return err
		}
		a.log.Add(T("cookies_accepted"))
		if err := a.pause(ctx, cfg.Pacing.LoginStep); err != nil {
			return err
		}
	} else {
		a.log.Add(T("cookies_absent"))
	}

	loginVisible, err := a.exists(ctx, sel.LoginLink)
	if err != nil {
		return fmt.Errorf("probe login link: %w", err)
	}
	if loginVisible {
		if err := a.login(ctx); err != nil {
			return err
		}
	} else {
		a.log.Add(T("login_skipped"))
	}

	waitCtx, cancel := context.WithTimeout(ctx, cfg.ListingsTimeout)
	defer cancel()
	if err := a.page.WaitFor(waitCtx, Target{CSS: sel.ListingCard}); err != nil {
		return fmt.Errorf("wait for listings: %w", err)
	}
	a.log.Add(T("listings_loaded"))

	if cfg.StorageStatePath != "" {
		n, err := saveSession(ctx, a.page, cfg.StorageStatePath)
		if err != nil {
			a.log.Warn(T("session_save_failed", err))
		} else {
			a.log.Add(T("session_saved", cfg.StorageStatePath, n))
		}
	}

	return nil
}

func (a *Automation) login(ctx context.Context) error {
	cfg := a.config
	sel := cfg.Selectors

	steps := []struct {
		do  func() error
		msg string
	}{
		{func() error { return a.page.Click(ctx, sel.LoginLink) }, "login_opened"},
		{func() error { return a.page.Fill(ctx, sel.UsernameInput, cfg.Username) }, "login_username"},
		{func() error { return a.page.Fill(ctx, sel.PasswordInput, cfg.Password) }, "login_password"},
	}

	for _, step := range steps {
		if err := step.do(); err != nil {
			return err
		}
		a.log.Add(T(step.msg))
		if err := a.pause(ctx, cfg.Pacing.LoginStep); err != nil {
			return err
		}
	}

	if err := a.page.Click(ctx, sel.LoginSubmit); err != nil {
		return err
	}
	a.log.Add(T("login_submitted"))
	return nil
}

func (a *Automation) discover(ctx context.Context) ([]string, error) {
	html, err := a.page.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("read listings page: %w", err)
	}

	listings, err := ExtractFreeListings(html, a.config.Selectors)
	if err != nil {
		return nil, err
	}
	a.log.Add(T("listings_found_before", len(listings)))
	a.log.Add(T("listings_collected", len(listings)))

	candidates := BuildCandidates(listings, a.log.Add)
	a.log.Add(T("listings_candidates", len(candidates)))
	return candidates, nil
}

// alreadyEntered reports whether the open listing shows the held-ticket
// banner or the purchase-limit message.
func (a *Automation) alreadyEntered(ctx context.Context) (bool, error) {
	for _, text := range []string{a.config.HeldTicketText, a.config.LimitReachedText} {
		if text == "" {
			continue
		}
		visible, err := a.textVisible(ctx, text)
		if err != nil {
			return false, fmt.Errorf("probe %q: %w", text, err)
		}
		if visible {
			return true, nil
		}
	}
	return false, nil
}

func (a *Automation) enterAll(ctx context.Context, candidates []string) error {
	cfg := a.config
	sel := cfg.Selectors

	for i, url := range candidates {
		a.log.Add(T("item_visiting", i+1, url))
		if err := a.page.Navigate(ctx, url); err != nil {
			return err
		}
		a.log.Add(T("item_opened", url))
		if err := a.pause(ctx, cfg.Pacing.DetailPage); err != nil {
			return err
		}

		held, err := a.alreadyEntered(ctx)
		if err != nil {
			return err
		}
		if held {
			a.log.Add(T("item_held", url))
			continue
		}
		a.log.Add(T("item_eligible", url))

		hasQuestion, err := a.exists(ctx, sel.QuestionSelect)
		if err != nil {
			return fmt.Errorf("probe question: %w", err)
		}
		if hasQuestion {
			if err := a.page.SelectValue(ctx, sel.QuestionSelect, cfg.AnswerValue); err != nil {
				return err
			}
			a.log.Add(T("item_answer", cfg.AnswerValue))
			if err := a.pause(ctx, cfg.Pacing.Answer); err != nil {
				return err
			}
		}

		if err := a.page.Click(ctx, sel.SubmitEntry); err != nil {
			return err
		}
		a.added = append(a.added, url)
		a.log.Add(T("item_added", url))
		if err := a.pause(ctx, cfg.Pacing.AfterAdd); err != nil {
			return err
		}
	}

	return nil
}

func (a *Automation) checkout(ctx context.Context) error {
	cfg := a.config
	sel := cfg.Selectors

	if err := a.page.Navigate(ctx, cfg.CartURL); err != nil {
		return err
	}
	a.log.Add(T("cart_opened"))
	if err := a.pause(ctx, cfg.Pacing.Cart); err != nil {
		return err
	}

	if err := a.page.Click(ctx, sel.ProceedCheckout); err != nil {
		return err
	}
	a.log.Add(T("checkout_proceeded"))
	if err := a.pause(ctx, cfg.Pacing.Checkout); err != nil {
		return err
	}

	if cfg.TestMode {
		a.log.Add(T("order_skipped_test_mode"))
		return nil
	}

	if err := a.page.Click(ctx, sel.PlaceOrder); err != nil {
		return err
	}
	a.log.Add(T("order_placed"))
	return nil
}

// exists and textVisible bound a single probe by ProbeTimeout.
func (a *Automation) exists(ctx context.Context, t Target) (bool, error) {
	pctx, cancel := a.probeContext(ctx)
	defer cancel()
	return a.page.Exists(pctx, t)
}

func (a *Automation) textVisible(ctx context.Context, text string) (bool, error) {
	pctx, cancel := a.probeContext(ctx)
	defer cancel()
	return a.page.TextVisible(pctx, text)
}

func (a *Automation) probeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.config.ProbeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.config.ProbeTimeout)
}
