package main

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"runtime"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Page is the subset of browser behaviour the entry run needs. Every call is
// bound to ctx; calls that look for an element wait until it appears or ctx
// is done, except Exists and TextVisible which answer immediately.
type Page interface {
	Navigate(ctx context.Context, url string) error
	HTML(ctx context.Context) (string, error)

	Exists(ctx context.Context, t Target) (bool, error)
	TextVisible(ctx context.Context, text string) (bool, error)
	WaitFor(ctx context.Context, t Target) error

	Click(ctx context.Context, t Target) error
	Fill(ctx context.Context, t Target, value string) error
	SelectValue(ctx context.Context, t Target, value string) error
	EvalOn(ctx context.Context, t Target, js string) error

	Cookies(ctx context.Context) ([]*proto.NetworkCookie, error)
	SetCookies(ctx context.Context, cookies []*proto.NetworkCookie) error
}

type rodPage struct {
	browser *rod.Browser
	page    *rod.Page
}

func (r *rodPage) Navigate(ctx context.Context, url string) error {
	p := r.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("load %s: %w", url, err)
	}
	return nil
}

func (r *rodPage) HTML(ctx context.Context) (string, error) {
	return r.page.Context(ctx).HTML()
}

func (r *rodPage) Exists(ctx context.Context, t Target) (bool, error) {
	p := r.page.Context(ctx)

	var (
		has bool
		el  *rod.Element
		err error
	)
	if t.Text == "" {
		has, el, err = p.Has(t.CSS)
	} else {
		has, el, err = p.HasR(t.CSS, textPattern(t.Text))
	}
	if err != nil || !has {
		return false, err
	}

	return el.Visible()
}

// TextVisible matches against innerText, which leaves out hidden nodes.
func (r *rodPage) TextVisible(ctx context.Context, text string) (bool, error) {
	res, err := r.page.Context(ctx).Eval(`(t) => {
		const body = document.body ? document.body.innerText : '';
		return body.toLowerCase().includes(t.toLowerCase());
	}`, text)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

func (r *rodPage) WaitFor(ctx context.Context, t Target) error {
	_, err := r.element(ctx, t)
	return err
}

func (r *rodPage) Click(ctx context.Context, t Target) error {
	el, err := r.element(ctx, t)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %s: %w", t, err)
	}
	return nil
}

func (r *rodPage) Fill(ctx context.Context, t Target, value string) error {
	el, err := r.element(ctx, t)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("clear %s: %w", t, err)
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("fill %s: %w", t, err)
	}
	return nil
}

func (r *rodPage) SelectValue(ctx context.Context, t Target, value string) error {
	el, err := r.element(ctx, t)
	if err != nil {
		return err
	}

	res, err := el.Eval(`() => Array.from(this.options || []).map(o => ({value: o.value, label: o.text.trim()}))`)
	if err != nil {
		return fmt.Errorf("read options of %s: %w", t, err)
	}
	var options []selectOption
	if err := json.Unmarshal([]byte(res.Value.JSON("", "")), &options); err != nil {
		return fmt.Errorf("decode options of %s: %w", t, err)
	}

	chosen, ok := chooseOption(options, value)
	if !ok {
		return fmt.Errorf("select %s on %s: no matching option", value, t)
	}
	option := fmt.Sprintf("[value=%q]", chosen)
	if err := el.Select([]string{option}, true, rod.SelectorTypeCSSSector); err != nil {
		return fmt.Errorf("select %s on %s: %w", value, t, err)
	}
	return nil
}

type selectOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// chooseOption picks the option whose value is want, falling back to a
// case-insensitive match on value and then on the visible label. It returns
// the chosen option's value.
func chooseOption(options []selectOption, want string) (string, bool) {
	for _, o := range options {
		if o.Value == want {
			return o.Value, true
		}
	}
	for _, o := range options {
		if strings.EqualFold(o.Value, want) {
			return o.Value, true
		}
	}
	for _, o := range options {
		if strings.EqualFold(strings.TrimSpace(o.Label), want) {
			return o.Value, true
		}
	}
	return "", false
}

func (r *rodPage) EvalOn(ctx context.Context, t Target, js string) error {
	el, err := r.element(ctx, t)
	if err != nil {
		return err
	}
	if _, err := el.Eval(js); err != nil {
		return fmt.Errorf("eval on %s: %w", t, err)
	}
	return nil
}

func (r *rodPage) Cookies(ctx context.Context) ([]*proto.NetworkCookie, error) {
	return r.browser.Context(ctx).GetCookies()
}

func (r *rodPage) SetCookies(ctx context.Context, cookies []*proto.NetworkCookie) error {
	return r.browser.Context(ctx).SetCookies(proto.CookiesToParams(cookies))
}

func (r *rodPage) element(ctx context.Context, t Target) (*rod.Element, error) {
	p := r.page.Context(ctx)

	var (
		el  *rod.Element
		err error
	)
	if t.Text == "" {
		el, err = p.Element(t.CSS)
	} else {
		el, err = p.ElementR(t.CSS, textPattern(t.Text))
	}
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", t, err)
	}
	return el, nil
}

// textPattern builds a case-insensitive JS regex literal matching text.
func textPattern(text string) string {
	quoted := strings.ReplaceAll(regexp.QuoteMeta(text), "/", `\/`)
	return "/" + quoted + "/i"
}

func (a *Automation) setupBrowser(ctx context.Context) error {
	a.logger.Info(T("browser_launching"))

	// Leakless deadlocks on Windows: https://github.com/go-rod/rod/issues/853
	useLeakless := a.config.Leakless && runtime.GOOS != "windows"

	a.launcher = launcher.New().
		Context(ctx).
		Leakless(useLeakless).
		Headless(a.config.Headless)

	if a.config.BrowserPath != "" {
		a.launcher = a.launcher.Bin(a.config.BrowserPath)
		a.debugLog("%s", T("browser_chrome_path_set", a.config.BrowserPath))
	} else if chromePath, ok := launcher.LookPath(); ok {
		a.launcher = a.launcher.Bin(chromePath)
		a.logger.Info(T("browser_using_system_chrome"))
		a.debugLog("%s", T("browser_chrome_path_set", chromePath))
	} else {
		a.logger.Info(T("browser_chrome_not_found"))
	}

	url, err := a.launcher.Launch()
	if err != nil {
		return fmt.Errorf(T("error_browser_setup_failed"), err)
	}

	a.browser = rod.New().ControlURL(url).Context(ctx)
	if err := a.browser.Connect(); err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}

	var page *rod.Page
	if a.config.UseStealth {
		page, err = stealth.Page(a.browser)
		a.debugLog("%s", T("browser_stealth_enabled"))
	} else {
		page, err = a.browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return fmt.Errorf("failed to create page: %w", err)
	}

	a.page = &rodPage{browser: a.browser, page: page}
	a.logger.Info(T("browser_launched"))
	return nil
}
