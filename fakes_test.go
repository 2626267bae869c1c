package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod/lib/proto"
)

// fakePage serves canned HTML per url and answers element queries with
// goquery. Actions are recorded in order.
type fakePage struct {
	pages   map[string]string
	current string
	html    string

	navErr  map[string]error
	onClick map[string]func(f *fakePage)
	onEval  map[string]func(f *fakePage, js string)

	actions []string
	cookies []*proto.NetworkCookie
	set     []*proto.NetworkCookie
}

func newFakePage(pages map[string]string) *fakePage {
	return &fakePage{
		pages:   pages,
		navErr:  map[string]error{},
		onClick: map[string]func(f *fakePage){},
		onEval:  map[string]func(f *fakePage, js string){},
	}
}

func (f *fakePage) find(t Target) (*goquery.Selection, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(f.html))
	if err != nil {
		return nil, err
	}
	s := doc.Find(t.CSS)
	if t.Text != "" {
		s = s.FilterFunction(func(_ int, s *goquery.Selection) bool {
			return contains(s.Text(), t.Text)
		})
	}
	return s, nil
}

func (f *fakePage) mustFind(t Target) error {
	s, err := f.find(t)
	if err != nil {
		return err
	}
	if s.Length() == 0 {
		return fmt.Errorf("find %s: %w", t, context.DeadlineExceeded)
	}
	return nil
}

func (f *fakePage) Navigate(ctx context.Context, url string) error {
	f.actions = append(f.actions, "navigate "+url)
	if err := f.navErr[url]; err != nil {
		return err
	}
	html, ok := f.pages[url]
	if !ok {
		return fmt.Errorf("navigate %s: no such page", url)
	}
	f.current, f.html = url, html
	return nil
}

func (f *fakePage) HTML(ctx context.Context) (string, error) {
	return f.html, nil
}

func (f *fakePage) Exists(ctx context.Context, t Target) (bool, error) {
	s, err := f.find(t)
	if err != nil {
		return false, err
	}
	if s.Length() == 0 {
		return false, nil
	}
	_, hidden := s.First().Attr("hidden")
	return !hidden, nil
}

func (f *fakePage) TextVisible(ctx context.Context, text string) (bool, error) {
	s, err := f.find(Target{CSS: "body"})
	if err != nil {
		return false, err
	}
	return contains(s.Text(), text), nil
}

func (f *fakePage) WaitFor(ctx context.Context, t Target) error {
	return f.mustFind(t)
}

func (f *fakePage) Click(ctx context.Context, t Target) error {
	f.actions = append(f.actions, "click "+t.String())
	if err := f.mustFind(t); err != nil {
		return err
	}
	if hook := f.onClick[t.String()]; hook != nil {
		hook(f)
	}
	return nil
}

func (f *fakePage) Fill(ctx context.Context, t Target, value string) error {
	f.actions = append(f.actions, "fill "+t.String()+"="+value)
	return f.mustFind(t)
}

func (f *fakePage) SelectValue(ctx context.Context, t Target, value string) error {
	s, err := f.find(t)
	if err != nil {
		return err
	}
	if s.Length() == 0 {
		return fmt.Errorf("find %s: %w", t, context.DeadlineExceeded)
	}

	var options []selectOption
	s.First().Find("option").Each(func(_ int, o *goquery.Selection) {
		v, ok := o.Attr("value")
		if !ok {
			v = o.Text()
		}
		options = append(options, selectOption{Value: v, Label: strings.TrimSpace(o.Text())})
	})
	chosen, ok := chooseOption(options, value)
	if !ok {
		return fmt.Errorf("select %s on %s: no matching option", value, t)
	}
	f.actions = append(f.actions, "select "+t.String()+"="+chosen)
	return nil
}

func (f *fakePage) EvalOn(ctx context.Context, t Target, js string) error {
	f.actions = append(f.actions, "eval "+t.String())
	if err := f.mustFind(t); err != nil {
		return err
	}
	if hook := f.onEval[t.String()]; hook != nil {
		hook(f, js)
	}
	return nil
}

func (f *fakePage) Cookies(ctx context.Context) ([]*proto.NetworkCookie, error) {
	return f.cookies, nil
}

func (f *fakePage) SetCookies(ctx context.Context, cookies []*proto.NetworkCookie) error {
	f.set = append(f.set, cookies...)
	return nil
}

func (f *fakePage) did(action string) bool {
	for _, a := range f.actions {
		if a == action {
			return true
		}
	}
	return false
}

func (f *fakePage) navigatedTo(url string) bool {
	return f.did("navigate " + url)
}

// Fixtures

const (
	testBase = "https://www.revcomps.com/"
	testCart = "https://www.revcomps.com/cart/"
)

func listingCard(title, url, price string) string {
	return fmt.Sprintf(`<div class="qode-pli">
  <div class="price_image">%s</div>
  <h4 class="qode-pli-title">  %s  </h4>
  <a class="qode-pli-link" href="%s">View</a>
</div>`, price, title, url)
}

func homepage(loggedIn bool, cards ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><button class="cookie">Accept All</button>`)
	if !loggedIn {
		b.WriteString(`<a href="/login">Log In</a>
<form><input id="username"><input id="password" type="password">
<button name="login" type="submit">Log In</button></form>`)
	}
	b.WriteString(`<div class="listings">`)
	for _, c := range cards {
		b.WriteString(c)
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

func detailPage(held bool) string {
	banner := ""
	if held {
		banner = `<div class="notice">YOU HAVE 1 TICKET ON THIS PRIZE</div>`
	}
	return `<html><body>` + banner + `
<select id="question_select"><option value="paris">Paris</option><option value="london">London</option></select>
<button id="submitorder">Enter now</button></body></html>`
}

const limitPage = `<html><body><p>You cannot purchase anymore tickets for this competition.</p>
<button id="submitorder">Enter now</button></body></html>`

const cartPage = `<html><body><a href="/checkout/" class="checkout-button">Proceed to checkout</a></body></html>`

const checkoutPage = `<html><body><button id="place_order">Place order</button></body></html>`

// newTestAutomation wires a to page with instant pacing and a discarded log
// sink. The result file lives in a temp dir.
func newTestAutomation(t *testing.T, page *fakePage) *Automation {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Username = "user@example.com"
	cfg.Password = "secret"
	cfg.ResultPath = filepath.Join(t.TempDir(), "result.json")
	cfg.FilterWait = 20 * time.Millisecond

	a := NewAutomation(cfg)
	a.page = page
	a.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	a.log = NewRunLog(a.logger)
	a.sleep = func(context.Context, time.Duration) error { return nil }

	if _, ok := page.pages[testCart]; !ok {
		page.pages[testCart] = cartPage
	}
	page.onClick[cfg.Selectors.ProceedCheckout.String()] = func(f *fakePage) {
		f.html = checkoutPage
	}
	return a
}

func countPrefix(lines []string, prefix string) int {
	n := 0
	for _, l := range lines {
		if strings.HasPrefix(l, prefix) {
			n++
		}
	}
	return n
}
