package main

import (
	"context"
	"fmt"
	"time"
)

const filterPollInterval = 100 * time.Millisecond

// activation is one way of switching the free filter on.
type activation func(ctx context.Context, p Page, t Target) error

var filterActivations = map[string]activation{
	"click": func(ctx context.Context, p Page, t Target) error {
		return p.Click(ctx, t)
	},
	"dom-click": func(ctx context.Context, p Page, t Target) error {
		return p.EvalOn(ctx, t, `() => this.click()`)
	},
	"dispatch": func(ctx context.Context, p Page, t Target) error {
		return p.EvalOn(ctx, t, `() => {
			this.dispatchEvent(new MouseEvent('click', {bubbles: true, cancelable: true, view: window}));
		}`)
	},
}

// activateFreeFilter tries each configured activation in order until the
// active marker shows up. Failing to activate is not an error; the listing
// scan then runs over the unfiltered page.
func (a *Automation) activateFreeFilter(ctx context.Context) error {
	sel := a.config.Selectors
	if sel.FreeFilter.CSS == "" {
		return nil
	}

	present, err := a.exists(ctx, sel.FreeFilter)
	if err != nil {
		return fmt.Errorf("probe free filter: %w", err)
	}
	if !present {
		a.log.Add(T("filter_absent"))
		return nil
	}

	for _, name := range a.config.FilterStrategies {
		activate, ok := filterActivations[name]
		if !ok {
			a.debugLog("unknown filter strategy %q", name)
			continue
		}

		if err := activate(ctx, a.page, sel.FreeFilter); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.debugLog("filter strategy %s: %v", name, err)
		} else {
			active, err := a.waitFilterActive(ctx)
			if err != nil {
				return err
			}
			if active {
				a.log.Add(T("filter_activated", name))
				return a.settleListings(ctx)
			}
		}

		a.log.Warn(T("filter_attempt_failed", name))
	}

	a.log.Warn(T("filter_not_activated"))
	return nil
}

// settleListings gives the filtered grid time to re-render before the page
// is read. A grid that never comes back leaves an empty scan, not an error.
func (a *Automation) settleListings(ctx context.Context) error {
	if err := a.pause(ctx, a.config.Pacing.FilterSettle); err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, a.config.ListingsTimeout)
	defer cancel()
	if err := a.page.WaitFor(waitCtx, Target{CSS: a.config.Selectors.ListingCard}); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.log.Warn(T("filter_listings_missing"))
	}
	return nil
}

// waitFilterActive polls for the active marker for at most FilterWait. It
// only returns an error when the run context itself is done.
func (a *Automation) waitFilterActive(ctx context.Context) (bool, error) {
	marker := a.config.Selectors.FreeFilterActive
	if marker.CSS == "" {
		return true, nil
	}

	deadline := time.Now().Add(a.config.FilterWait)
	for {
		active, err := a.exists(ctx, marker)
		if err != nil && ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err == nil && active {
			return true, nil
		}
		if !time.Now().Before(deadline) {
			return false, nil
		}
		if err := sleepContext(ctx, filterPollInterval); err != nil {
			return false, err
		}
	}
}
