package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/pagepulse/pagepulse/internal/session"
)

// runLoginFlow executes a scripted form login in a throwaway incognito
// context and merges the credentials it produced (cookies plus web storage)
// back into the session context. The flow is consumed either way so a
// failing login can never be retried against the audited page.
func (o *Orchestrator) runLoginFlow(ctx context.Context, browser *rod.Browser, sess *session.Context) error {
	flow := sess.Login
	sess.Login = nil

	incognito, err := browser.Incognito()
	if err != nil {
		return fmt.Errorf("login context: %w", err)
	}
	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return fmt.Errorf("login page: %w", err)
	}
	defer func() { _ = page.Close() }()
	page = page.Context(ctx)

	if err := page.Timeout(o.cfg.NavigationTimeout()).Navigate(flow.URL); err != nil {
		return fmt.Errorf("navigate login page: %w", err)
	}
	if err := page.Timeout(o.cfg.NavigationTimeout()).WaitLoad(); err != nil {
		return fmt.Errorf("load login page: %w", err)
	}

	if err := o.fill(page, flow.UsernameSelector, flow.Username); err != nil {
		return err
	}
	if err := o.fill(page, flow.PasswordSelector, flow.Password); err != nil {
		return err
	}

	submit, err := page.Timeout(o.cfg.SettleTimeout()).Element(flow.SubmitSelector)
	if err != nil {
		return fmt.Errorf("submit control %q: %w", flow.SubmitSelector, err)
	}
	if err := submit.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("submit login form: %w", err)
	}

	// Let the post-submit redirect and any session writes settle.
	wait := page.Timeout(o.cfg.SettleTimeout()).WaitRequestIdle(300*time.Millisecond, nil, nil, nil)
	wait()

	harvested, err := proto.NetworkGetCookies{}.Call(page)
	if err != nil {
		return fmt.Errorf("collect login cookies: %w", err)
	}
	for _, c := range harvested.Cookies {
		sess.Cookies = append(sess.Cookies, session.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
		})
	}
	mergeStorage(&sess.Storage.Local, snapshotStorage(page, "localStorage"))
	mergeStorage(&sess.Storage.Session, snapshotStorage(page, "sessionStorage"))
	return nil
}

func (o *Orchestrator) fill(page *rod.Page, selector, text string) error {
	el, err := page.Timeout(o.cfg.SettleTimeout()).Element(selector)
	if err != nil {
		return fmt.Errorf("form field %q: %w", selector, err)
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("fill %q: %w", selector, err)
	}
	return nil
}

func snapshotStorage(page *rod.Page, store string) map[string]string {
	res, err := page.Evaluate(&rod.EvalOptions{
		JS: fmt.Sprintf(`() => {
		try {
			const out = {};
			for (const key of Object.keys(%s)) {
				out[key] = %s.getItem(key);
			}
			return out;
		} catch (e) {
			return {};
		}
	}`, store, store),
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil || res == nil {
		return nil
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil
	}
	var out map[string]string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func mergeStorage(dst *map[string]string, src map[string]string) {
	if len(src) == 0 {
		return
	}
	if *dst == nil {
		*dst = make(map[string]string, len(src))
	}
	for k, v := range src {
		(*dst)[k] = v
	}
}
