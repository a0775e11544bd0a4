package attach

import (
	"github.com/lotas/tabgroupsync/internal/applog"
	"github.com/lotas/tabgroupsync/internal/syncservice"
	"github.com/lotas/tabgroupsync/internal/types"
)

// ListenerState says whether a tab has a sync-started navigation in flight.
type ListenerState int

const (
	StateIdle ListenerState = iota
	StateAwaitingSyncNav
)

func (s ListenerState) String() string {
	if s == StateAwaitingSyncNav {
		return "awaiting_sync_nav"
	}
	return "idle"
}

// Navigator starts navigations in live tabs.
type Navigator interface {
	Navigate(tab types.LocalTabID, url string) (int64, error)
}

// TabListener mirrors one live tab into its saved tab. Navigations it
// starts on behalf of sync are not written back.
type TabListener struct {
	svc      TabUpdater
	nav      Navigator
	contents WebContents
	group    types.LocalGroupID

	state      ListenerState
	pendingNav int64
	// restricted is set after a sync-started navigation lands and cleared by
	// the next user-triggered main-frame navigation.
	restricted bool
}

// NewTabListener starts following contents, which belongs to group.
func NewTabListener(svc TabUpdater, nav Navigator, group types.LocalGroupID, contents WebContents) *TabListener {
	return &TabListener{svc: svc, nav: nav, contents: contents, group: group}
}

func (l *TabListener) TabID() types.LocalTabID { return l.contents.TabID() }
func (l *TabListener) Contents() WebContents { return l.contents }
func (l *TabListener) State() ListenerState { return l.state }
func (l *TabListener) IsRestricted() bool { return l.restricted }
func (l *TabListener) Group() types.LocalGroupID { return l.group }

// NavigateToURL loads a URL that arrived from sync. It does nothing when the
// URL is invalid or the tab's last redirect chain already reached it.
func (l *TabListener) NavigateToURL(url string) {
	if !IsValidURL(url) {
		applog.Warn("attach.navigate.invalid", "tab", l.TabID(), "url", url)
		return
	}
	for _, hop := range l.contents.RedirectChain() {
		if hop == url {
			return
		}
	}
	id, err := l.nav.Navigate(l.TabID(), url)
	if err != nil {
		applog.Error("attach.navigate", err, "tab", l.TabID(), "url", url)
		return
	}
	// A newer sync navigation supersedes an older pending one.
	l.state = StateAwaitingSyncNav
	l.pendingNav = id
}

// DidFinishNavigation handles a finished navigation in the tab.
func (l *TabListener) DidFinishNavigation(nav Navigation) {
	if IsUserTriggeredMainFrameNavigation(nav) {
		l.restricted = false
	}

	if l.state == StateAwaitingSyncNav && nav.ID == l.pendingNav {
		l.state = StateIdle
		l.pendingNav = 0
		l.restricted = true
		return
	}

	if !IsSaveableNavigation(nav) {
		return
	}
	l.svc.UpdateTab(l.group, l.TabID(), syncservice.TabFields{
		URL:   nav.URL,
		Title: l.contents.Title(),
	})
	l.svc.UpdateAttributions(l.group, l.TabID())
}

// TitleWasSet writes a new page title, if the page is saveable.
func (l *TabListener) TitleWasSet(title string) {
	if title == "" || !IsSaveableURL(l.contents.URL()) {
		return
	}
	l.svc.UpdateTab(l.group, l.TabID(), syncservice.TabFields{Title: title})
	l.svc.UpdateAttributions(l.group, l.TabID())
}

// OnFaviconUpdated writes a new favicon, if the page is saveable.
func (l *TabListener) OnFaviconUpdated(icon []byte) {
	if len(icon) == 0 || !IsSaveableURL(l.contents.URL()) {
		return
	}
	l.svc.UpdateTab(l.group, l.TabID(), syncservice.TabFields{Favicon: icon})
	l.svc.UpdateAttributions(l.group, l.TabID())
}
