package attach

import "testing"

// userNav returns a committed, browser-initiated, saveable navigation.
func userNav(id int64, url string) Navigation {
	return Navigation{
		ID:                  id,
		URL:                 url,
		IsPrimaryMainFrame:  true,
		HasCommitted:        true,
		ShouldUpdateHistory: true,
		Transition:          TransitionTyped,
	}
}

func newTabFixture() (*TabListener, *fakeStrip, *spyService, *fakeTab) {
	strip := newFakeStrip()
	tab := strip.add("https://start.example/", "G")
	svc := newSpyService()
	return NewTabListener(svc, strip, "G", tab), strip, svc, tab
}

func TestNavigateToURLSkipsRedirectChain(t *testing.T) {
	l, strip, _, tab := newTabFixture()
	tab.chain = []string{"http://a.example/", "https://a.example/"}

	l.NavigateToURL("https://a.example/")
	if len(strip.navs) != 0 {
		t.Fatalf("navigated %d times for a URL in the redirect chain", len(strip.navs))
	}
	if l.State() != StateIdle {
		t.Errorf("state = %v, want idle", l.State())
	}

	l.NavigateToURL("https://b.example/")
	if len(strip.navs) != 1 || strip.navs[0].url != "https://b.example/" {
		t.Fatalf("navs = %+v", strip.navs)
	}
	if l.State() != StateAwaitingSyncNav {
		t.Errorf("state = %v, want awaiting_sync_nav", l.State())
	}
}

func TestNavigateToURLSkipsInvalidURL(t *testing.T) {
	l, strip, _, _ := newTabFixture()
	for _, u := range []string{"", "not a url", "https://"} {
		l.NavigateToURL(u)
	}
	if len(strip.navs) != 0 {
		t.Errorf("navigated to invalid URLs: %+v", strip.navs)
	}
}

func TestSyncNavigationIsNotWrittenBack(t *testing.T) {
	l, strip, svc, _ := newTabFixture()

	l.NavigateToURL("https://b.example/")
	id := strip.navs[0].id
	l.DidFinishNavigation(userNav(id, "https://b.example/"))

	if len(svc.updates) != 0 {
		t.Errorf("sync navigation wrote %d updates", len(svc.updates))
	}
	if !l.IsRestricted() {
		t.Error("tab not restricted after sync navigation")
	}
	if l.State() != StateIdle {
		t.Errorf("state = %v, want idle", l.State())
	}

	// The next user navigation lifts the restriction and is saved.
	l.DidFinishNavigation(userNav(id+1, "https://c.example/"))
	if l.IsRestricted() {
		t.Error("user navigation did not clear restriction")
	}
	if len(svc.updates) != 1 || svc.updates[0].fields.URL != "https://c.example/" {
		t.Fatalf("updates = %+v", svc.updates)
	}
	if svc.attributions != 1 {
		t.Errorf("attributions = %d, want 1", svc.attributions)
	}
}

func TestOtherNavigationWhileAwaitingSyncNav(t *testing.T) {
	l, strip, svc, _ := newTabFixture()

	l.NavigateToURL("https://b.example/")
	pending := strip.navs[0].id
	l.DidFinishNavigation(userNav(pending+50, "https://other.example/"))

	if len(svc.updates) != 1 {
		t.Errorf("unrelated navigation not saved")
	}
	if l.State() != StateAwaitingSyncNav {
		t.Errorf("pending sync navigation lost: %v", l.State())
	}
	l.DidFinishNavigation(userNav(pending, "https://b.example/"))
	if len(svc.updates) != 1 || !l.IsRestricted() {
		t.Errorf("sync navigation echoed: updates=%d restricted=%v", len(svc.updates), l.IsRestricted())
	}
}

func TestUnsaveableNavigationsAreIgnored(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Navigation)
		save   bool
	}{
		{"plain", func(*Navigation) {}, true},
		{"subframe", func(n *Navigation) { n.IsPrimaryMainFrame = false }, false},
		{"not committed", func(n *Navigation) { n.HasCommitted = false }, false},
		{"redirect", func(n *Navigation) { n.IsRedirect = true }, false},
		{"post", func(n *Navigation) { n.IsPost = true }, false},
		{"no history", func(n *Navigation) { n.ShouldUpdateHistory = false }, false},
		{"renderer without gesture", func(n *Navigation) { n.IsRendererInitiated = true }, false},
		{"renderer with gesture", func(n *Navigation) { n.IsRendererInitiated, n.HasUserGesture = true, true }, true},
		{"file url", func(n *Navigation) { n.URL = "file:///etc/hosts" }, false},
		{"settings page", func(n *Navigation) { n.URL = "chrome://settings/" }, false},
		{"new tab page", func(n *Navigation) { n.URL = NewTabURL }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _, svc, _ := newTabFixture()
			nav := userNav(1, "https://a.example/")
			tt.mutate(&nav)
			l.DidFinishNavigation(nav)
			if saved := len(svc.updates) == 1; saved != tt.save {
				t.Errorf("saved = %v, want %v", saved, tt.save)
			}
		})
	}
}

func TestRestrictionClearing(t *testing.T) {
	l, strip, svc, _ := newTabFixture()
	l.NavigateToURL("https://b.example/")
	l.DidFinishNavigation(userNav(strip.navs[0].id, "https://b.example/"))

	reload := userNav(5, "https://b.example/")
	reload.Transition = TransitionReload
	l.DidFinishNavigation(reload)
	if !l.IsRestricted() {
		t.Error("reload without gesture cleared restriction")
	}

	renderer := userNav(6, "https://b.example/x")
	renderer.IsRendererInitiated = true
	renderer.HasUserGesture = true
	l.DidFinishNavigation(renderer)
	if !l.IsRestricted() {
		t.Error("renderer-initiated navigation cleared restriction")
	}

	// A typed navigation to an unsaveable page still lifts it.
	settings := userNav(7, "chrome://settings/")
	l.DidFinishNavigation(settings)
	if l.IsRestricted() {
		t.Error("typed navigation did not clear restriction")
	}
	for _, u := range svc.updates {
		if u.fields.URL == "chrome://settings/" {
			t.Error("unsaveable URL written to the model")
		}
	}
}

func TestTitleAndFaviconRequireSaveableURL(t *testing.T) {
	l, _, svc, tab := newTabFixture()

	l.TitleWasSet("Start")
	l.OnFaviconUpdated([]byte{1})
	if len(svc.updates) != 2 {
		t.Fatalf("updates = %d, want 2", len(svc.updates))
	}
	if svc.updates[0].fields.Title != "Start" || svc.updates[1].fields.Favicon == nil {
		t.Errorf("updates = %+v", svc.updates)
	}

	tab.url = "chrome://settings/"
	l.TitleWasSet("Settings")
	l.OnFaviconUpdated([]byte{2})
	if len(svc.updates) != 2 {
		t.Errorf("metadata of an unsaveable page written: %+v", svc.updates[2:])
	}
}
