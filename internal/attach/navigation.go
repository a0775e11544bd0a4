package attach

import (
	"net/url"
	"strings"
)

// NewTabURL is the browser's new tab page. It is saveable even though it is
// not http(s).
const NewTabURL = "chrome://newtab/"

// Transition is the core type of a navigation.
type Transition int

const (
	TransitionLink Transition = iota
	TransitionTyped
	TransitionReload
	TransitionForwardBack
	TransitionFormSubmit
	TransitionAutoSubframe
)

// ParseTransition maps the extension's transition names onto Transition.
func ParseTransition(s string) Transition {
	switch s {
	case "typed", "generated", "keyword", "auto_bookmark":
		return TransitionTyped
	case "reload":
		return TransitionReload
	case "forward_back":
		return TransitionForwardBack
	case "form_submit":
		return TransitionFormSubmit
	case "auto_subframe", "manual_subframe":
		return TransitionAutoSubframe
	}
	return TransitionLink
}

// Navigation is a finished navigation in a tab.
type Navigation struct {
	// ID matches the id returned by TabStrip.Navigate for navigations this
	// process started, and is otherwise assigned by the browser.
	ID                  int64
	URL                 string
	IsPrimaryMainFrame  bool
	HasCommitted        bool
	IsRedirect          bool
	IsPost              bool
	IsRendererInitiated bool
	HasUserGesture      bool
	ShouldUpdateHistory bool
	Transition          Transition
}

// IsValidURL reports whether u can be opened in a tab.
func IsValidURL(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Scheme == "" {
		return false
	}
	switch parsed.Scheme {
	case "http", "https", "ftp", "ws", "wss":
		return parsed.Host != ""
	}
	return parsed.Opaque != "" || parsed.Host != "" || parsed.Path != ""
}

// IsSaveableURL reports whether a tab showing u may be written to a saved
// group: http(s) pages and the new tab page.
func IsSaveableURL(u string) bool {
	if strings.TrimSuffix(u, "/") == strings.TrimSuffix(NewTabURL, "/") {
		return true
	}
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return false
	}
	return parsed.Scheme == "http" || parsed.Scheme == "https"
}

// IsSaveableNavigation reports whether nav should update the saved tab.
func IsSaveableNavigation(nav Navigation) bool {
	if !nav.IsPrimaryMainFrame || !nav.HasCommitted {
		return false
	}
	if nav.IsRedirect || nav.IsPost || !nav.ShouldUpdateHistory {
		return false
	}
	if nav.IsRendererInitiated && !nav.HasUserGesture {
		return false
	}
	return IsSaveableURL(nav.URL)
}

// IsUserTriggeredMainFrameNavigation reports whether the user started nav
// in the primary main frame. Reloads and history navigations only count
// with a gesture.
func IsUserTriggeredMainFrameNavigation(nav Navigation) bool {
	if !nav.IsPrimaryMainFrame || nav.IsRendererInitiated {
		return false
	}
	if !nav.HasUserGesture && (nav.Transition == TransitionForwardBack || nav.Transition == TransitionReload) {
		return false
	}
	return true
}
