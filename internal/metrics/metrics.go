// Package metrics classifies which kind of device created or last touched a
// saved group and records startup and per-event counts as log events.
package metrics

import (
	"strings"

	"github.com/google/uuid"

	"github.com/lotas/tabgroupsync/internal/applog"
	"github.com/lotas/tabgroupsync/internal/types"
)

// DeviceType is the coarse class of a syncing device.
type DeviceType int

const (
	DeviceUnknown DeviceType = iota
	DeviceLocal
	DeviceWindows
	DeviceMac
	DeviceLinux
	DeviceChromeOS
	DeviceAndroidPhone
	DeviceAndroidTablet
	DeviceIOSPhone
	DeviceIOSTablet
)

func (d DeviceType) String() string {
	switch d {
	case DeviceLocal:
		return "local"
	case DeviceWindows:
		return "windows"
	case DeviceMac:
		return "mac"
	case DeviceLinux:
		return "linux"
	case DeviceChromeOS:
		return "chromeos"
	case DeviceAndroidPhone:
		return "android_phone"
	case DeviceAndroidTablet:
		return "android_tablet"
	case DeviceIOSPhone:
		return "ios_phone"
	case DeviceIOSTablet:
		return "ios_tablet"
	}
	return "unknown"
}

// DeviceInfo describes another device participating in sync.
type DeviceInfo struct {
	CacheGUID  string `json:"cache_guid"`
	Name       string `json:"name"`
	OS         string `json:"os"`          // windows, mac, linux, chromeos, android, ios
	FormFactor string `json:"form_factor"` // desktop, phone, tablet
}

// DeviceInfoTracker looks up devices by sync cache guid.
type DeviceInfoTracker interface {
	DeviceInfo(cacheGUID string) (DeviceInfo, bool)
}

// EventName is a user-facing tab group action worth counting.
type EventName string

const (
	EventTabGroupOpened  EventName = "tab_group_opened"
	EventTabGroupClosed  EventName = "tab_group_closed"
	EventTabSelected     EventName = "tab_selected"
	EventTabGroupRemoved EventName = "tab_group_removed"
	EventTabAdded        EventName = "tab_added"
	EventTabRemoved      EventName = "tab_removed"
	EventTabNavigated    EventName = "tab_navigated"
)

// Logger records tab group metrics. A nil tracker classifies every remote
// device as unknown.
type Logger struct {
	devices        DeviceInfoTracker
	localCacheGUID string
}

func NewLogger(devices DeviceInfoTracker, localCacheGUID string) *Logger {
	return &Logger{devices: devices, localCacheGUID: localCacheGUID}
}

// DeviceTypeFor classifies the device behind cacheGUID.
func (l *Logger) DeviceTypeFor(cacheGUID string) DeviceType {
	if cacheGUID == "" {
		return DeviceUnknown
	}
	if cacheGUID == l.localCacheGUID {
		return DeviceLocal
	}
	if l.devices == nil {
		return DeviceUnknown
	}
	info, ok := l.devices.DeviceInfo(cacheGUID)
	if !ok {
		return DeviceUnknown
	}
	return classify(info)
}

func classify(info DeviceInfo) DeviceType {
	form := strings.ToLower(info.FormFactor)
	switch strings.ToLower(info.OS) {
	case "windows", "win":
		return DeviceWindows
	case "mac", "macos", "darwin":
		return DeviceMac
	case "linux":
		return DeviceLinux
	case "chromeos", "cros":
		return DeviceChromeOS
	case "android":
		if form == "tablet" {
			return DeviceAndroidTablet
		}
		return DeviceAndroidPhone
	case "ios":
		if form == "tablet" {
			return DeviceIOSTablet
		}
		return DeviceIOSPhone
	}
	return DeviceUnknown
}

// StartupCounts summarizes the saved groups present after load.
type StartupCounts struct {
	Groups       int
	OpenGroups   int
	PinnedGroups int
	Tabs         int
	RemoteGroups int
	ByCreator    map[DeviceType]int
}

// RecordMetricsOnStartup logs a summary of groups and returns it.
func (l *Logger) RecordMetricsOnStartup(groups []types.SavedTabGroup) StartupCounts {
	c := StartupCounts{Groups: len(groups), ByCreator: make(map[DeviceType]int)}
	for _, g := range groups {
		c.Tabs += len(g.Tabs)
		if g.IsOpen() {
			c.OpenGroups++
		}
		if g.Pinned {
			c.PinnedGroups++
		}
		dt := l.DeviceTypeFor(g.CreatorCacheGUID)
		c.ByCreator[dt]++
		if dt != DeviceLocal && g.CreatorCacheGUID != "" {
			c.RemoteGroups++
		}
	}

	kv := []any{
		"groups", c.Groups,
		"open", c.OpenGroups,
		"pinned", c.PinnedGroups,
		"tabs", c.Tabs,
		"remote", c.RemoteGroups,
	}
	for dt, n := range c.ByCreator {
		kv = append(kv, "creator_"+dt.String(), n)
	}
	applog.Info("metrics.startup", kv...)
	return c
}

// RecordTabGroupEvent logs a single action on g, attributed to the device
// that created the group and the one that last updated it (or the tab).
func (l *Logger) RecordTabGroupEvent(name EventName, g types.SavedTabGroup, tabID uuid.UUID) {
	updater := g.LastUpdaterCacheGUID
	if tabID != uuid.Nil {
		if tab := g.Tab(tabID); tab != nil && tab.LastUpdaterCacheGUID != "" {
			updater = tab.LastUpdaterCacheGUID
		}
	}
	applog.Info("metrics.event",
		"event", string(name),
		"group", g.GUID,
		"tabs", len(g.Tabs),
		"creator", l.DeviceTypeFor(g.CreatorCacheGUID).String(),
		"updater", l.DeviceTypeFor(updater).String(),
	)
}
