package client

import (
	"github.com/gen2brain/beeep"
)

const notificationMaxBody = 100

// DesktopNotifier raises native desktop notifications through beeep
type DesktopNotifier struct {
	appName  string
	iconPath string
}

// NewDesktopNotifier creates a notifier; iconPath may be empty
func NewDesktopNotifier(appName, iconPath string) *DesktopNotifier {
	return &DesktopNotifier{appName: appName, iconPath: iconPath}
}

// Notify sends a notification. It is best-effort and may block briefly.
func (n *DesktopNotifier) Notify(title, body string) error {
	if n.appName != "" {
		title = n.appName + " - " + title
	}
	if len(body) > notificationMaxBody {
		body = body[:notificationMaxBody-3] + "..."
	}
	return beeep.Notify(title, body, n.iconPath)
}
