// Package notify provides desktop notifications via D-Bus.
package notify

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	notifyInterface = "org.freedesktop.Notifications"
	notifyPath      = "/org/freedesktop/Notifications"
)

// Notification represents a desktop notification.
type Notification struct {
	Summary string
	Body    string
	Icon    string
	Timeout time.Duration // 0 = default, -1 = persistent
	Urgency Urgency
}

// Urgency levels for notifications.
type Urgency byte

const (
	UrgencyLow      Urgency = 0
	UrgencyNormal   Urgency = 1
	UrgencyCritical Urgency = 2
)

// Sender delivers a notification.
type Sender interface {
	Send(Notification) (uint32, error)
}

// DBus sends notifications over the session bus.
type DBus struct {
	conn    *dbus.Conn
	obj     dbus.BusObject
	appName string
}

// NewDBus connects to the session bus.
func NewDBus(appName string) (*DBus, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect to session bus: %w", err)
	}

	return &DBus{
		conn:    conn,
		obj:     conn.Object(notifyInterface, notifyPath),
		appName: appName,
	}, nil
}

// Close closes the D-Bus connection.
func (d *DBus) Close() error {
	return d.conn.Close()
}

// Send sends a notification and returns its server-assigned ID.
func (d *DBus) Send(n Notification) (uint32, error) {
	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(byte(n.Urgency)),
	}

	timeout := int32(-1)
	if n.Timeout > 0 {
		timeout = int32(n.Timeout.Milliseconds())
	} else if n.Timeout < 0 {
		timeout = 0
	}

	icon := n.Icon
	if icon == "" {
		icon = "appointment-soon"
	}

	call := d.obj.Call(
		notifyInterface+".Notify",
		0,
		d.appName, // app_name
		uint32(0), // replaces_id
		icon,
		n.Summary,
		n.Body,
		[]string{}, // actions
		hints,
		timeout,
	)
	if call.Err != nil {
		return 0, fmt.Errorf("send notification: %w", call.Err)
	}

	var id uint32
	if err := call.Store(&id); err != nil {
		return 0, fmt.Errorf("get notification id: %w", err)
	}

	slog.Debug("sent notification", "id", id, "summary", n.Summary)
	return id, nil
}
