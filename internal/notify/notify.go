// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/waybar-locshare/internal/logger"
)

const (
	notifyDest   = "org.freedesktop.Notifications"
	notifyPath   = dbus.ObjectPath("/org/freedesktop/Notifications")
	notifyMethod = "org.freedesktop.Notifications.Notify"

	appName       = "waybar-locshare"
	appIcon       = "dialog-error"
	expireDefault = int32(-1)
	urgencyNormal = byte(1)
)

// Notifier shows a message to the user.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

type busObject interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...any) *dbus.Call
}

// DBus sends desktop notifications through org.freedesktop.Notifications.
type DBus struct {
	conn   *dbus.Conn
	object busObject
}

func NewDBus(ctx context.Context) (*DBus, error) {
	conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return &DBus{conn: conn, object: conn.Object(notifyDest, notifyPath)}, nil
}

func (d *DBus) Notify(ctx context.Context, title, body string) error {
	hints := map[string]dbus.Variant{"urgency": dbus.MakeVariant(urgencyNormal)}
	call := d.object.CallWithContext(ctx, notifyMethod, 0, appName, uint32(0), appIcon, title, body,
		[]string{}, hints, expireDefault)
	if call.Err != nil {
		return fmt.Errorf("failed to send desktop notification: %w", call.Err)
	}
	return nil
}

func (d *DBus) Close() error {
	if d.conn == nil {
		return nil
	}
	return d.conn.Close()
}

// Log writes notifications to the logger at error level.
type Log struct {
	logger *logger.Logger
}

func NewLog(log *logger.Logger) *Log {
	return &Log{logger: log}
}

func (l *Log) Notify(_ context.Context, title, body string) error {
	l.logger.Error(title, slog.String("message", body))
	return nil
}
