package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	notificationsDest = "org.freedesktop.Notifications"
	notificationsPath = "/org/freedesktop/Notifications"
)

// DesktopNotifier talks to the freedesktop notification daemon on the
// session bus.
type DesktopNotifier struct {
	mu      sync.Mutex
	conn    *dbus.Conn
	appName string
	// server-side ids, keyed by logical slot
	ids map[int]uint32
}

func NewDesktopNotifier(appName string) (*DesktopNotifier, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect to session bus: %w", err)
	}
	return &DesktopNotifier{conn: conn, appName: appName, ids: make(map[int]uint32)}, nil
}

func (d *DesktopNotifier) Post(ctx context.Context, n Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(byte(1)),
	}
	expire := int32(10000)
	if n.Ongoing {
		hints["resident"] = dbus.MakeVariant(true)
		expire = 0
	}

	obj := d.conn.Object(notificationsDest, notificationsPath)
	call := obj.CallWithContext(ctx, notificationsDest+".Notify", 0,
		d.appName,
		d.ids[n.ID],
		"appointment-soon",
		n.Title,
		n.Text,
		[]string{},
		hints,
		expire,
	)
	if call.Err != nil {
		return fmt.Errorf("send notification: %w", call.Err)
	}

	var serverID uint32
	if err := call.Store(&serverID); err != nil {
		return fmt.Errorf("read notification id: %w", err)
	}
	d.ids[n.ID] = serverID
	return nil
}

func (d *DesktopNotifier) Cancel(ctx context.Context, id int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	serverID, ok := d.ids[id]
	if !ok {
		return nil
	}
	delete(d.ids, id)

	obj := d.conn.Object(notificationsDest, notificationsPath)
	call := obj.CallWithContext(ctx, notificationsDest+".CloseNotification", 0, serverID)
	if call.Err != nil {
		return fmt.Errorf("close notification: %w", call.Err)
	}
	return nil
}

func (d *DesktopNotifier) Close() error {
	return d.conn.Close()
}
