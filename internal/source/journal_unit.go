package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/watchhound/telewatch/internal/errors"
)

// UnitWatcher queries a systemd unit's ActiveState over the
// system D-Bus and surfaces start/stop transitions the way the PID
// watcher surfaces process transitions, grounded on the same
// org.freedesktop.systemd1 properties the teacher's DBusConnection
// reads for service drift detection.
type UnitWatcher struct {
	unit string
	conn *dbus.Conn
	mgr  dbus.BusObject

	lastActive string
}

// NewUnitWatcher connects to the system bus and resolves unit's manager
// object path.
func NewUnitWatcher(unit string) (*UnitWatcher, error) {
	if !strings.HasSuffix(unit, ".service") {
		unit += ".service"
	}

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, errors.Wrap(errors.KindSource, "cannot connect to system bus for unit "+unit, err)
	}

	mgr := conn.Object("org.freedesktop.systemd1", "/org/freedesktop/systemd1")

	uw := &UnitWatcher{unit: unit, conn: conn, mgr: mgr}
	state, err := uw.activeState(context.Background())
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(errors.KindSource, "unit not found: "+unit, err)
	}
	uw.lastActive = state
	return uw, nil
}

// ActiveState queries the current ActiveState (active, inactive,
// activating, deactivating, failed) for the unit.
func (u *UnitWatcher) activeState(ctx context.Context) (string, error) {
	var unitPath dbus.ObjectPath
	call := u.mgr.CallWithContext(ctx, "org.freedesktop.systemd1.Manager.GetUnit", 0, u.unit)
	if err := call.Store(&unitPath); err != nil {
		return "", fmt.Errorf("GetUnit %s: %w", u.unit, err)
	}

	obj := u.conn.Object("org.freedesktop.systemd1", unitPath)
	var state string
	err := obj.Call("org.freedesktop.DBus.Properties.Get", 0,
		"org.freedesktop.systemd1.Unit", "ActiveState").Store(&state)
	if err != nil {
		return "", fmt.Errorf("ActiveState %s: %w", u.unit, err)
	}
	return state, nil
}

// Poll checks for a state transition since the last call, returning the
// new state and true if it changed.
func (u *UnitWatcher) Poll(ctx context.Context) (newState string, changed bool, err error) {
	state, err := u.activeState(ctx)
	if err != nil {
		return "", false, err
	}
	if state == u.lastActive {
		return state, false, nil
	}
	u.lastActive = state
	return state, true, nil
}

// Close releases the D-Bus connection.
func (u *UnitWatcher) Close() error {
	return u.conn.Close()
}

// UnitPollInterval for unit-state checks mirrors the PID watcher's default.
const UnitPollInterval = CheckInterval
