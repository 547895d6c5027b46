package notification

import (
	"errors"
	"fmt"

	"github.com/goclaw/actiond/pkg/action"
	"github.com/goclaw/actiond/pkg/saga"
	"github.com/goclaw/actiond/pkg/toast"
)

const (
	webBluetoothStatusURL = "https://github.com/WebBluetoothCG/web-bluetooth/blob/master/implementation-status.md"
	serviceWorkerHelpURL  = "https://github.com/pybricks/pybricks-code/issues/102"
)

// Register adds every notification watcher to s.
func (n *Notifier) Register(s *saga.Scheduler) error {
	watchers := []struct {
		name string
		t    action.Type
		h    saga.Handler
	}{
		{"notification.bleDidFailToConnect", action.TypeBleDidFailToConnect, n.showBleDidFailToConnect},
		{"notification.bootloaderDidFailToConnect", action.TypeBootloaderDidFailToConnect, n.showBootloaderDidFailToConnect},
		{"notification.editorStorageChanged", action.TypeEditorStorageChanged, n.showEditorStorageChanged},
		{"notification.mpyDidFailToCompile", action.TypeMpyDidFailToCompile, n.showCompilerError},
		{"notification.add", action.TypeNotificationAdd, n.addNotification},
		{"notification.serviceWorkerDidUpdate", action.TypeServiceWorkerDidUpdate, n.showServiceWorkerUpdate},
		{"notification.serviceWorkerDidSucceed", action.TypeServiceWorkerDidSucceed, n.showServiceWorkerSuccess},
	}
	for _, w := range watchers {
		if err := s.TakeEvery(w.name, action.Is(w.t), w.h); err != nil {
			return fmt.Errorf("register %s: %w", w.name, err)
		}
	}
	return nil
}

func (n *Notifier) showBleDidFailToConnect(t *saga.Task, a action.Action) error {
	failure, ok := a.(action.BleDidFailToConnect)
	if !ok {
		return fmt.Errorf("unexpected action %T", a)
	}

	// Every reason in action.BleFailReasons has its own case; default only
	// guards against values built outside the codec.
	//exhaustive:enforce
	switch failure.Reason {
	case action.BleFailNoGatt:
		return n.showSingleton(t, singleton{level: toast.LevelError, id: MessageBleGattPermission})
	case action.BleFailNoService:
		return n.showSingleton(t, singleton{
			level: toast.LevelError,
			id:    MessageBleGattServiceNotFound,
			replacements: Replacements{
				"serviceName": "Pybricks",
				"hubName":     "Pybricks Hub",
			},
		})
	case action.BleFailNoWebBluetooth:
		return n.showSingleton(t, singleton{
			level:  toast.LevelError,
			id:     MessageBleNoWebBluetooth,
			action: toast.HelpAction(webBluetoothStatusURL),
		})
	case action.BleFailUnknown:
		return n.showSingleton(t, singleton{level: toast.LevelError, id: MessageBleConnectFailed})
	default:
		t.Logger().Warn("unhandled ble failure reason", "reason", failure.Reason, "err", failure.Err)
		return n.showSingleton(t, singleton{level: toast.LevelError, id: MessageBleConnectFailed})
	}
}

func (n *Notifier) showBootloaderDidFailToConnect(t *saga.Task, a action.Action) error {
	failure, ok := a.(action.BootloaderDidFailToConnect)
	if !ok {
		return fmt.Errorf("unexpected action %T", a)
	}

	// Every reason in action.BootloaderFailReasons has its own case; default
	// only guards against values built outside the codec.
	//exhaustive:enforce
	switch failure.Reason {
	case action.BootloaderFailNoGatt:
		return n.showSingleton(t, singleton{level: toast.LevelError, id: MessageBleGattPermission})
	case action.BootloaderFailGattServiceNotFound:
		return n.showSingleton(t, singleton{
			level: toast.LevelError,
			id:    MessageBleGattServiceNotFound,
			replacements: Replacements{
				"serviceName": "LEGO Bootloader",
				"hubName":     "LEGO Bootloader",
			},
		})
	case action.BootloaderFailNoWebBluetooth:
		return n.showSingleton(t, singleton{
			level:  toast.LevelError,
			id:     MessageBleNoWebBluetooth,
			action: toast.HelpAction(webBluetoothStatusURL),
		})
	case action.BootloaderFailUnknown:
		return n.showSingleton(t, singleton{level: toast.LevelError, id: MessageBleConnectFailed})
	default:
		t.Logger().Warn("unhandled bootloader failure reason", "reason", failure.Reason, "err", failure.Err)
		return n.showSingleton(t, singleton{level: toast.LevelError, id: MessageBleConnectFailed})
	}
}

// showEditorStorageChanged offers to reload the program. Clicking the toast
// button puts the reload request; dismissing the toast ends the task.
func (n *Notifier) showEditorStorageChanged(t *saga.Task, _ action.Action) error {
	// Buffered so a click landing before Receive is kept.
	ch := t.NewChannel(1)

	err := n.showSingleton(t, singleton{
		level: toast.LevelInfo,
		id:    MessageProgramChanged,
		action: &toast.Action{
			Icon:    "tick",
			Text:    Render(MessageYesReloadProgram, nil),
			OnClick: func() { _ = ch.Put(struct{}{}) },
		},
		onDismiss: func(bool) { ch.Close() },
	})
	if err != nil {
		return err
	}

	if _, err := t.Receive(ch); err != nil {
		if errors.Is(err, saga.ErrChannelClosed) {
			return nil
		}
		return err
	}
	return t.Put(action.EditorReloadProgram{})
}

func (n *Notifier) showCompilerError(t *saga.Task, a action.Action) error {
	failure, ok := a.(action.MpyDidFailToCompile)
	if !ok {
		return fmt.Errorf("unexpected action %T", a)
	}
	return n.showSingleton(t, singleton{
		level:        toast.LevelError,
		id:           MessageMpyError,
		replacements: Replacements{"errorMessage": failure.Err},
	})
}

// addNotification shows a one-off toast. Each one gets its own key.
func (n *Notifier) addNotification(t *saga.Task, a action.Action) error {
	add, ok := a.(action.NotificationAdd)
	if !ok {
		return fmt.Errorf("unexpected action %T", a)
	}

	props := toast.Props{
		Intent:  add.Level.Intent(),
		Icon:    add.Level.Icon(),
		Message: add.Message,
	}
	if add.HelpURL != "" {
		props.Action = toast.HelpAction(add.HelpURL)
	}
	n.toaster.Show(props, "")
	return nil
}

func (n *Notifier) showServiceWorkerUpdate(t *saga.Task, _ action.Action) error {
	return n.showSingleton(t, singleton{
		level:  toast.LevelInfo,
		id:     MessageServiceWorkerUpdate,
		action: toast.HelpAction(serviceWorkerHelpURL),
	})
}

func (n *Notifier) showServiceWorkerSuccess(t *saga.Task, _ action.Action) error {
	return n.showSingleton(t, singleton{level: toast.LevelInfo, id: MessageServiceWorkerSuccess})
}
