package notification

import (
	"sort"
	"strings"
)

// MessageID identifies a notification text. It doubles as the toast key of
// singleton notifications.
type MessageID string

const (
	MessageBleGattPermission      MessageID = "bleGattPermission"
	MessageBleGattServiceNotFound MessageID = "bleGattServiceNotFound"
	MessageBleNoWebBluetooth      MessageID = "bleNoWebBluetooth"
	MessageBleConnectFailed       MessageID = "bleConnectFailed"
	MessageProgramChanged         MessageID = "programChanged"
	MessageYesReloadProgram       MessageID = "yesReloadProgram"
	MessageMpyError               MessageID = "mpyError"
	MessageServiceWorkerUpdate    MessageID = "serviceWorkerUpdate"
	MessageServiceWorkerSuccess   MessageID = "serviceWorkerSuccess"
)

// Replacements fill the {name} placeholders of a message.
type Replacements map[string]string

var english = map[MessageID]string{
	MessageBleGattPermission:      "Permission to use Bluetooth was denied. Allow Bluetooth access for this site and try again.",
	MessageBleGattServiceNotFound: "Connected to a {hubName}, but the {serviceName} service was not found. Make sure the hub runs the expected firmware.",
	MessageBleNoWebBluetooth:      "This web browser does not support Web Bluetooth or it is not enabled.",
	MessageBleConnectFailed:       "Connecting to the hub failed for an unexpected reason.",
	MessageProgramChanged:         "The program was changed in another window. Do you want to reload it?",
	MessageYesReloadProgram:       "Yes, reload program",
	MessageMpyError:               "Compiling the program failed:\n{errorMessage}",
	MessageServiceWorkerUpdate:    "An update is available. Close every open window of the app and start it again to use the new version.",
	MessageServiceWorkerSuccess:   "The app is now ready to use offline.",
}

// Render returns the English text of id with its placeholders replaced.
// Unknown ids render as the id itself.
func Render(id MessageID, repl Replacements) string {
	text, ok := english[id]
	if !ok {
		return string(id)
	}
	if len(repl) == 0 {
		return text
	}

	names := make([]string, 0, len(repl))
	for name := range repl {
		names = append(names, name)
	}
	sort.Strings(names)
	pairs := make([]string, 0, 2*len(names))
	for _, name := range names {
		pairs = append(pairs, "{"+name+"}", repl[name])
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
