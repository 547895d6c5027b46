package action

const (
	// TypeEditorStorageChanged is published when the stored program changed
	// outside of this process.
	TypeEditorStorageChanged Type = "editor.action.storageChanged"
	// TypeEditorReloadProgram requests the editor to reload the stored program.
	TypeEditorReloadProgram Type = "editor.action.reloadProgram"
)

// EditorStorageChanged indicates the stored program changed externally.
type EditorStorageChanged struct {
	// Source names where the change was detected, for logging only.
	Source string `json:"source,omitempty"`
}

func (EditorStorageChanged) Type() Type { return TypeEditorStorageChanged }

// EditorReloadProgram asks the editor to reload the program from storage.
type EditorReloadProgram struct{}

func (EditorReloadProgram) Type() Type { return TypeEditorReloadProgram }
