package editor

import (
	"github.com/goclaw/actiond/pkg/action"
	"github.com/goclaw/actiond/pkg/saga"
)

// RegisterReload adds the watcher reloading store from disk on
// editor.action.reloadProgram.
func RegisterReload(s *saga.Scheduler, store *Store) error {
	return s.TakeLatest("editor.reloadProgram", action.Is(action.TypeEditorReloadProgram), func(t *saga.Task, _ action.Action) error {
		content, err := saga.CallResult(t, store.Load)
		if err != nil {
			return err
		}
		t.Logger().Info("program reloaded", "bytes", len(content))
		return nil
	})
}
