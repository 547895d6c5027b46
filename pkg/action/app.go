package action

const (
	// TypeAppReload requests a full reload of the application.
	TypeAppReload Type = "app.action.reload"
	// TypeAppDidStart is published once the orchestration has started.
	TypeAppDidStart Type = "app.action.didStart"
)

// AppReload requests the app to reload.
type AppReload struct{}

func (AppReload) Type() Type { return TypeAppReload }

// AppDidStart indicates the app has just started.
type AppDidStart struct{}

func (AppDidStart) Type() Type { return TypeAppDidStart }
