package action

const (
	// TypeServiceWorkerDidUpdate is published when an update has been downloaded.
	TypeServiceWorkerDidUpdate Type = "serviceWorker.action.didUpdate"
	// TypeServiceWorkerDidSucceed is published when the app became available offline.
	TypeServiceWorkerDidSucceed Type = "serviceWorker.action.didSucceed"
)

// ServiceWorkerDidUpdate indicates an update is available on next reload.
type ServiceWorkerDidUpdate struct{}

func (ServiceWorkerDidUpdate) Type() Type { return TypeServiceWorkerDidUpdate }

// ServiceWorkerDidSucceed indicates the update worker was installed successfully.
type ServiceWorkerDidSucceed struct{}

func (ServiceWorkerDidSucceed) Type() Type { return TypeServiceWorkerDidSucceed }
