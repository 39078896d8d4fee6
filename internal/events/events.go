package events

import "github.com/asaskevich/EventBus"

// GlobalBus is the shared event bus for the entire application
var GlobalBus EventBus.Bus

func init() {
	GlobalBus = EventBus.New()
}

// Event types for application-wide coordination
const (
	// Clipboard events
	EventClipboardChanged = "clipboard:changed"

	// Sync cycle events
	EventSyncStarted  = "sync:started"
	EventSyncMerged   = "sync:merged"
	EventSyncNoChange = "sync:nochange"
	EventSyncFailed   = "sync:failed"
	EventItemUploaded = "sync:item:uploaded"
	EventItemFetched  = "sync:item:fetched"

	// Shutdown events
	EventShutdownRequested = "app:shutdown:requested"
	EventShutdownComplete  = "app:shutdown:complete"
)
