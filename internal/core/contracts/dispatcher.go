package contracts

import "context"

// Dispatcher is the fan-out primitive used by the core and by external
// collaborators (REST handlers publishing after a write). All methods
// are fire-and-forget from the caller's perspective.
type Dispatcher interface {
	// ToRoom delivers to every live connection currently joined to the room.
	ToRoom(ctx context.Context, roomID, event string, payload any)
	// ToRoomExcept delivers to the room, skipping every connection of
	// exceptUserID.
	ToRoomExcept(ctx context.Context, roomID, exceptUserID, event string, payload any)
	// ToUser delivers to every live connection of the user, or enqueues
	// exactly once when the user is offline. Never both.
	ToUser(ctx context.Context, userID, event string, payload any)
	// ToUsers de-duplicates the recipient set and applies ToUser to each.
	ToUsers(ctx context.Context, event string, payload any, userIDs []string)
	// ToAll delivers to every live connection on this instance.
	ToAll(ctx context.Context, event string, payload any)
}
