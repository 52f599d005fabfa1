package types

// Window manager topics. Commands are emitted by windows; the hub answers
// each with the matching past-tense topic carrying window_id and success.
const (
	TopicOpen          = "wm.window.open"
	TopicClose         = "wm.window.close"
	TopicMinimize      = "wm.window.minimize"
	TopicMaximize      = "wm.window.maximize"
	TopicRestore       = "wm.window.restore"
	TopicHide          = "wm.window.hide"
	TopicShow          = "wm.window.show"
	TopicMove          = "wm.window.move"
	TopicResize        = "wm.window.resize"
	TopicGetState      = "wm.window.get_state"
	TopicListAll       = "wm.window.list_all"
	TopicListBySession = "wm.window.list_by_session"

	TopicOpened          = "wm.window.opened"
	TopicClosed          = "wm.window.closed"
	TopicMinimized       = "wm.window.minimized"
	TopicMaximized       = "wm.window.maximized"
	TopicRestored        = "wm.window.restored"
	TopicHidden          = "wm.window.hidden"
	TopicShown           = "wm.window.shown"
	TopicMoved           = "wm.window.moved"
	TopicResized         = "wm.window.resized"
	TopicState           = "wm.window.state"
	TopicListed          = "wm.window.listed"
	TopicOperationFailed = "wm.window.operation_failed"
)

// Payload keys shared by the window manager topics.
const (
	KeyWindowID  = "window_id"
	KeySuccess   = "success"
	KeyAddon     = "addon"
	KeySessionID = "session_id"
	KeyWindows   = "windows"
	KeyPosition  = "position"
	KeySize      = "size"
	KeyState     = "state"
	KeyOperation = "operation"
	KeyError     = "error"
	KeyTitle     = "title"
)

// LifecycleReplies maps each state-changing command to its confirmation.
var LifecycleReplies = map[string]string{
	TopicClose:    TopicClosed,
	TopicMinimize: TopicMinimized,
	TopicMaximize: TopicMaximized,
	TopicRestore:  TopicRestored,
	TopicHide:     TopicHidden,
	TopicShow:     TopicShown,
	TopicMove:     TopicMoved,
	TopicResize:   TopicResized,
}
