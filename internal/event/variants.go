// ABOUTME: Typed event variants, one per agent-server event kind
// ABOUTME: Decode narrows a generic Event so scoped subscribers can type-switch exhaustively

package event

import "encoding/json"

// Event kinds emitted by the agent server.
const (
	KindServerConnected    = "server.connected"
	KindSessionUpdated     = "session.updated"
	KindSessionDeleted     = "session.deleted"
	KindSessionIdle        = "session.idle"
	KindSessionStatus      = "session.status"
	KindSessionError       = "session.error"
	KindMessageUpdated     = "message.updated"
	KindMessageRemoved     = "message.removed"
	KindMessagePartUpdated = "message.part.updated"
	KindMessagePartRemoved = "message.part.removed"
	KindPermissionUpdated  = "permission.updated"
	KindPermissionReplied  = "permission.replied"
	KindTodoUpdated        = "todo.updated"
	KindPtyCreated         = "pty.created"
	KindPtyUpdated         = "pty.updated"
	KindPtyExited          = "pty.exited"
	KindPtyDeleted         = "pty.deleted"
	KindFileEdited         = "file.edited"
)

// Variant is a decoded event. The set of implementations is closed.
type Variant interface {
	Kind() string
	variant()
}

// Scope is carried by every variant; Directory is set when the event came
// through a directory-scoped envelope.
type Scope struct {
	Directory string `json:"directory,omitempty"`
}

func (Scope) variant() {}

type SessionInfo struct {
	ID        string `json:"id"`
	ProjectID string `json:"projectID,omitempty"`
	Directory string `json:"directory,omitempty"`
	ParentID  string `json:"parentID,omitempty"`
	Title     string `json:"title"`
	Version   string `json:"version,omitempty"`
}

type MessageInfo struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
	Role      string `json:"role"`
}

type Part struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	Tool      string `json:"tool,omitempty"`
}

type ErrorInfo struct {
	Name string `json:"name"`
	Data struct {
		Message string `json:"message"`
	} `json:"data"`
}

type Todo struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	Status   string `json:"status"`
	Priority string `json:"priority"`
}

type PtyInfo struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	Cwd     string   `json:"cwd"`
	Status  string   `json:"status"`
	PID     int      `json:"pid"`
}

type ServerConnected struct{ Scope }

type SessionUpdated struct {
	Scope
	Info SessionInfo `json:"info"`
}

type SessionDeleted struct {
	Scope
	Info SessionInfo `json:"info"`
}

type SessionIdle struct {
	Scope
	SessionID string `json:"sessionID"`
}

type SessionStatus struct {
	Scope
	SessionID string `json:"sessionID"`
	Status    struct {
		Type    string `json:"type"`
		Attempt int    `json:"attempt,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"status"`
}

type SessionError struct {
	Scope
	SessionID string     `json:"sessionID,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
}

// Message returns a human-readable error message.
func (e SessionError) Message() string {
	if e.Error == nil {
		return "unknown error"
	}
	if e.Error.Data.Message != "" {
		return e.Error.Data.Message
	}
	return e.Error.Name
}

type MessageUpdated struct {
	Scope
	Info MessageInfo `json:"info"`
}

type MessageRemoved struct {
	Scope
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
}

type MessagePartUpdated struct {
	Scope
	Part  Part   `json:"part"`
	Delta string `json:"delta,omitempty"`
}

type MessagePartRemoved struct {
	Scope
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
	PartID    string `json:"partID"`
}

// PermissionUpdated is a permission request awaiting the user's answer.
type PermissionUpdated struct {
	Scope
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Pattern   any            `json:"pattern,omitempty"`
	SessionID string         `json:"sessionID"`
	MessageID string         `json:"messageID"`
	CallID    string         `json:"callID,omitempty"`
	Title     string         `json:"title"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type PermissionReplied struct {
	Scope
	SessionID    string `json:"sessionID"`
	PermissionID string `json:"permissionID"`
	Response     string `json:"response"`
}

type TodoUpdated struct {
	Scope
	SessionID string `json:"sessionID"`
	Todos     []Todo `json:"todos"`
}

type PtyCreated struct {
	Scope
	Info PtyInfo `json:"info"`
}

type PtyUpdated struct {
	Scope
	Info PtyInfo `json:"info"`
}

type PtyExited struct {
	Scope
	ID       string `json:"id"`
	ExitCode int    `json:"exitCode"`
}

type PtyDeleted struct {
	Scope
	ID string `json:"id"`
}

type FileEdited struct {
	Scope
	File string `json:"file"`
}

// Unknown wraps an event whose kind is not modelled, or whose properties did
// not match the expected shape.
type Unknown struct {
	Event Event
}

func (Unknown) variant()       {}
func (u Unknown) Kind() string { return u.Event.Type }

func (ServerConnected) Kind() string    { return KindServerConnected }
func (SessionUpdated) Kind() string     { return KindSessionUpdated }
func (SessionDeleted) Kind() string     { return KindSessionDeleted }
func (SessionIdle) Kind() string        { return KindSessionIdle }
func (SessionStatus) Kind() string      { return KindSessionStatus }
func (SessionError) Kind() string       { return KindSessionError }
func (MessageUpdated) Kind() string     { return KindMessageUpdated }
func (MessageRemoved) Kind() string     { return KindMessageRemoved }
func (MessagePartUpdated) Kind() string { return KindMessagePartUpdated }
func (MessagePartRemoved) Kind() string { return KindMessagePartRemoved }
func (PermissionUpdated) Kind() string  { return KindPermissionUpdated }
func (PermissionReplied) Kind() string  { return KindPermissionReplied }
func (TodoUpdated) Kind() string        { return KindTodoUpdated }
func (PtyCreated) Kind() string         { return KindPtyCreated }
func (PtyUpdated) Kind() string         { return KindPtyUpdated }
func (PtyExited) Kind() string          { return KindPtyExited }
func (PtyDeleted) Kind() string         { return KindPtyDeleted }
func (FileEdited) Kind() string         { return KindFileEdited }

// Decode narrows ev to its typed variant.
func Decode(ev Event) Variant {
	switch ev.Type {
	case KindServerConnected:
		return decodeAs[ServerConnected](ev)
	case KindSessionUpdated:
		return decodeAs[SessionUpdated](ev)
	case KindSessionDeleted:
		return decodeAs[SessionDeleted](ev)
	case KindSessionIdle:
		return decodeAs[SessionIdle](ev)
	case KindSessionStatus:
		return decodeAs[SessionStatus](ev)
	case KindSessionError:
		return decodeAs[SessionError](ev)
	case KindMessageUpdated:
		return decodeAs[MessageUpdated](ev)
	case KindMessageRemoved:
		return decodeAs[MessageRemoved](ev)
	case KindMessagePartUpdated:
		return decodeAs[MessagePartUpdated](ev)
	case KindMessagePartRemoved:
		return decodeAs[MessagePartRemoved](ev)
	case KindPermissionUpdated:
		return decodeAs[PermissionUpdated](ev)
	case KindPermissionReplied:
		return decodeAs[PermissionReplied](ev)
	case KindTodoUpdated:
		return decodeAs[TodoUpdated](ev)
	case KindPtyCreated:
		return decodeAs[PtyCreated](ev)
	case KindPtyUpdated:
		return decodeAs[PtyUpdated](ev)
	case KindPtyExited:
		return decodeAs[PtyExited](ev)
	case KindPtyDeleted:
		return decodeAs[PtyDeleted](ev)
	case KindFileEdited:
		return decodeAs[FileEdited](ev)
	default:
		return Unknown{Event: ev}
	}
}

func decodeAs[T Variant](ev Event) Variant {
	var v T
	if err := json.Unmarshal(ev.propertiesJSON(), &v); err != nil {
		return Unknown{Event: ev}
	}
	return v
}
