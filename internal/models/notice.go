package models

// NoticeKind identifies a transient, user-facing notification.
type NoticeKind string

const (
	NoticeDeletedSelf       NoticeKind = "deleted_self"
	NoticeUnsentPeer        NoticeKind = "unsent_peer"
	NoticeCollaboratorError NoticeKind = "collaborator_error"
	NoticeResourceDenied    NoticeKind = "resource_denied"
)

// Notice is a dismissible notification raised by the client core.
type Notice struct {
	Kind      NoticeKind
	Text      string
	MessageID string
}
