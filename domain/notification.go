package domain

// NotificationKind classifies messages sent to the notification surface.
type NotificationKind string

const (
	NotifyCelebration NotificationKind = "celebration"
	NotifyError       NotificationKind = "error"
	NotifyInfo        NotificationKind = "info"
)

// Notification is the envelope consumed by the out-of-process notification
// surface (toasts, confetti renderers and the like).
type Notification struct {
	Kind    NotificationKind `json:"kind"`
	Message string           `json:"message"`
	ItemID  string           `json:"itemId,omitempty"`
}
