package cart

import "time"

type ToastType string

const (
	ToastSuccess ToastType = "success"
	ToastUndo    ToastType = "undo"
	ToastInfo    ToastType = "info"
)

const (
	MsgAdded   = "נוסף לסל!"
	MsgRemoved = "הפריט הוסר מהסל"
	MsgCleared = "הסל רוקן"
)

const (
	DefaultAddedToastTTL = 3 * time.Second
	DefaultUndoWindow    = 5 * time.Second
)

type Toast struct {
	ID          string    `json:"id"`
	Type        ToastType `json:"type"`
	Message     string    `json:"message"`
	ProductName string    `json:"productName,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Undoable    bool      `json:"undoable"`
}

type toastState struct {
	toast   Toast
	timer   *time.Timer
	removed *Entry
}
