package messages

import "commandForge/internal/manager"

// RefreshMsg tells the workspace a tab's transcript sink has new chunks.
type RefreshMsg struct {
	Tab int
}

type SessionOpenedMsg struct {
	Tab    int
	Handle manager.Handle
}

type SessionFailedMsg struct {
	Tab int
	Err error
}

type SessionClosedMsg struct {
	Tab int
	Err error
}

type UploadFinishedMsg struct {
	Tab    int
	Remote string
	Err    error
}

type SinkErrorMsg struct {
	Handle manager.Handle
	Err    error
}

type StoreChangedMsg struct{}

// StatusMsg replaces the status line.
type StatusMsg struct {
	Text    string
	IsError bool
}
