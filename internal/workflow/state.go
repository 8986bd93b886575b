package workflow

import (
	"github.com/gabriel-vasile/mimetype"

	"pdfmaster/internal/artifact"
	"pdfmaster/internal/tool"
)

// State is the controller's lifecycle position.
type State string

const (
	StateIdle       State = "idle"
	StateReady      State = "ready"
	StateProcessing State = "processing"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// Source tells where a file selection came from.
type Source string

const (
	SourcePicker Source = "picker"
	SourceDrop   Source = "drop"
)

const genericContentType = "application/octet-stream"

// FileHandle is one selected file.
type FileHandle struct {
	Name        string
	ContentType string
	Data        []byte
}

// NewFileHandle builds a handle and sniffs the content type when the caller
// did not supply a specific one.
func NewFileHandle(name, contentType string, data []byte) FileHandle {
	if contentType == "" || contentType == genericContentType {
		contentType = mimetype.Detect(data).String()
	}
	return FileHandle{Name: name, ContentType: contentType, Data: data}
}

// Size is the file length in bytes.
func (f FileHandle) Size() int64 { return int64(len(f.Data)) }

// FileInfo describes a selected file without its content.
type FileInfo struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// Snapshot is a consistent, read-only view of a controller.
type Snapshot struct {
	Tool          tool.Key           `json:"tool"`
	State         State              `json:"state"`
	Files         []FileInfo         `json:"files"`
	Progress      int                `json:"progress"`
	CanSubmit     bool               `json:"can_submit"`
	Error         string             `json:"error,omitempty"`
	ErrorKind     ErrorKind          `json:"error_kind,omitempty"`
	Artifact      *artifact.Artifact `json:"artifact,omitempty"`
	SuggestedName string             `json:"suggested_name,omitempty"`
}
