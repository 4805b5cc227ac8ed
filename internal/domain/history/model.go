package history

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an event does not exist or does not
// belong to the addressed entity.
var ErrNotFound = errors.New("history event not found")

// Label categorizes a history event.
type Label string

const (
	LabelCreate   Label = "create"
	LabelUpdate   Label = "update"
	LabelDelete   Label = "delete"
	LabelExport   Label = "export"
	LabelImport   Label = "import"
	LabelDownload Label = "download"
)

// Event is one entry of an entity's append-only history stream.
// Polymorphic entities share the parent's entity id; the kind
// distinguishes parent events ("staging") from child events
// ("staging/tnm").
type Event struct {
	ID         int64           `json:"id"`
	EntityKind string          `json:"entityKind"`
	EntityID   uuid.UUID       `json:"entityId"`
	Label      Label           `json:"label"`
	CreatedAt  time.Time       `json:"createdAt"`
	Snapshot   json.RawMessage `json:"snapshot,omitempty"`
	Diff       json.RawMessage `json:"diff,omitempty"`
	Context    Context         `json:"context,omitempty"`
}

// Context carries the request-scoped metadata attached to every event
// emitted during that request.
type Context map[string]any
