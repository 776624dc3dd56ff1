package log

// Canonical field names for structured logging.
const (
	FieldService   = "service"
	FieldComponent = "component"

	FieldTag      = "tag"
	FieldBundle   = "bundle"
	FieldInvokeID = "invoke_id"
	FieldPeerID   = "peer_id"
	FieldURL      = "url"
	FieldSubject  = "subject"
	FieldTask     = "task"
)
