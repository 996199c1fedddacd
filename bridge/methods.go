package bridge

// Method is a protocol method identifier carried in envelope method fields.
type Method string

// Protocol method names. Direction is fixed per method; SizeChanged is the
// one notification both peers may originate.
const (
	// Lifecycle
	InitializeMethod              Method = "initialize"
	InitializedNotificationMethod Method = "notifications/initialized"
	TeardownMethod                Method = "teardown"

	// Operation data pushed host -> view
	OperationInputNotificationMethod        Method = "notifications/operation/input"
	OperationInputPartialNotificationMethod Method = "notifications/operation/input_partial"
	OperationResultNotificationMethod       Method = "notifications/operation/result"
	OperationCancelledNotificationMethod    Method = "notifications/operation/cancelled"
	OperationListChangedNotificationMethod  Method = "notifications/operation/list_changed"

	// Environment
	HostContextChangedNotificationMethod Method = "notifications/host_context_changed"
	SizeChangedNotificationMethod        Method = "notifications/size_changed"

	// View-initiated interaction
	SendMessageMethod        Method = "message/send"
	OpenLinkMethod           Method = "link/open"
	RequestDisplayModeMethod Method = "display_mode/request"

	// Backend proxying
	InvokeOperationMethod Method = "operations/invoke"
	ReadResourceMethod    Method = "resources/read"

	// Best-effort view -> host notifications
	LogMessageNotificationMethod   Method = "notifications/log"
	ModelContextNotificationMethod Method = "notifications/model_context"
)

// ProtocolVersion is the bridge protocol revision negotiated at handshake.
const ProtocolVersion = "2025-03-26"
