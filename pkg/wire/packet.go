// Package wire defines the broker's request/response vocabulary and
// its framing: every packet is CBOR-encoded and prefixed with a
// 4-byte big-endian length, so a reader never has to guess where one
// logical packet ends and the next begins.
package wire

// RejectReason names why a connection handshake was refused.
type RejectReason string

const (
	ReasonDuplicateID    RejectReason = "Id"
	ReasonUnknownParent  RejectReason = "Parent"
)

// SocketOffer is the optional (path, echo) pair a component supplies
// on ReqConn to ask the broker to dial it back.
type SocketOffer struct {
	Path string
	Echo uint64
}

// ReqConn is the first packet every component must send.
type ReqConn struct {
	Socket *SocketOffer
	Label  string
	Parent string // dotted discriminator, empty = root-relative
}

// ApprConn approves a handshake. It is sent on every approval, with
// Echo zero when the handshake supplied no socket offer. Path is
// the component's assigned server socket: the component must connect
// there for all further request traffic.
type ApprConn struct {
	Echo uint64
	Path string
}

// RejConn rejects a handshake. It is sent on every rejection, with Echo
// zero when the handshake supplied no socket offer.
type RejConn struct {
	Echo   uint64
	Reason RejectReason
}

// Terminate asks the broker to shut down and signal every spawned
// process and connection to exit.
type Terminate struct{}

// Request is the envelope for every request-group packet. Exactly one
// of the typed fields is populated, selected by Kind. RequestID is
// supplied by the sender and echoed back in the matching Response.
type Request struct {
	Kind      RequestKind
	RequestID uint64
	Target    string // dotted discriminator; empty = kind-specific default

	ConfirmRecieve *ConfirmRecieveBody
	Subscribe      *SubscribeBody
	Unsubscribe    *UnsubscribeBody
	SetSocket      *SetSocketBody
	Render         *RenderBody
	Spawn          *SpawnBody
	Message        *MessageBody
	NewSpace       *NewSpaceBody
	FocusAt        *FocusAtBody
	GetState       *GetStateBody
	GetEntry       *GetEntryBody
	RemoveEntry    *RemoveEntryBody
	SetEntry       *SetEntryBody
	Watch          *WatchBody
	Unwatch        *UnwatchBody
	Suppress       *SuppressBody
	Unsuppress     *UnsuppressBody
}

// RequestKind discriminates Request's payload.
type RequestKind string

const (
	KindConfirmRecieve RequestKind = "ConfirmRecieve"
	KindSubscribe      RequestKind = "Subscribe"
	KindUnsubscribe    RequestKind = "Unsubscribe"
	KindSetSocket      RequestKind = "SetSocket"
	KindDrop           RequestKind = "Drop"
	KindRender         RequestKind = "Render"
	KindSpawn          RequestKind = "Spawn"
	KindMessage        RequestKind = "Message"
	KindNewSpace       RequestKind = "NewSpace"
	KindFocusAt        RequestKind = "FocusAt"
	KindGetState       RequestKind = "GetState"
	KindGetEntry       RequestKind = "GetEntry"
	KindRemoveEntry    RequestKind = "RemoveEntry"
	KindSetEntry       RequestKind = "SetEntry"
	KindWatch          RequestKind = "Watch"
	KindUnwatch        RequestKind = "Unwatch"
	KindSuppress       RequestKind = "Suppress"
	KindUnsuppress     RequestKind = "Unsuppress"
	KindTerminate      RequestKind = "Terminate"
)

type ConfirmRecieveBody struct {
	ID   uint64
	Pass bool
}

type SubscribeBody struct {
	Channel  string
	Priority *int64
}

type UnsubscribeBody struct {
	Channel string
}

type SetSocketBody struct {
	Path string
}

type RenderBody struct {
	Frame []byte
}

type SpawnBody struct {
	Label   string
	Command string
	Args    []string
	AsSpace bool
}

type MessageBody struct {
	Tag  string
	Body []byte
}

type NewSpaceBody struct {
	Label string
}

type FocusAtBody struct {
	Target string
}

// StateQuery names which StateValue a GetState request asks for.
type StateQuery string

const (
	StateFocused      StateQuery = "Focused"
	StateIsFocused    StateQuery = "IsFocused"
	StateTerminalSize StateQuery = "TerminalSize"
	StateWorkingDir   StateQuery = "WorkingDir"
)

type GetStateBody struct {
	Query StateQuery
}

type GetEntryBody struct {
	Label string
}

type RemoveEntryBody struct {
	Label string
}

type SetEntryBody struct {
	Label string
	Value []byte
}

type WatchBody struct {
	Label string
}

type UnwatchBody struct {
	Label string
}

type SuppressBody struct {
	Channel  string
	Priority int64
}

type UnsuppressBody struct {
	Channel string
	ID      uint64
}

// Response is the envelope for every response-group packet.
type Response struct {
	Kind       ResponseKind
	ResponseID uint64
	RequestID  uint64

	Success     *SuccessBody
	Error       *ErrorBody
	Event       *EventBody
	SetSocket   *SetSocketBody
}

// ResponseKind discriminates Response's payload.
type ResponseKind string

const (
	KindSuccess     ResponseKind = "Success"
	KindError       ResponseKind = "Error"
	KindUndelivered ResponseKind = "Undelivered"
	KindEvent       ResponseKind = "Event"
	KindSetSocketOK ResponseKind = "SetSocket"
	// KindShutdown is pushed, unsolicited, to every connection's client
	// socket when the broker is asked to Terminate: S6's broadcast step.
	KindShutdown ResponseKind = "Shutdown"
)

// ErrorCode enumerates the broker's typed error taxonomy.
type ErrorCode string

const (
	ErrComponentNotFound ErrorCode = "ComponentNotFound"
	ErrEntryNotFound     ErrorCode = "EntryNotFound"
	ErrSpawnFailed       ErrorCode = "SpawnFailed"
)

type SuccessBody struct {
	// StateValue populated in reply to GetState, and with the new
	// component's discriminator string in reply to Spawn and NewSpace;
	// nil otherwise.
	StateValue any
	// SuppressID populated only in reply to Suppress.
	SuppressID *uint64
	// EntryValue populated only in reply to GetEntry.
	EntryValue []byte
}

type ErrorBody struct {
	Code    ErrorCode
	Message string
}

type EventBody struct {
	Serialized []byte
}
