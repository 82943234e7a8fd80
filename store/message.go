package store

// IncomingMessage records one inbound message before routing, so that the
// turn's last_message variable and the message log agree.
type IncomingMessage struct {
	ID int32

	// Sender may hold either a cleartext identifier or a protected one.
	Sender string

	Message    string
	ReceivedTs int64

	// TransmissionMetadata is a JSON object of transport details, including
	// the message_channel key when the transport reported one.
	TransmissionMetadata string
}

type FindIncomingMessage struct {
	ID    *int32
	Limit *int
}

// OutgoingMessage is a queued outbound message. Delivery is owned by the
// transport collaborator; rows whose message carries the dialog: prefix are
// intercepted at flush time and routed to the launch coordinator instead.
type OutgoingMessage struct {
	ID  int32
	UID string

	// Destination may hold either a cleartext identifier or a protected one.
	Destination string

	SendTs  int64
	Message string

	// MessageMetadata and TransmissionMetadata are JSON objects.
	MessageMetadata      string
	TransmissionMetadata string

	// SentTs is nil while the message is pending.
	SentTs *int64

	// ErrorMessage carries the structured failure for launch requests that
	// could not be satisfied.
	ErrorMessage *string
}

// IsPending reports whether the message has neither been sent nor errored.
func (m *OutgoingMessage) IsPending() bool {
	return m.SentTs == nil && m.ErrorMessage == nil
}

type FindOutgoingMessage struct {
	ID  *int32
	UID *string

	// Pending filters on messages not yet sent and not errored.
	Pending *bool

	Limit *int
}

type UpdateOutgoingMessage struct {
	ID int32

	Destination  *string
	SentTs       *int64
	ErrorMessage *string
}
