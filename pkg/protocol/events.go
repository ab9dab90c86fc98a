package protocol

import "time"

// EventKind identifies the variant of an InboundEvent
type EventKind int

const (
	KindUnrecognized EventKind = iota
	KindSystemNotice
	KindGeneralMessage
	KindPrivateMessage
	KindFileMessage
	KindTypingAggregate
	KindTypingPrivate
)

// String returns the metric/log label for the kind
func (k EventKind) String() string {
	switch k {
	case KindSystemNotice:
		return "system_notice"
	case KindGeneralMessage:
		return "general_message"
	case KindPrivateMessage:
		return "private_message"
	case KindFileMessage:
		return "file_message"
	case KindTypingAggregate:
		return "typing_aggregate"
	case KindTypingPrivate:
		return "typing_private"
	default:
		return "unrecognized"
	}
}

// InboundEvent is the typed result of decoding one inbound frame.
// Exactly one of the concrete types below implements it per frame.
type InboundEvent interface {
	Kind() EventKind
}

// SystemNotice is a server announcement such as "alice entered the chat."
type SystemNotice struct {
	Text string
}

// GeneralMessage is a message in the shared general chat (legacy plain-text form)
type GeneralMessage struct {
	Sender    string
	Content   string
	Timestamp time.Time
	// RawTimestamp holds the bracketed text as sent; Timestamp is zero when it could not be parsed
	RawTimestamp string
}

// PrivateMessage is a structured message between exactly two identities
type PrivateMessage struct {
	Sender       string
	Receiver     string
	Content      string
	Timestamp    time.Time
	RawTimestamp string
}

// FileMessage announces an uploaded file. Receiver is empty for the general chat.
type FileMessage struct {
	Sender       string
	Receiver     string
	Filename     string
	Path         string
	Timestamp    time.Time
	RawTimestamp string
}

// IsGeneral reports whether the file was posted to the general chat
func (m FileMessage) IsGeneral() bool {
	return m.Receiver == ""
}

// TypingAggregate is the server-rendered "who is typing" sentence for the general chat
type TypingAggregate struct {
	Text string
	// Stopped is set for the "nobody is typing" sentinel forms
	Stopped bool
}

// TypingPrivate signals typing activity in a private chat
type TypingPrivate struct {
	Sender    string
	Recipient string
	Active    bool
}

// Unrecognized carries a frame that matched no known shape
type Unrecognized struct {
	Raw string
}

func (SystemNotice) Kind() EventKind    { return KindSystemNotice }
func (GeneralMessage) Kind() EventKind  { return KindGeneralMessage }
func (PrivateMessage) Kind() EventKind  { return KindPrivateMessage }
func (FileMessage) Kind() EventKind     { return KindFileMessage }
func (TypingAggregate) Kind() EventKind { return KindTypingAggregate }
func (TypingPrivate) Kind() EventKind   { return KindTypingPrivate }
func (Unrecognized) Kind() EventKind    { return KindUnrecognized }

// Counterpart returns whichever end of a two-party message is not self
func Counterpart(self, sender, receiver string) string {
	if sender == self {
		return receiver
	}
	return sender
}
