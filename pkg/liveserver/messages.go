package liveserver

// Message is one outbound WebSocket text frame. Payload is sent verbatim:
// event messages carry the raw JSON encoding of a domain event, chat
// messages carry plain text. Kind is used for logging and metrics only
// and is never serialized.
type Message struct {
	Kind    string
	Payload []byte
}

// Message kind constants
const (
	KindTick  = "tick"
	KindOrder = "order"
	KindTrade = "trade"
	KindChat  = "chat"
)

// NewTickMessage wraps a serialized tick event.
func NewTickMessage(payload []byte) Message {
	return Message{Kind: KindTick, Payload: payload}
}

// NewOrderMessage wraps a serialized order event.
func NewOrderMessage(payload []byte) Message {
	return Message{Kind: KindOrder, Payload: payload}
}

// NewTradeMessage wraps a serialized trade event.
func NewTradeMessage(payload []byte) Message {
	return Message{Kind: KindTrade, Payload: payload}
}

// NewChatMessage wraps a chat/echo text line.
func NewChatMessage(text string) Message {
	return Message{Kind: KindChat, Payload: []byte(text)}
}
