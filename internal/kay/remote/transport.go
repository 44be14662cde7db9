// Package remote carries actor messages between processes. An Envelope wraps
// a message's byte image with addressing metadata; because payloads are
// relocatable images, delivery on the far side is a plain mailbox enqueue
// with no per-type serialization.
package remote

import "time"

// Envelope is the transport-level wrapper for one actor message.
type Envelope struct {
	SenderNode    string `json:"senderNode"`
	ReceiverNode  string `json:"receiverNode"`
	Sender        uint64 `json:"sender,omitempty"`
	Recipient     uint64 `json:"recipient"`
	Tag           uint32 `json:"tag"`
	Image         []byte `json:"image"`
	TimestampUnix int64  `json:"timestampUnix"`
}

// Handler is invoked by a Transport upon message arrival.
type Handler func(Envelope) error

// Transport abstracts a bidirectional messaging transport.
type Transport interface {
	Start(address string, handler Handler) error
	Stop() error
	Address() string
	Send(to string, env Envelope) error
}

// Codec defines envelope serialization for wire transports.
type Codec interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
	ContentType() string
}

// NowUnix returns current time in unix nanos for stamping envelopes.
func NowUnix() int64 { return time.Now().UnixNano() }
