package server

// Decoder turns one raw frame into a decoded message. A nil Message with a
// nil error means "accepted, but no complete message yet" for TCP chunking.
// For UDP the same nil/nil result is treated as "discard this datagram
// silently" instead — see the Open Questions in SPEC_FULL.md.
type Decoder[M any] func(raw []byte) (*M, error)

// Processor hands a fully decoded message to its downstream sink.
type Processor[M any] func(msg M) error

// Kind discriminates the outcome of feeding one frame through a Decoder.
type Kind int

const (
	Incomplete Kind = iota
	Complete
	Error
)

// Received is the tagged union flowing from a Receiver to the EventLoop.
type Received[M any] struct {
	Kind    Kind
	Message M
	Err     error
}

// decodeToReceived always invokes decode and folds the result into a
// Received value: a nil message with a nil error becomes Incomplete. Used by
// the TCP Framer, where "more data, but make a note of the attempt" is the
// meaning of that result.
func decodeToReceived[M any](decode Decoder[M], raw []byte) Received[M] {
	msg, err := decode(raw)
	if err != nil {
		return Received[M]{Kind: Error, Err: err}
	}
	if msg != nil {
		return Received[M]{Kind: Complete, Message: *msg}
	}
	return Received[M]{Kind: Incomplete}
}
