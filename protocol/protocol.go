// Package protocol implements the framed VLQ command link between the
// inverter firmware and host tools.
package protocol

// Version is reported by the identify dictionary.
const Version = "gosine-0.3.0"

// Frame layout: len, seq, payload..., crc hi, crc lo, sync.
const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePayloadMax  = MessageLengthMax - MessageLengthMin
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageValueSync   = 0x7E
	MessageDest        = 0x10
	MessageSeqMask     = 0x0F

	// MessageMax sizes the scratch output, which may hold several frames.
	MessageMax = 512
)

// NextSequence advances a sequence byte within the 0x10..0x1F window.
func NextSequence(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}
