package schema

import (
	"fmt"

	"github.com/danmuck/edgegate/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

// Message type IDs carried in frame.Header.MessageType.
const (
	MsgRequest  uint32 = 1
	MsgResponse uint32 = 2
)

// Field IDs.
const (
	FieldVerb   uint16 = 1
	FieldPath   uint16 = 2
	FieldHeader uint16 = 3
	FieldBody   uint16 = 4
	FieldStatus uint16 = 5
)

type Requirement struct {
	ID   uint16
	Type uint8
}

type ValidationError struct {
	MessageType uint32
	FieldID     uint16
	Reason      string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: message_type=%d: %s", e.MessageType, e.Reason)
	}
	return fmt.Sprintf("schema: message_type=%d field=%d: %s", e.MessageType, e.FieldID, e.Reason)
}

var requirements = map[uint32][]Requirement{
	MsgRequest: {
		{FieldVerb, tlv.TypeString},
		{FieldPath, tlv.TypeString},
	},
	MsgResponse: {
		{FieldStatus, tlv.TypeU32},
	},
}

// optional fields are type-checked when present.
var optional = map[uint16]uint8{
	FieldHeader: tlv.TypeBytes,
	FieldBody:   tlv.TypeBytes,
}

// Validate enforces required fields and field types for a message type.
// Unknown field ids are ignored.
func Validate(messageType uint32, fields []tlv.Field) error {
	reqs, ok := requirements[messageType]
	if !ok {
		log.Debug().Uint32("message_type", messageType).Msg("schema.Validate unknown message_type")
		return ValidationError{MessageType: messageType, Reason: "unknown message_type"}
	}
	for _, req := range reqs {
		f, found := tlv.GetField(fields, req.ID)
		if !found {
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "missing required field"}
		}
		if f.Type != req.Type {
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "type mismatch"}
		}
	}
	for _, f := range fields {
		if want, ok := optional[f.ID]; ok && f.Type != want {
			return ValidationError{MessageType: messageType, FieldID: f.ID, Reason: "type mismatch"}
		}
	}
	return nil
}
