package session

import (
	"fmt"
	"strings"

	"github.com/danmuck/edgegate/internal/protocol/frame"
	"github.com/danmuck/edgegate/internal/protocol/schema"
	"github.com/danmuck/edgegate/internal/protocol/tlv"
)

func (r *Request) Validate() error {
	if strings.TrimSpace(r.Verb) == "" {
		return fmt.Errorf("request missing verb")
	}
	if !strings.HasPrefix(r.Path, "/") {
		return fmt.Errorf("request path must be absolute: %q", r.Path)
	}
	for i, h := range r.Headers {
		if h.Key == "" || strings.IndexByte(h.Key, tlv.PairSep) >= 0 {
			return fmt.Errorf("request header[%d] has invalid key %q", i, h.Key)
		}
	}
	return nil
}

// EncodeRequestFrame builds the request frame for correlation id messageID.
func EncodeRequestFrame(messageID uint64, req *Request) (frame.Frame, error) {
	if err := req.Validate(); err != nil {
		return frame.Frame{}, err
	}
	fields := make([]tlv.Field, 0, 3+len(req.Headers))
	fields = append(fields,
		tlv.String(schema.FieldVerb, req.Verb),
		tlv.String(schema.FieldPath, req.Path),
	)
	for _, h := range req.Headers {
		fields = append(fields, tlv.Pair(schema.FieldHeader, h.Key, h.Value))
	}
	if len(req.Body) > 0 {
		fields = append(fields, tlv.Bytes(schema.FieldBody, req.Body))
	}
	if err := schema.Validate(schema.MsgRequest, fields); err != nil {
		return frame.Frame{}, err
	}
	return frame.Frame{
		Header: frame.Header{
			MessageID:   messageID,
			MessageType: schema.MsgRequest,
		},
		Payload: tlv.EncodeFields(fields),
	}, nil
}

func DecodeRequestFrame(f frame.Frame) (*Request, error) {
	if f.IsResponse() || f.Header.MessageType != schema.MsgRequest {
		return nil, fmt.Errorf("session: frame %d is not a request", f.Header.MessageID)
	}
	fields, err := tlv.DecodeFields(f.Payload)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(schema.MsgRequest, fields); err != nil {
		return nil, err
	}
	req := &Request{
		Verb: getString(fields, schema.FieldVerb),
		Path: getString(fields, schema.FieldPath),
	}
	for _, hf := range tlv.GetAll(fields, schema.FieldHeader) {
		key, value, err := tlv.SplitPair(hf)
		if err != nil {
			return nil, err
		}
		req.Headers = append(req.Headers, Header{Key: key, Value: value})
	}
	if bf, ok := tlv.GetField(fields, schema.FieldBody); ok {
		req.Body = bf.Value
	}
	return req, nil
}

// EncodeResponseFrame tags resp with the correlation id of the request it answers.
func EncodeResponseFrame(messageID uint64, resp *Response) (frame.Frame, error) {
	if resp == nil {
		return frame.Frame{}, fmt.Errorf("session: nil response")
	}
	if resp.Status < 100 || resp.Status > 999 {
		return frame.Frame{}, fmt.Errorf("session: invalid status %d", resp.Status)
	}
	fields := []tlv.Field{tlv.U32(schema.FieldStatus, uint32(resp.Status))}
	if len(resp.Body) > 0 {
		fields = append(fields, tlv.Bytes(schema.FieldBody, resp.Body))
	}
	return frame.Frame{
		Header: frame.Header{
			MessageID:   messageID,
			MessageType: schema.MsgResponse,
			Flags:       frame.FlagIsResponse,
		},
		Payload: tlv.EncodeFields(fields),
	}, nil
}

func DecodeResponseFrame(f frame.Frame) (*Response, error) {
	if !f.IsResponse() || f.Header.MessageType != schema.MsgResponse {
		return nil, fmt.Errorf("session: frame %d is not a response", f.Header.MessageID)
	}
	fields, err := tlv.DecodeFields(f.Payload)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(schema.MsgResponse, fields); err != nil {
		return nil, err
	}
	sf, _ := tlv.GetField(fields, schema.FieldStatus)
	status, err := tlv.U32FromBytes(sf.Value)
	if err != nil {
		return nil, err
	}
	resp := &Response{Status: int(status)}
	if bf, ok := tlv.GetField(fields, schema.FieldBody); ok {
		resp.Body = bf.Value
	}
	return resp, nil
}

func getString(fields []tlv.Field, id uint16) string {
	f, _ := tlv.GetField(fields, id)
	return string(f.Value)
}
