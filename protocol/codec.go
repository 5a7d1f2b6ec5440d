package protocol

import (
	"cim/errors"
	"encoding/binary"
	goerrors "errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Frame layout:
//
//	magic(2) | version(1) | body length uint32 BE (4) | body
//
// The body is a protobuf wire message: 1 type, 2 sequence, 3 correlation id,
// 4 payload (structpb.Struct of string values).
const (
	magic0       byte = 0xC1
	magic1       byte = 0x4D
	Version      byte = 1
	HeaderSize        = 7
	MaxFrameSize      = 1 << 20
	// MaxTextSize bounds a single user-supplied payload value so that the
	// frame carrying it stays under MaxFrameSize.
	MaxTextSize = MaxFrameSize - 4<<10
)

const (
	fieldType        protowire.Number = 1
	fieldSequence    protowire.Number = 2
	fieldCorrelation protowire.Number = 3
	fieldPayload     protowire.Number = 4
)

var payloadMarshal = proto.MarshalOptions{Deterministic: true}

// Encode serializes a frame into one self-delimited unit.
func Encode(f Frame) ([]byte, error) {
	if !f.Type.Valid() {
		return nil, fmt.Errorf("encode: unknown frame type %d", uint8(f.Type))
	}
	body := protowire.AppendTag(nil, fieldType, protowire.VarintType)
	body = protowire.AppendVarint(body, uint64(f.Type))
	if f.Sequence != 0 {
		body = protowire.AppendTag(body, fieldSequence, protowire.VarintType)
		body = protowire.AppendVarint(body, f.Sequence)
	}
	if f.CorrelationID != "" {
		body = protowire.AppendTag(body, fieldCorrelation, protowire.BytesType)
		body = protowire.AppendString(body, f.CorrelationID)
	}
	if f.Payload != nil {
		raw, err := marshalPayload(f.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		body = protowire.AppendTag(body, fieldPayload, protowire.BytesType)
		body = protowire.AppendBytes(body, raw)
	}
	if len(body) > MaxFrameSize {
		return nil, fmt.Errorf("encode: frame body of %d bytes exceeds %d", len(body), MaxFrameSize)
	}

	out := make([]byte, HeaderSize, HeaderSize+len(body))
	out[0], out[1], out[2] = magic0, magic1, Version
	binary.BigEndian.PutUint32(out[3:HeaderSize], uint32(len(body)))
	return append(out, body...), nil
}

// Decode extracts the first complete frame of buf and returns the remaining bytes.
// It never consumes a partial unit: on errors.ErrNeedMoreData rest is buf itself.
// A *errors.ProtocolError means the unit was corrupt but its boundaries were intact;
// rest then starts right after it. A *errors.StreamCorruptedError means framing is lost.
func Decode(buf []byte) (Frame, []byte, error) {
	if err := checkPreamble(buf); err != nil {
		return Frame{}, buf, err
	}
	if len(buf) < HeaderSize {
		return Frame{}, buf, errors.ErrNeedMoreData
	}
	length := binary.BigEndian.Uint32(buf[3:HeaderSize])
	if length == 0 || length > MaxFrameSize {
		return Frame{}, buf, &errors.StreamCorruptedError{
			Offset: 3,
			Reason: fmt.Sprintf("body length %d outside 1..%d", length, MaxFrameSize),
		}
	}
	total := HeaderSize + int(length)
	if len(buf) < total {
		return Frame{}, buf, errors.ErrNeedMoreData
	}

	frame, perr := decodeBody(buf[HeaderSize:total])
	if perr != nil {
		perr.Offset += HeaderSize
		perr.Consumed = total
		return Frame{}, buf[total:], perr
	}
	return frame, buf[total:], nil
}

func checkPreamble(buf []byte) error {
	expected := [3]byte{magic0, magic1, Version}
	for i := 0; i < len(expected) && i < len(buf); i++ {
		if buf[i] != expected[i] {
			return &errors.StreamCorruptedError{
				Offset: i,
				Reason: fmt.Sprintf("expected header byte 0x%02x, found 0x%02x", expected[i], buf[i]),
			}
		}
	}
	return nil
}

func decodeBody(b []byte) (Frame, *errors.ProtocolError) {
	var (
		frame   Frame
		offset  int
		hasType bool
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Frame{}, protocolError(offset, "field tag", protowire.ParseError(n).Error())
		}
		offset, b = offset+n, b[n:]

		switch num {
		case fieldType, fieldSequence:
			if typ != protowire.VarintType {
				return Frame{}, protocolError(offset, "varint", fmt.Sprintf("wire type %d", typ))
			}
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Frame{}, protocolError(offset, "varint", protowire.ParseError(n).Error())
			}
			if num == fieldType {
				ft := FrameType(v)
				if v > 0xff || !ft.Valid() {
					return Frame{}, protocolError(offset, "known frame type", fmt.Sprintf("type tag %d", v))
				}
				frame.Type, hasType = ft, true
			} else {
				frame.Sequence = v
			}
			offset, b = offset+n, b[n:]
		case fieldCorrelation, fieldPayload:
			if typ != protowire.BytesType {
				return Frame{}, protocolError(offset, "length-delimited field", fmt.Sprintf("wire type %d", typ))
			}
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Frame{}, protocolError(offset, "length-delimited field", protowire.ParseError(n).Error())
			}
			if num == fieldCorrelation {
				frame.CorrelationID = string(v)
			} else {
				payload, err := unmarshalPayload(v)
				if err != nil {
					return Frame{}, protocolError(offset, "string payload", err.Error())
				}
				frame.Payload = payload
			}
			offset, b = offset+n, b[n:]
		default:
			// Unknown fields are skipped so newer servers can add them.
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Frame{}, protocolError(offset, "field value", protowire.ParseError(n).Error())
			}
			offset, b = offset+n, b[n:]
		}
	}
	if !hasType {
		return Frame{}, protocolError(offset, "frame type", "none")
	}
	return frame, nil
}

func protocolError(offset int, expected, found string) *errors.ProtocolError {
	return &errors.ProtocolError{Offset: offset, Expected: expected, Found: found}
}

func marshalPayload(p Payload) ([]byte, error) {
	fields := make(map[string]*structpb.Value, len(p))
	for k, v := range p {
		fields[k] = structpb.NewStringValue(v)
	}
	return payloadMarshal.Marshal(&structpb.Struct{Fields: fields})
}

func unmarshalPayload(raw []byte) (Payload, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	payload := make(Payload, len(s.GetFields()))
	for k, v := range s.GetFields() {
		str, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, fmt.Errorf("field %q is not a string", k)
		}
		payload[k] = str.StringValue
	}
	return payload, nil
}

// Decoder reads frames from a byte stream, accumulating partial reads.
type Decoder struct {
	r      io.Reader
	buf    []byte
	chunk  []byte
	offset int64
	err    error
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r, chunk: make([]byte, 4096)}
}

// Offset is the number of stream bytes consumed so far.
func (d *Decoder) Offset() int64 { return d.offset }

// Next blocks until a complete frame is available. A *errors.ProtocolError is
// returned once the corrupt unit has been discarded; Next may be called again.
// Any other error is terminal for the stream.
func (d *Decoder) Next() (Frame, error) {
	for {
		if len(d.buf) > 0 {
			frame, rest, err := Decode(d.buf)
			switch {
			case err == nil:
				d.consume(rest)
				return frame, nil
			case errors.IsProtocolError(err):
				d.consume(rest)
				return Frame{}, err
			case !goerrors.Is(err, errors.ErrNeedMoreData):
				return Frame{}, err
			}
		}
		if d.err != nil {
			if goerrors.Is(d.err, io.EOF) && len(d.buf) > 0 {
				return Frame{}, io.ErrUnexpectedEOF
			}
			return Frame{}, d.err
		}
		n, err := d.r.Read(d.chunk)
		d.buf = append(d.buf, d.chunk[:n]...)
		if err != nil {
			d.err = err
		}
	}
}

func (d *Decoder) consume(rest []byte) {
	d.offset += int64(len(d.buf) - len(rest))
	d.buf = append(d.buf[:0], rest...)
}
