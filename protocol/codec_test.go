package protocol

import (
	"bytes"
	"cim/errors"
	goerrors "errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func sampleFrames() []Frame {
	return []Frame{
		{Type: TypeAuth, Sequence: 1, CorrelationID: "c-1", Payload: Payload{KeyUsername: "alice", KeyPassword: "s3cret"}},
		{Type: TypeMessage, Sequence: 2, CorrelationID: "c-2", Payload: Payload{KeyChannel: "general", KeyBody: "héllo, wörld"}},
		{Type: TypePing, Sequence: 3},
		{Type: TypePong, Sequence: 4, CorrelationID: "3"},
		{Type: TypeAck, Sequence: 5, CorrelationID: "c-2", Payload: Payload{KeyMessageID: "srv-42"}},
		{Type: TypeError, Sequence: 6, Payload: Payload{KeyReason: "boom", KeyFatal: "false"}},
		{Type: TypeWho, Sequence: 1 << 40, Payload: Payload{KeyMembers: "alice,bob"}},
		{Type: TypeWho, Sequence: 7, Payload: Payload{}},
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	for _, want := range sampleFrames() {
		t.Run(want.Type.String(), func(t *testing.T) {
			req := require.New(t)
			raw, err := Encode(want)
			req.NoError(err)

			got, rest, err := Decode(raw)
			req.NoError(err)
			req.Empty(rest)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCodec_Encode_IsDeterministic(t *testing.T) {
	req := require.New(t)
	f := Frame{Type: TypeMessage, Payload: Payload{"a": "1", "b": "2", "c": "3", "d": "4"}}
	first, err := Encode(f)
	req.NoError(err)
	for i := 0; i < 20; i++ {
		again, err := Encode(f)
		req.NoError(err)
		req.Equal(first, again)
	}
}

func TestCodec_Encode_RejectsUnknownType(t *testing.T) {
	_, err := Encode(Frame{Type: FrameType(200)})
	require.Error(t, err)
}

func TestCodec_Encode_RejectsUnencodableFrames(t *testing.T) {
	req := require.New(t)

	// Given a payload value that is not valid UTF-8
	_, err := Encode(Frame{Type: TypeMessage, Payload: Payload{KeyBody: "caf\xe9"}})

	// Then the frame cannot be encoded
	req.Error(err)

	// Given a payload value at the text bound, the frame still fits
	raw, err := Encode(Frame{Type: TypeMessage, CorrelationID: "c-1", Payload: Payload{
		KeyChannel: "general", KeyProvisionalID: "p-1", KeyBody: strings.Repeat("x", MaxTextSize),
	}})
	req.NoError(err)
	req.LessOrEqual(len(raw), HeaderSize+MaxFrameSize)

	// When a value is larger than a frame
	_, err = Encode(Frame{Type: TypeMessage, Payload: Payload{KeyBody: strings.Repeat("x", MaxFrameSize)}})

	// Then the frame cannot be encoded
	req.Error(err)
}

func TestCodec_Decode_NeedMoreData(t *testing.T) {
	req := require.New(t)
	raw, err := Encode(sampleFrames()[1])
	req.NoError(err)

	// Given every strict prefix of a valid frame
	for i := 0; i < len(raw); i++ {
		// When decoding it
		_, rest, err := Decode(raw[:i])
		// Then nothing is consumed
		req.ErrorIs(err, errors.ErrNeedMoreData)
		req.Len(rest, i)
	}
}

func TestCodec_Decode_ByteByByteMatchesWhole(t *testing.T) {
	req := require.New(t)
	var stream []byte
	for _, f := range sampleFrames() {
		raw, err := Encode(f)
		req.NoError(err)
		stream = append(stream, raw...)
	}

	whole := decodeAll(t, stream, len(stream))
	oneByOne := decodeAll(t, stream, 1)
	sevens := decodeAll(t, stream, 7)

	if diff := cmp.Diff(sampleFrames(), whole); diff != "" {
		t.Fatalf("whole decode mismatch (-want +got):\n%s", diff)
	}
	req.Empty(cmp.Diff(whole, oneByOne))
	req.Empty(cmp.Diff(whole, sevens))
}

// decodeAll feeds the decoder an accumulating buffer growing by step bytes.
func decodeAll(t *testing.T, stream []byte, step int) []Frame {
	t.Helper()
	var (
		frames []Frame
		buf    []byte
	)
	for i := 0; i < len(stream); i += step {
		end := min(i+step, len(stream))
		buf = append(buf, stream[i:end]...)
		for {
			f, rest, err := Decode(buf)
			if goerrors.Is(err, errors.ErrNeedMoreData) {
				break
			}
			require.NoError(t, err)
			frames = append(frames, f)
			buf = rest
		}
	}
	require.Empty(t, buf)
	return frames
}

func TestCodec_Decode_UnknownTypeIsRecoverable(t *testing.T) {
	req := require.New(t)
	good, err := Encode(Frame{Type: TypePing, Sequence: 9})
	req.NoError(err)

	// Given a well framed unit carrying an unknown type tag, followed by a valid frame
	body := protowire.AppendTag(nil, fieldType, protowire.VarintType)
	body = protowire.AppendVarint(body, 77)
	bad := frameWithBody(body)
	stream := append(append([]byte{}, bad...), good...)

	// When decoding
	_, rest, err := Decode(stream)

	// Then a ProtocolError covering exactly the bad unit is returned
	var perr *errors.ProtocolError
	req.True(goerrors.As(err, &perr))
	req.Equal(len(bad), perr.Consumed)
	req.Equal("known frame type", perr.Expected)
	req.Equal(HeaderSize+1, perr.Offset)

	// And the stream is still in sync
	f, rest, err := Decode(rest)
	req.NoError(err)
	req.Empty(rest)
	req.Equal(TypePing, f.Type)
	req.Equal(uint64(9), f.Sequence)
}

func TestCodec_Decode_TruncatedPayloadIsRecoverable(t *testing.T) {
	req := require.New(t)
	body := protowire.AppendTag(nil, fieldType, protowire.VarintType)
	body = protowire.AppendVarint(body, uint64(TypeMessage))
	body = protowire.AppendTag(body, fieldPayload, protowire.BytesType)
	body = protowire.AppendVarint(body, 50) // claims 50 bytes, carries 3
	body = append(body, 1, 2, 3)

	_, rest, err := Decode(frameWithBody(body))
	req.True(errors.IsProtocolError(err))
	req.Empty(rest)
}

func TestCodec_Decode_BadMagicIsCorrupted(t *testing.T) {
	req := require.New(t)
	raw, err := Encode(Frame{Type: TypePing})
	req.NoError(err)
	raw[0] = 0x00

	_, _, err = Decode(raw)
	req.True(errors.IsStreamCorrupted(err))
}

func TestCodec_Decode_OversizedLengthIsCorrupted(t *testing.T) {
	req := require.New(t)
	raw := []byte{magic0, magic1, Version, 0xff, 0xff, 0xff, 0xff}

	_, _, err := Decode(raw)
	req.True(errors.IsStreamCorrupted(err))
}

func TestDecoder_SkipsCorruptUnitAndContinues(t *testing.T) {
	req := require.New(t)
	body := protowire.AppendTag(nil, fieldType, protowire.VarintType)
	body = protowire.AppendVarint(body, 99)
	first, err := Encode(Frame{Type: TypeMessage, Sequence: 1, Payload: Payload{KeyBody: "a"}})
	req.NoError(err)
	last, err := Encode(Frame{Type: TypeMessage, Sequence: 3, Payload: Payload{KeyBody: "c"}})
	req.NoError(err)

	stream := bytes.Join([][]byte{first, frameWithBody(body), last}, nil)
	dec := NewDecoder(iotestOneByteReader{r: bytes.NewReader(stream)})

	f, err := dec.Next()
	req.NoError(err)
	req.Equal("a", f.Payload.Get(KeyBody))

	_, err = dec.Next()
	req.True(errors.IsProtocolError(err))

	f, err = dec.Next()
	req.NoError(err)
	req.Equal("c", f.Payload.Get(KeyBody))

	_, err = dec.Next()
	req.ErrorIs(err, io.EOF)
	req.Equal(int64(len(stream)), dec.Offset())
}

func TestDecoder_TruncatedStreamIsUnexpectedEOF(t *testing.T) {
	req := require.New(t)
	raw, err := Encode(Frame{Type: TypePing})
	req.NoError(err)

	dec := NewDecoder(bytes.NewReader(raw[:len(raw)-1]))
	_, err = dec.Next()
	req.ErrorIs(err, io.ErrUnexpectedEOF)
}

func TestPayload_Helpers(t *testing.T) {
	req := require.New(t)
	p := Payload{KeyMembers: "alice, bob,,carol", KeyFatal: "true", KeyLengthLimit: "280"}

	req.Equal([]string{"alice", "bob", "carol"}, p.List(KeyMembers))
	req.True(p.Bool(KeyFatal))
	req.False(p.Bool(KeyResumed))
	req.Equal(280, p.Int(KeyLengthLimit, -1))
	req.Equal(-1, p.Int(KeyCode, -1))
	req.Equal("", Payload(nil).Get(KeyBody))
}

func frameWithBody(body []byte) []byte {
	out := []byte{magic0, magic1, Version, 0, 0, 0, 0}
	out[3] = byte(len(body) >> 24)
	out[4] = byte(len(body) >> 16)
	out[5] = byte(len(body) >> 8)
	out[6] = byte(len(body))
	return append(out, body...)
}

type iotestOneByteReader struct {
	r io.Reader
}

func (o iotestOneByteReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return o.r.Read(p[:1])
}
