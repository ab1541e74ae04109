package ultravox

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/matryer/is"
)

func TestDecodeTranscript(t *testing.T) {
	is := is.New(t)

	msg, err := DecodeServerMessage([]byte(`{"type":"transcript","role":"agent","text":"Hello there","final":true}`))
	is.NoErr(err)
	is.Equal(msg.Type, TypeTranscript)
	is.Equal(msg.Role, RoleAgent)
	is.Equal(msg.TranscriptText(), "Hello there")
	is.True(msg.Final)
}

func TestDecodeTranscriptDelta(t *testing.T) {
	is := is.New(t)

	msg, err := DecodeServerMessage([]byte(`{"type":"transcript","role":"user","delta":"I was say"}`))
	is.NoErr(err)
	is.Equal(msg.TranscriptText(), "I was say") // delta used when text is absent
	is.True(!msg.Final)
}

func TestDecodeToolInvocation(t *testing.T) {
	is := is.New(t)

	raw := `{
		"type": "client_tool_invocation",
		"toolName": "schedule_meeting",
		"invocationId": "inv-42",
		"parameters": {"name": "Ada", "email": "ada@example.com"}
	}`
	msg, err := DecodeServerMessage([]byte(raw))
	is.NoErr(err)
	is.Equal(msg.Type, TypeClientToolInvocation)
	is.Equal(msg.ToolName, "schedule_meeting")
	is.Equal(msg.InvocationID, "inv-42")
	is.Equal(msg.Parameters["name"], "Ada")
}

func TestDecodeUnknownTypePasses(t *testing.T) {
	is := is.New(t)

	msg, err := DecodeServerMessage([]byte(`{"type":"new_stage","foo":"bar"}`))
	is.NoErr(err)
	is.Equal(msg.Type, "new_stage")
}

func TestDecodeMalformed(t *testing.T) {
	is := is.New(t)

	_, err := DecodeServerMessage([]byte(`not json`))
	is.True(errors.Is(err, ErrMalformedMessage))

	_, err = DecodeServerMessage([]byte(`{"role":"agent"}`))
	is.True(errors.Is(err, ErrMalformedMessage)) // missing type discriminator
}

func TestToolResultWireShape(t *testing.T) {
	is := is.New(t)

	data, err := json.Marshal(SuccessResult("inv-1", "Call ended successfully"))
	is.NoErr(err)

	var wire map[string]any
	is.NoErr(json.Unmarshal(data, &wire))
	is.Equal(wire["type"], "client_tool_result")
	is.Equal(wire["invocationId"], "inv-1")
	is.Equal(wire["result"], "Call ended successfully")
	is.Equal(wire["response_type"], "tool-response")
	_, hasErr := wire["error_type"]
	is.True(!hasErr) // success results omit the error pair

	data, err = json.Marshal(ErrorResult("inv-2", "not-implemented", "no such tool"))
	is.NoErr(err)
	wire = map[string]any{}
	is.NoErr(json.Unmarshal(data, &wire))
	is.Equal(wire["error_type"], "not-implemented")
	is.Equal(wire["error_message"], "no such tool")
	_, hasResult := wire["result"]
	is.True(!hasResult)
}
