package normalize

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_BodyRepresentations(t *testing.T) {
	n := New(Options{})

	tests := []struct {
		name string
		body any
		want string
	}{
		{name: "bytes", body: []byte(`{ "event": "x" }`), want: `{"event":"x"}`},
		{name: "string", body: "{\n  \"event\": \"x\"\n}", want: `{"event":"x"}`},
		{name: "raw message", body: json.RawMessage(`[1, 2, 3]`), want: `[1,2,3]`},
		{name: "reader", body: strings.NewReader(`{"event" : "x"}`), want: `{"event":"x"}`},
		{name: "chunked reader", body: iotest.OneByteReader(strings.NewReader(`{"a":1}`)), want: `{"a":1}`},
		{name: "decoded map", body: map[string]any{"event": "x"}, want: `{"event":"x"}`},
		{name: "decoded struct", body: struct {
			Event string `json:"event"`
		}{Event: "<b>"}, want: `{"event":"<b>"}`},
		{name: "scalar text", body: `42`, want: `42`},
		{name: "byte order mark", body: append([]byte{0xEF, 0xBB, 0xBF}, []byte(`{"a":1}`)...), want: `{"a":1}`},
		{name: "key order preserved", body: `{"z":1,"a":2}`, want: `{"z":1,"a":2}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := n.Normalize(tt.body, "alerts")
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(p.Body))
			assert.Equal(t, "alerts", p.Label)
		})
	}
}

func TestNormalize_MissingPayload(t *testing.T) {
	n := New(Options{})

	bodies := map[string]any{
		"nil":               nil,
		"empty bytes":       []byte{},
		"nil bytes":         []byte(nil),
		"empty string":      "",
		"whitespace":        "  \n\t ",
		"json null":         "null",
		"empty reader":      strings.NewReader(""),
		"nil map":           map[string]any(nil),
		"json false":        "false",
		"json zero":         "0",
		"negative zero":     "-0",
		"zero float":        " 0.0 ",
		"zero exponent":     "0e10",
		"json empty string": `""`,
		"decoded false":     false,
		"decoded zero":      0,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			_, err := n.Normalize(body, "alerts")
			assert.ErrorIs(t, err, ErrMissingPayload)
		})
	}
}

func TestNormalize_InvalidJSON(t *testing.T) {
	n := New(Options{})

	for _, body := range []string{`{"event":`, `not json`, `{"a":1} trailing`, `{'a':1}`} {
		t.Run(body, func(t *testing.T) {
			_, err := n.Normalize(body, "alerts")
			assert.ErrorIs(t, err, ErrInvalidPayloadFormat)
		})
	}

	_, err := n.Normalize(map[string]any{"f": func() {}}, "alerts")
	assert.ErrorIs(t, err, ErrInvalidPayloadFormat)
}

func TestNormalize_InvalidUTF8IsReplaced(t *testing.T) {
	n := New(Options{})

	p, err := n.Normalize([]byte("{\"a\":\"\xff\"}"), "alerts")
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":\"\uFFFD\"}", string(p.Body))
}

func TestNormalize_MaxBodySize(t *testing.T) {
	n := New(Options{MaxBodySize: 8})

	_, err := n.Normalize(strings.NewReader(`{"event":"too long"}`), "alerts")
	assert.ErrorIs(t, err, ErrPayloadTooLarge)

	p, err := n.Normalize(strings.NewReader(`{"a":1}`), "alerts")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(p.Body))
}

func TestNormalize_ReaderError(t *testing.T) {
	n := New(Options{})
	readErr := errors.New("connection reset")

	_, err := n.Normalize(iotest.ErrReader(readErr), "alerts")
	assert.ErrorIs(t, err, readErr)
}

func TestNormalize_LabelResolution(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		body    string
		query   string
		want    string
		wantErr error
	}{
		{name: "query wins", body: `{"type":"fromBody"}`, query: "fromQuery", want: "fromQuery"},
		{name: "body fallback", body: `{"type":"fromBody"}`, want: "fromBody"},
		{name: "custom field", opts: Options{TypeField: "kind"}, body: `{"kind":"k1","type":"t"}`, want: "k1"},
		{name: "default label", opts: Options{DefaultLabel: "generic"}, body: `{"event":"x"}`, want: "generic"},
		{name: "non-string field falls back", opts: Options{DefaultLabel: "generic"}, body: `{"type":5}`, want: "generic"},
		{name: "array payload uses default", opts: Options{DefaultLabel: "generic"}, body: `[{"type":"x"}]`, want: "generic"},
		{name: "no label anywhere", body: `{"event":"x"}`, wantErr: ErrInvalidLabel},
		{name: "header injection", body: `{}`, query: "alerts\r\nX-Evil: 1", wantErr: ErrInvalidLabel},
		{name: "space", body: `{}`, query: "two words", wantErr: ErrInvalidLabel},
		{name: "body label validated too", body: `{"type":"bad-label"}`, wantErr: ErrInvalidLabel},
		{name: "too long", body: `{}`, query: strings.Repeat("a", MaxLabelLength+1), wantErr: ErrInvalidLabel},
		{name: "max length", body: `{}`, query: strings.Repeat("a", MaxLabelLength), want: strings.Repeat("a", MaxLabelLength)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.opts).Normalize(tt.body, tt.query)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Label)
		})
	}
}

func TestNormalize_PayloadErrorBeforeLabelError(t *testing.T) {
	n := New(Options{})

	_, err := n.Normalize("", "bad label")
	assert.ErrorIs(t, err, ErrMissingPayload)

	_, err = n.Normalize("{", "bad label")
	assert.ErrorIs(t, err, ErrInvalidPayloadFormat)
}
