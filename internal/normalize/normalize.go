package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// Errors returned by Normalize. All of them are client errors.
var (
	ErrInvalidPayloadFormat = errors.New("invalid JSON format")
	ErrMissingPayload       = errors.New("no payload received")
	ErrInvalidLabel         = errors.New("invalid type label")
	ErrPayloadTooLarge      = errors.New("payload too large")
)

// MaxLabelLength keeps "<prefix><label>" within the collector's 100 character
// limit for custom log types when the default "Noname_" prefix is used.
const MaxLabelLength = 93

// DefaultTypeField is the payload field consulted when no label is passed in.
const DefaultTypeField = "type"

var labelPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Payload is a normalized inbound request.
type Payload struct {
	// Body is compact, syntactically valid JSON.
	Body []byte
	// Label is the resolved, validated type label.
	Label string
}

// Options configures a Normalizer.
type Options struct {
	// DefaultLabel is used when neither the caller nor the payload names a type.
	DefaultLabel string
	// TypeField is the payload field holding the label (default "type").
	TypeField string
	// MaxBodySize caps how much of a streamed body is read. Zero means no cap.
	MaxBodySize int64
}

// Normalizer turns raw inbound bodies into forwardable payloads.
type Normalizer struct {
	opts Options
}

// New creates a Normalizer.
func New(opts Options) *Normalizer {
	if opts.TypeField == "" {
		opts.TypeField = DefaultTypeField
	}
	return &Normalizer{opts: opts}
}

// Normalize decodes body into compact JSON and resolves the type label.
//
// body may be nil, []byte, string, json.RawMessage, an io.Reader, or an already
// decoded value. Text is parsed as JSON; anything else is marshalled as-is.
// queryLabel takes precedence over the payload's type field.
func (n *Normalizer) Normalize(body any, queryLabel string) (*Payload, error) {
	raw, err := n.toJSON(body)
	if err != nil {
		return nil, err
	}

	label := queryLabel
	if label == "" {
		label = labelFromPayload(raw, n.opts.TypeField)
	}
	if label == "" {
		label = n.opts.DefaultLabel
	}
	if err := ValidateLabel(label); err != nil {
		return nil, err
	}

	return &Payload{Body: raw, Label: label}, nil
}

// ValidateLabel checks label against the allow-list: ASCII letters, digits and
// underscore, at most MaxLabelLength characters.
func ValidateLabel(label string) error {
	if label == "" {
		return fmt.Errorf("%w: missing", ErrInvalidLabel)
	}
	if len(label) > MaxLabelLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidLabel, MaxLabelLength)
	}
	if !labelPattern.MatchString(label) {
		return fmt.Errorf("%w: only letters, digits and underscore are allowed", ErrInvalidLabel)
	}
	return nil
}

func (n *Normalizer) toJSON(body any) ([]byte, error) {
	switch v := body.(type) {
	case nil:
		return nil, ErrMissingPayload
	case []byte:
		return parseText(v)
	case json.RawMessage:
		return parseText(v)
	case string:
		return parseText([]byte(v))
	case io.Reader:
		data, err := n.readAll(v)
		if err != nil {
			return nil, err
		}
		return parseText(data)
	default:
		return marshalValue(v)
	}
}

func (n *Normalizer) readAll(r io.Reader) ([]byte, error) {
	if n.opts.MaxBodySize <= 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return data, nil
	}

	data, err := io.ReadAll(io.LimitReader(r, n.opts.MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > n.opts.MaxBodySize {
		return nil, ErrPayloadTooLarge
	}
	return data, nil
}

// parseText treats data as UTF-8 JSON text and returns its compact form.
func parseText(data []byte) ([]byte, error) {
	data = bytes.ToValidUTF8(data, []byte("\uFFFD"))
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrMissingPayload
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayloadFormat, err)
	}
	if isEmptyValue(buf.Bytes()) {
		return nil, ErrMissingPayload
	}
	return buf.Bytes(), nil
}

func marshalValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayloadFormat, err)
	}
	out := bytes.TrimRight(buf.Bytes(), "\n")
	if isEmptyValue(out) {
		return nil, ErrMissingPayload
	}
	return out, nil
}

// isEmptyValue reports whether compact JSON raw is null, false, "" or zero.
func isEmptyValue(raw []byte) bool {
	switch s := string(raw); s {
	case "null", "false", `""`:
		return true
	default:
		if s == "" || (s[0] != '-' && (s[0] < '0' || s[0] > '9')) {
			return false
		}
		f, err := strconv.ParseFloat(s, 64)
		return err == nil && f == 0
	}
}

// labelFromPayload returns the string value of field when raw is a JSON object.
func labelFromPayload(raw []byte, field string) string {
	if !strings.HasPrefix(string(raw), "{") {
		return ""
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	var label string
	if err := json.Unmarshal(obj[field], &label); err != nil {
		return ""
	}
	return label
}
