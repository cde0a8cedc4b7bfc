package yeelight

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/juju/errors"
)

// ─── Command ────────────────────────────────────────────────────────────────────
//
// A Command is a method name plus an ordered list of scalar parameters. It
// has no identity of its own; the Session assigns a request id when the
// command is sent.

// Command is an immutable method + parameters pair.
type Command struct {
	method Method
	params []any
}

// NewCommand builds a Command after checking that every parameter is a JSON
// scalar: a string, a bool, an integer or a finite float. Integers are
// stored as int64 (uint64 above math.MaxInt64), floats as float64.
//
//	cmd, err := yeelight.NewCommand(yeelight.MethodSetBright, 50, "smooth", 500)
func NewCommand(method Method, params ...any) (Command, error) {
	if method == "" {
		return Command{}, errors.NotValidf("empty method")
	}
	normalized := make([]any, len(params))
	for i, p := range params {
		v, err := normalizeParam(p)
		if err != nil {
			return Command{}, errors.Annotatef(err, "%s param %d", method, i)
		}
		normalized[i] = v
	}
	return Command{method: method, params: normalized}, nil
}

// command is NewCommand for parameter lists built inside this package, which
// only ever hold integers and strings.
func command(method Method, params ...any) Command {
	cmd, err := NewCommand(method, params...)
	if err != nil {
		panic(err)
	}
	return cmd
}

// Method returns the method name.
func (c Command) Method() Method {
	return c.method
}

// Params returns a copy of the parameter list.
func (c Command) Params() []any {
	out := make([]any, len(c.params))
	copy(out, c.params)
	return out
}

// Envelope pairs the command with a request id.
func (c Command) Envelope(id uint64) Envelope {
	return Envelope{ID: id, Method: c.method, Params: c.Params()}
}

// String renders the command the way it appears on the wire, without an id.
func (c Command) String() string {
	// Normalised scalars always marshal.
	params, _ := json.Marshal(c.params)
	return fmt.Sprintf("%s%s", c.method, params)
}

func normalizeParam(p any) (any, error) {
	v := reflect.ValueOf(p)
	switch v.Kind() {
	case reflect.String:
		return v.String(), nil
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := v.Uint()
		if u > math.MaxInt64 {
			return u, nil
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, errors.NotValidf("non-finite float %v", f)
		}
		return f, nil
	default:
		return nil, errors.NotValidf("non-scalar parameter of type %T", p)
	}
}

// ─── Wire Shapes ────────────────────────────────────────────────────────────────

// Envelope is the outbound wire object: {"id":..,"method":..,"params":[..]}.
type Envelope struct {
	ID     uint64 `json:"id"`
	Method Method `json:"method"`
	Params []any  `json:"params"`
}

// Reply is the inbound success object: {"id":..,"result":[..]}.
type Reply struct {
	ID uint64

	// Result holds the result entries. String entries are unquoted; any other
	// entry (the objects returned by cron_get, for instance) is kept as its
	// compact JSON text.
	Result []string
}

// OK reports whether the reply is the plain ["ok"] acknowledgement.
func (r *Reply) OK() bool {
	return len(r.Result) == 1 && r.Result[0] == "ok"
}

// ErrorReply is the inbound error object: {"id":..,"error":{"code":..,"message":..}}.
type ErrorReply struct {
	ID      uint64
	Code    int
	Message string
}

// InboundKind classifies a decoded inbound line.
type InboundKind int

const (
	// KindOpaque is valid JSON that is neither a reply nor an error reply,
	// typically a property-change notification.
	KindOpaque InboundKind = iota
	KindReply
	KindErrorReply
)

// String returns the name of the kind.
func (k InboundKind) String() string {
	switch k {
	case KindOpaque:
		return "opaque"
	case KindReply:
		return "reply"
	case KindErrorReply:
		return "error-reply"
	default:
		return fmt.Sprintf("InboundKind(%d)", int(k))
	}
}

// Inbound is one decoded inbound line.
type Inbound struct {
	Kind       InboundKind
	Reply      *Reply
	ErrorReply *ErrorReply

	// Raw is the line without its terminator. It aliases the decoded buffer.
	Raw []byte
}

// ─── Encode / Decode ────────────────────────────────────────────────────────────

// Encode serialises env as a single JSON object followed by "\r\n".
// Envelopes built from a Command always encode.
func Encode(env Envelope) ([]byte, error) {
	if env.Params == nil {
		env.Params = []any{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(env); err != nil {
		return nil, errors.Annotatef(err, "encoding %s request %d", env.Method, env.ID)
	}
	// json.Encoder terminates with a bare '\n'.
	out := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	return append(out, lineTerminator...), nil
}

// DecodeLine classifies one inbound line. The trailing "\n" and an optional
// "\r" before it are stripped first.
//
// Bytes that are not valid JSON yield a *DecodeError. Valid JSON that is not
// shaped like a reply or an error reply is returned as KindOpaque, which is
// not an error.
func DecodeLine(line []byte) (Inbound, error) {
	line = trimTerminator(line)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		if _, ok := err.(*json.SyntaxError); ok {
			return Inbound{}, &DecodeError{Line: line, Err: err}
		}
		// Valid JSON that is not an object.
		return Inbound{Kind: KindOpaque, Raw: line}, nil
	}

	rawID, ok := fields["id"]
	if !ok || bytes.Equal(rawID, []byte("null")) {
		return Inbound{Kind: KindOpaque, Raw: line}, nil
	}
	var id uint64
	if err := json.Unmarshal(rawID, &id); err != nil {
		return Inbound{Kind: KindOpaque, Raw: line}, nil
	}

	if rawResult, ok := fields["result"]; ok {
		result, ok := decodeResult(rawResult)
		if ok {
			return Inbound{
				Kind:  KindReply,
				Reply: &Reply{ID: id, Result: result},
				Raw:   line,
			}, nil
		}
	}

	if rawError, ok := fields["error"]; ok && !bytes.Equal(rawError, []byte("null")) {
		var body struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(rawError, &body); err == nil {
			return Inbound{
				Kind:       KindErrorReply,
				ErrorReply: &ErrorReply{ID: id, Code: body.Code, Message: body.Message},
				Raw:        line,
			}, nil
		}
	}

	return Inbound{Kind: KindOpaque, Raw: line}, nil
}

// decodeResult accepts a JSON array and flattens it to strings.
func decodeResult(raw json.RawMessage) ([]string, bool) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		return nil, false
	}
	result := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			result = append(result, s)
			continue
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, item); err != nil {
			return nil, false
		}
		result = append(result, compact.String())
	}
	return result, true
}

// DecodeEnvelope parses an outbound line back into an Envelope. Integral
// numbers come back as int64 (uint64 when they overflow it), others as
// float64. The fake device in tests uses it to read requests.
func DecodeEnvelope(line []byte) (Envelope, error) {
	line = trimTerminator(line)
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	var wire struct {
		ID     *uint64 `json:"id"`
		Method Method  `json:"method"`
		Params []any   `json:"params"`
	}
	if err := dec.Decode(&wire); err != nil {
		return Envelope{}, &DecodeError{Line: line, Err: err}
	}
	if wire.ID == nil || wire.Method == "" {
		return Envelope{}, errors.NotValidf("envelope %q", truncate(line, 64))
	}
	params := make([]any, len(wire.Params))
	for i, p := range wire.Params {
		params[i] = fromJSONNumber(p)
	}
	return Envelope{ID: *wire.ID, Method: wire.Method, Params: params}, nil
}

func fromJSONNumber(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		return i
	}
	if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
		return u
	}
	f, _ := n.Float64()
	return f
}

func trimTerminator(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte("\n"))
	return bytes.TrimSuffix(line, []byte("\r"))
}
