package gateway

import (
	"fmt"
	"regexp"
	"strings"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cast"
	"github.com/tidwall/gjson"

	"github.com/GPTx-global/feedkeeper/oracle/types"
)

var hexPattern = regexp.MustCompile(`^0x[0-9a-fA-F]*$`)

// FieldError reports one invalid field of a gateway response.
type FieldError struct {
	Path    string
	Message string
}

// ValidationError lists every invalid field of one gateway response.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		path := f.Path
		if path == "" {
			path = "<root>"
		}
		parts[i] = path + ": " + f.Message
	}

	return errorsmod.Wrap(types.ErrInvalidGatewayData, strings.Join(parts, "; ")).Error()
}

func (e *ValidationError) Unwrap() error {
	return types.ErrInvalidGatewayData
}

func (e *ValidationError) add(path, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Path: path, Message: fmt.Sprintf(format, args...)})
}

// ParseSignedData validates a gateway response of the shape
// {"data": {"timestamp": "...", "encodedValue": "0x..."}, "signature": "0x..."}.
func ParseSignedData(body []byte) (*types.SignedData, *ValidationError) {
	verr := new(ValidationError)

	if !gjson.ValidBytes(body) {
		verr.add("", "invalid JSON")
		return nil, verr
	}

	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		verr.add("", "expected object, received %s", typeName(root))
		return nil, verr
	}

	out := new(types.SignedData)

	data := root.Get("data")
	if !data.IsObject() {
		verr.add("data", "expected object, received %s", typeName(data))
	} else {
		out.Timestamp = parseTimestamp(verr, data.Get("timestamp"))
		out.EncodedValue = parseHex(verr, "data.encodedValue", data.Get("encodedValue"))
	}

	out.Signature = parseHex(verr, "signature", root.Get("signature"))
	if out.Signature != nil && len(out.Signature) != crypto.SignatureLength {
		verr.add("signature", "expected %d bytes, received %d", crypto.SignatureLength, len(out.Signature))
	}

	if len(verr.Fields) > 0 {
		return nil, verr
	}

	return out, nil
}

func parseTimestamp(verr *ValidationError, v gjson.Result) uint64 {
	if v.Type != gjson.String && v.Type != gjson.Number {
		verr.add("data.timestamp", "expected string, received %s", typeName(v))
		return 0
	}

	ts, err := cast.ToUint64E(v.Value())
	if err != nil || ts == 0 {
		verr.add("data.timestamp", "invalid timestamp %q", v.String())
		return 0
	}

	return ts
}

func parseHex(verr *ValidationError, path string, v gjson.Result) []byte {
	if v.Type != gjson.String {
		verr.add(path, "expected string, received %s", typeName(v))
		return nil
	}

	if !hexPattern.MatchString(v.Str) {
		verr.add(path, "invalid hex string")
		return nil
	}

	b, err := hexutil.Decode(v.Str)
	if err != nil {
		verr.add(path, "invalid hex string: %s", err)
		return nil
	}

	return b
}

func typeName(v gjson.Result) string {
	switch {
	case !v.Exists():
		return "undefined"
	case v.IsObject():
		return "object"
	case v.IsArray():
		return "array"
	case v.Type == gjson.True, v.Type == gjson.False:
		return "boolean"
	default:
		return strings.ToLower(v.Type.String())
	}
}
