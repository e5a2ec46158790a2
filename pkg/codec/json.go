package codec

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// jsonWire keeps numbers as json.Number so integers wider than a float64
// mantissa survive decoding; normalize folds them afterwards.
var jsonWire = sonic.Config{UseNumber: true}.Froze()

// jsonParser reads JSON envelopes. JSON object keys are always text, so the
// parser only exists in typed-key mode.
type jsonParser struct{}

func (jsonParser) unmarshal(msg []byte) (any, error) {
	var v any
	if err := jsonWire.Unmarshal(msg, &v); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return v, nil
}

func (p jsonParser) elements(msg []byte) ([]any, []error, error) {
	v, err := p.unmarshal(msg)
	if err != nil {
		return nil, nil, err
	}
	items, ok := v.([]any)
	if !ok {
		return nil, nil, notAnArray(v)
	}
	return items, make([]error, len(items)), nil
}

func (jsonParser) envelope(v any) (envelope, bool) {
	m, ok := v.(map[string]any)
	return textEnvelope(m), ok
}

func (jsonParser) materialize(v any) any {
	return v
}

func marshalJSON(v any) ([]byte, error) {
	b, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return b, nil
}
