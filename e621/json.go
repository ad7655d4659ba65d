package e621

import (
	"fmt"
	"math"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// UseNumber keeps ids and scores exact instead of going through float64.
var json = jsoniter.Config{
	UseNumber:              true,
	EscapeHTML:             false,
	ValidateJsonRawMessage: true,
}.Froze()

// object is one decoded JSON object. Values are whatever jsoniter produces for
// interface{}: nil, bool, a number, string, []any or map[string]any.
type object map[string]any

func decodeObject(raw []byte, field string) (object, error) {
	var o object
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, &MappingError{Field: field, Msg: err.Error()}
	}
	if o == nil {
		return nil, &MappingError{Field: field, Msg: "expected an object, got null"}
	}
	return o, nil
}

// present reports whether key exists and isn't null.
func (o object) present(key string) bool {
	v, ok := o[key]
	return ok && v != nil
}

// get looks key up and converts it. A missing or null key is an error only
// when required; a present value of the wrong kind always is.
func get[T any](o object, key string, required bool, kind string, conv func(any) (T, bool)) (T, error) {
	var zero T
	v, ok := o[key]
	if !ok || v == nil {
		if required {
			return zero, &MappingError{Field: key, Msg: "missing"}
		}
		return zero, nil
	}
	out, ok := conv(v)
	if !ok {
		return zero, &MappingError{Field: key, Msg: fmt.Sprintf("expected %s, got %T", kind, v)}
	}
	return out, nil
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case interface{ Int64() (int64, error) }: // json.Number and jsoniter.Number
		i, err := n.Int64()
		return i, err == nil
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asObject(v any) (object, bool) {
	m, ok := v.(map[string]any)
	return object(m), ok
}

func asStrings(v any) ([]string, bool) {
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

func (o object) int(key string) (int64, error) { return get(o, key, true, "a number", asInt) }

func (o object) optInt(key string) (int64, error) { return get(o, key, false, "a number", asInt) }

func (o object) str(key string) (string, error) { return get(o, key, true, "a string", asString) }

func (o object) optStr(key string) (string, error) { return get(o, key, false, "a string", asString) }

func (o object) optBool(key string) (bool, error) { return get(o, key, false, "a boolean", asBool) }

func (o object) optStrings(key string) ([]string, error) {
	list, err := get(o, key, false, "an array of strings", asStrings)
	if list == nil && err == nil {
		list = []string{}
	}
	return list, err
}

// time reads the legacy API's {"json_class":"Time","s":...,"n":...} stamps.
func (o object) time(key string, required bool) (time.Time, error) {
	stamp, err := get(o, key, required, "an object", asObject)
	if err != nil || stamp == nil {
		return time.Time{}, err
	}
	sec, err := stamp.int("s")
	if err != nil {
		return time.Time{}, &MappingError{Field: key + ".s", Msg: err.(*MappingError).Msg}
	}
	nsec, err := stamp.optInt("n")
	if err != nil {
		return time.Time{}, &MappingError{Field: key + ".n", Msg: err.(*MappingError).Msg}
	}
	return time.Unix(sec, nsec).UTC(), nil
}
