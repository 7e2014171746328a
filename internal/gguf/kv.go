package gguf

import "reflect"

// KV is the decoded key/value section. Accessors report false when the key
// is missing or holds a value of another kind.
type KV map[string]Value

func (kv KV) Text(key string) (string, bool) {
	s, ok := kv[key].Value.(string)
	return s, ok
}

func (kv KV) Flag(key string) (bool, bool) {
	b, ok := kv[key].Value.(bool)
	return b, ok
}

// Uint accepts any integer type holding a non-negative value.
func (kv KV) Uint(key string) (uint64, bool) {
	rv := reflect.ValueOf(kv[key].Value)
	switch rv.Kind() {
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint(), true
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if n := rv.Int(); n >= 0 {
			return uint64(n), true
		}
	}
	return 0, false
}

// Int accepts any integer type that fits in an int64.
func (kv KV) Int(key string) (int64, bool) {
	rv := reflect.ValueOf(kv[key].Value)
	switch rv.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if u := rv.Uint(); u <= 1<<63-1 {
			return int64(u), true
		}
	}
	return 0, false
}

func (kv KV) Float(key string) (float64, bool) {
	rv := reflect.ValueOf(kv[key].Value)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// Len reports the declared element count of an array, including arrays
// whose elements were not kept.
func (kv KV) Len(key string) (uint64, bool) {
	arr, ok := kv[key].Value.(ArrayValue)
	return arr.Len, ok
}

// Array returns the elements of an array value as []T. It reports false
// when an element is not a T or the elements were not kept.
func Array[T any](kv KV, key string) ([]T, bool) {
	arr, ok := kv[key].Value.(ArrayValue)
	if !ok || uint64(len(arr.Values)) != arr.Len {
		return nil, false
	}
	out := make([]T, len(arr.Values))
	for i, v := range arr.Values {
		if out[i], ok = v.(T); !ok {
			return nil, false
		}
	}
	return out, true
}
