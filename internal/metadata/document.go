package metadata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// errNotObject is returned for records whose top level is not a JSON object.
var errNotObject = errors.New("record is not a JSON object")

type field struct {
	key   string
	value json.RawMessage
}

// document is a JSON object that keeps its keys in file order and leaves
// every value it does not touch byte for byte as it was read.
type document []field

func (d *document) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errNotObject
	}
	fields := document{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return err
		}
		fields = append(fields, field{key: key, value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*d = fields
	return nil
}

func (d document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := encode(f.key, "")
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(f.value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// setString replaces every occurrence of key with the string s, appending
// the key when the object does not have it.
func (d *document) setString(key, s string) error {
	value, err := encode(s, "")
	if err != nil {
		return err
	}
	found := false
	for i := range *d {
		if (*d)[i].key == key {
			(*d)[i].value = value
			found = true
		}
	}
	if !found {
		*d = append(*d, field{key: key, value: value})
	}
	return nil
}
