package ledger

import (
	"bytes"
	"encoding/json"
)

// Field is one key of a raw evidence record.
type Field struct {
	Key   string
	Value any
}

// F is shorthand for building evidence fields.
func F(key string, value any) Field { return Field{Key: key, Value: value} }

// Fields is an ordered evidence record. Order is part of the export
// contract: consumers diff serialized evidence textually.
type Fields []Field

// Get returns the value for key.
func (fs Fields) Get(key string) (any, bool) {
	for _, f := range fs {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Keys returns the keys in order.
func (fs Fields) Keys() []string {
	keys := make([]string, len(fs))
	for i, f := range fs {
		keys[i] = f.Key
	}
	return keys
}

func (fs Fields) clone() Fields {
	if fs == nil {
		return nil
	}
	out := make(Fields, len(fs))
	copy(out, fs)
	return out
}

// MarshalJSON writes the fields as a JSON object in order.
func (fs Fields) MarshalJSON() ([]byte, error) {
	return fs.encode()
}

func (fs Fields) encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	var out bytes.Buffer
	out.WriteByte('{')
	for i, f := range fs {
		if i > 0 {
			out.WriteByte(',')
		}
		buf.Reset()
		if err := enc.Encode(f.Key); err != nil {
			return nil, err
		}
		out.Write(bytes.TrimRight(buf.Bytes(), "\n"))
		out.WriteByte(':')
		buf.Reset()
		if err := enc.Encode(f.Value); err != nil {
			return nil, err
		}
		out.Write(bytes.TrimRight(buf.Bytes(), "\n"))
	}
	out.WriteByte('}')
	return out.Bytes(), nil
}

// Render returns the two-space indented form stored as an event's raw log.
func (fs Fields) Render() (string, error) {
	compact, err := fs.encode()
	if err != nil {
		return "", err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "  "); err != nil {
		return "", err
	}
	return out.String(), nil
}

// Evidence keys with a fixed position at the head of every record.
const (
	KeyMessageID        = "message_id"
	KeyHash             = "hash"
	KeyPrevHash         = "prev_hash"
	KeyTimestampSig     = "ts_sig"
	KeyProofID          = "proof_id"
	KeyThoughtSignature = "thought_signature"
	KeyFullText         = "full_text"
)

// NoThoughtSignature is recorded when no generator signature exists.
const NoThoughtSignature = "N/A"

// chainOwned keys are always taken from the chain, never from the caller.
var chainOwned = map[string]bool{
	KeyHash:         true,
	KeyPrevHash:     true,
	KeyTimestampSig: true,
}

// buildEvidence lays out the fixed head followed by the caller's remaining
// fields in the order given. Absent head values are written as null. A key
// repeated by the caller keeps its first position and its last value.
func buildEvidence(hash, prev, tsSig, thoughtSig string, caller Fields) Fields {
	head := map[string]any{
		KeyMessageID: nil,
		KeyProofID:   nil,
		KeyFullText:  nil,
	}
	if thoughtSig == "" {
		thoughtSig = NoThoughtSignature
	}

	var rest Fields
	pos := make(map[string]int)
	for _, f := range caller {
		switch {
		case chainOwned[f.Key]:
			continue
		case f.Key == KeyThoughtSignature:
			if s, ok := f.Value.(string); ok && s != "" && thoughtSig == NoThoughtSignature {
				thoughtSig = s
			}
			continue
		}
		if _, ok := head[f.Key]; ok {
			head[f.Key] = f.Value
			continue
		}
		if i, ok := pos[f.Key]; ok {
			rest[i].Value = f.Value
			continue
		}
		pos[f.Key] = len(rest)
		rest = append(rest, f)
	}

	out := make(Fields, 0, 7+len(rest))
	out = append(out,
		F(KeyMessageID, head[KeyMessageID]),
		F(KeyHash, hash),
		F(KeyPrevHash, prev),
		F(KeyTimestampSig, tsSig),
		F(KeyProofID, head[KeyProofID]),
		F(KeyThoughtSignature, thoughtSig),
		F(KeyFullText, head[KeyFullText]),
	)
	return append(out, rest...)
}
