package server

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/me/controlnode/pkg/model"
)

// params are the positional arguments of one JSON-RPC call.
type params []json.RawMessage

// jsonKind returns the first significant byte of a raw JSON value, or 0 when absent.
func jsonKind(raw json.RawMessage) byte {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0
	}
	return raw[0]
}

// at returns the i-th argument, or nil when the caller passed fewer.
func (p params) at(i int) json.RawMessage {
	if i >= len(p) {
		return nil
	}
	return p[i]
}

// str decodes a required string argument.
func (p params) str(i int, name string) (string, error) {
	raw := p.at(i)
	if jsonKind(raw) != '"' {
		return "", model.NewInvalidArgumentError(name)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", model.NewInvalidArgumentError(name)
	}
	return s, nil
}

// integer decodes a required whole-number argument.
func (p params) integer(i int, name string) (int64, error) {
	raw := p.at(i)
	if k := jsonKind(raw); k != '-' && (k < '0' || k > '9') {
		return 0, model.NewInvalidArgumentError(name)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil || f != float64(int64(f)) {
		return 0, model.NewInvalidArgumentError(name)
	}
	return int64(f), nil
}

// taskTypes decodes an optional array of task type names. A missing argument
// is an empty list; null elements are skipped.
func (p params) taskTypes(i int) ([]model.TaskType, error) {
	const name = "taskTypes"
	raw := p.at(i)
	if raw == nil {
		return []model.TaskType{}, nil
	}
	if jsonKind(raw) != '[' {
		return nil, model.NewInvalidArgumentError(name)
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, model.NewInvalidArgumentError(name)
	}

	out := make([]model.TaskType, 0, len(elems))
	for j, elem := range elems {
		argName := fmt.Sprintf("%s[%d]", name, j)
		switch jsonKind(elem) {
		case 'n':
			continue
		case '"':
		default:
			return nil, model.NewInvalidArgumentError(argName)
		}
		var s string
		if err := json.Unmarshal(elem, &s); err != nil {
			return nil, model.NewInvalidArgumentError(argName)
		}
		t, err := model.ParseTaskType(s)
		if err != nil {
			return nil, model.NewUnknownTaskTypeError(s, argName)
		}
		out = append(out, t)
	}
	return out, nil
}

// leaseRefs decodes the restartTasks argument: an array of objects that
// each carry an id and a sig.
func (p params) leaseRefs(i int) ([]model.LeaseRef, error) {
	const name = "tasks"
	raw := p.at(i)
	if jsonKind(raw) != '[' {
		return nil, model.NewInvalidArgumentError(name)
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, model.NewInvalidArgumentError(name)
	}

	refs := make([]model.LeaseRef, 0, len(elems))
	for j, elem := range elems {
		argName := fmt.Sprintf("%s[%d]", name, j)
		if jsonKind(elem) != '{' {
			return nil, model.NewInvalidArgumentError(argName)
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(elem, &fields); err != nil {
			return nil, model.NewInvalidArgumentError(argName)
		}
		item := params{fields["id"], fields["sig"]}
		id, err := item.str(0, argName)
		if err != nil {
			return nil, err
		}
		sig, err := item.str(1, argName)
		if err != nil {
			return nil, err
		}
		refs = append(refs, model.LeaseRef{WorkerID: id, Signature: sig})
	}
	return refs, nil
}

// object decodes an argument that must be a JSON object into v. When
// optional is set, a missing or null argument leaves v untouched and
// reports false.
func (p params) object(i int, name string, optional bool, v any) (bool, error) {
	raw := p.at(i)
	switch jsonKind(raw) {
	case 0, 'n':
		if optional {
			return false, nil
		}
		return false, model.NewInvalidArgumentError(name)
	case '{':
	default:
		return false, model.NewInvalidArgumentError(name)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, model.NewInvalidArgumentError(name)
	}
	return true, nil
}
