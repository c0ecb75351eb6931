package schema

import (
	"encoding/json"
	"fmt"
)

// MutationType identifies the three wire operations.
type MutationType string

const (
	TypeAdd    MutationType = "add"
	TypeEdit   MutationType = "edit"
	TypeDelete MutationType = "delete"
)

// Mutation is the wire message exchanged in both directions. The field
// contract depends on Type: an add carries the full entity in Data, an
// edit carries a change set, a delete carries neither.
//
// Edits appear in two forms. Writers emit the batched RowChanges form;
// readers additionally accept the legacy single-field Field/Value pair
// emitted by older peers. Changes() normalizes either form.
//
// Version, ClientID and Time are stamped by the sender and passed
// through unchanged. Version is advisory: nothing rejects or reorders
// on it. Time is an ISO-8601 string and is never parsed locally.
type Mutation struct {
	Type       MutationType   `json:"type"`
	Key        string         `json:"key"`
	Data       *Entity        `json:"data,omitempty"`
	RowChanges map[string]any `json:"row_changes,omitempty"`
	Field      string         `json:"field,omitempty"`
	Value      any            `json:"value,omitempty"`
	Version    int64          `json:"version"`
	ClientID   string         `json:"clientId,omitempty"`
	Time       string         `json:"time,omitempty"`
}

// NewAdd builds an add mutation keyed by the entity's name.
func NewAdd(e Entity) *Mutation {
	return &Mutation{Type: TypeAdd, Key: e.Name, Data: &e}
}

// NewEdit builds a single-field edit in the batched row_changes form.
func NewEdit(key, field string, value any) *Mutation {
	return &Mutation{Type: TypeEdit, Key: key, RowChanges: map[string]any{field: value}}
}

// NewDelete builds a delete mutation for the given key.
func NewDelete(key string) *Mutation {
	return &Mutation{Type: TypeDelete, Key: key}
}

// Validate checks the type-dependent field contract. It does not
// validate change-set values; Entity.Merge does that at apply time.
func (m *Mutation) Validate() error {
	if m.Key == "" {
		return fmt.Errorf("key is required")
	}
	switch m.Type {
	case TypeAdd:
		if m.Data == nil {
			return fmt.Errorf("add requires data")
		}
		if m.RowChanges != nil || m.Field != "" {
			return fmt.Errorf("add must not carry a change set")
		}
		if err := m.Data.Validate(); err != nil {
			return fmt.Errorf("invalid add data: %w", err)
		}
	case TypeEdit:
		if m.Data != nil {
			return fmt.Errorf("edit must not carry data")
		}
		if len(m.RowChanges) == 0 && m.Field == "" {
			return fmt.Errorf("edit requires row_changes or field/value")
		}
	case TypeDelete:
		if m.Data != nil || m.RowChanges != nil || m.Field != "" {
			return fmt.Errorf("delete must not carry data or a change set")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown mutation type %q", m.Type)
	}
	return nil
}

// Changes returns the edit change set regardless of which wire form the
// message used. Returns nil for non-edit mutations.
func (m *Mutation) Changes() map[string]any {
	if m.Type != TypeEdit {
		return nil
	}
	if len(m.RowChanges) > 0 {
		return m.RowChanges
	}
	if m.Field != "" {
		return map[string]any{m.Field: m.Value}
	}
	return nil
}

// Decode parses and validates a wire message. Malformed payloads are
// rejected here so no caller merges unvalidated state.
func Decode(data []byte) (*Mutation, error) {
	var m Mutation
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse mutation: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mutation: %w", err)
	}
	return &m, nil
}

// Encode validates and serializes the mutation for transmission.
func (m *Mutation) Encode() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("cannot encode invalid mutation: %w", err)
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal mutation: %w", err)
	}
	return data, nil
}
