package schema

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestMutation_Validate(t *testing.T) {
	entity := Entity{Name: "Mendy", Age: 30, Email: "m@x.com"}

	tests := []struct {
		name    string
		m       Mutation
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid add",
			m:    Mutation{Type: TypeAdd, Key: "Mendy", Data: &entity},
		},
		{
			name: "valid edit with row_changes",
			m:    Mutation{Type: TypeEdit, Key: "Mendy", RowChanges: map[string]any{"age": 31}},
		},
		{
			name: "valid edit with legacy field/value",
			m:    Mutation{Type: TypeEdit, Key: "Mendy", Field: "age", Value: 31},
		},
		{
			name: "valid delete",
			m:    Mutation{Type: TypeDelete, Key: "Mendy"},
		},
		{
			name:    "missing key",
			m:       Mutation{Type: TypeAdd, Data: &entity},
			wantErr: true,
			errMsg:  "key is required",
		},
		{
			name:    "add without data",
			m:       Mutation{Type: TypeAdd, Key: "Mendy"},
			wantErr: true,
			errMsg:  "add requires data",
		},
		{
			name:    "add with change set",
			m:       Mutation{Type: TypeAdd, Key: "Mendy", Data: &entity, RowChanges: map[string]any{"age": 1}},
			wantErr: true,
			errMsg:  "add must not carry a change set",
		},
		{
			name:    "add with invalid entity",
			m:       Mutation{Type: TypeAdd, Key: "x", Data: &Entity{Name: "x", Age: -2}},
			wantErr: true,
			errMsg:  "invalid add data",
		},
		{
			name:    "edit without changes",
			m:       Mutation{Type: TypeEdit, Key: "Mendy"},
			wantErr: true,
			errMsg:  "edit requires row_changes or field/value",
		},
		{
			name:    "edit with data",
			m:       Mutation{Type: TypeEdit, Key: "Mendy", Data: &entity, RowChanges: map[string]any{"age": 1}},
			wantErr: true,
			errMsg:  "edit must not carry data",
		},
		{
			name:    "delete with data",
			m:       Mutation{Type: TypeDelete, Key: "Mendy", Data: &entity},
			wantErr: true,
			errMsg:  "delete must not carry data or a change set",
		},
		{
			name:    "delete with change set",
			m:       Mutation{Type: TypeDelete, Key: "Mendy", Field: "age", Value: 1},
			wantErr: true,
			errMsg:  "delete must not carry data or a change set",
		},
		{
			name:    "missing type",
			m:       Mutation{Key: "Mendy"},
			wantErr: true,
			errMsg:  "type is required",
		},
		{
			name:    "unknown type",
			m:       Mutation{Type: "rename", Key: "Mendy"},
			wantErr: true,
			errMsg:  "unknown mutation type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.m.Validate()
			if tt.wantErr {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.errMsg)
					return
				}
				if len(err.Error()) < len(tt.errMsg) || err.Error()[:len(tt.errMsg)] != tt.errMsg {
					t.Errorf("Validate() error = %v, want error containing %v", err, tt.errMsg)
				}
			} else if err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestMutation_Changes(t *testing.T) {
	tests := []struct {
		name string
		m    Mutation
		want map[string]any
	}{
		{
			name: "batched form",
			m:    Mutation{Type: TypeEdit, Key: "k", RowChanges: map[string]any{"age": 31, "email": "a@b"}},
			want: map[string]any{"age": 31, "email": "a@b"},
		},
		{
			name: "legacy field/value form",
			m:    Mutation{Type: TypeEdit, Key: "k", Field: "age", Value: 31},
			want: map[string]any{"age": 31},
		},
		{
			name: "batched form wins when both present",
			m:    Mutation{Type: TypeEdit, Key: "k", RowChanges: map[string]any{"age": 1}, Field: "email", Value: "x"},
			want: map[string]any{"age": 1},
		},
		{
			name: "nil for non-edit",
			m:    Mutation{Type: TypeDelete, Key: "k"},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.m.Changes()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Changes() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecode_LegacyEditForm(t *testing.T) {
	// Older peers send single-field edits; readers must accept them.
	raw := []byte(`{"type":"edit","key":"Mendy","field":"age","value":31,"version":7,"clientId":"c1","time":"2024-01-01T00:00:00Z"}`)

	m, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if m.Type != TypeEdit || m.Key != "Mendy" {
		t.Errorf("Decode() = %+v, want edit for Mendy", m)
	}
	if m.Version != 7 {
		t.Errorf("Decode() version = %d, want 7", m.Version)
	}
	changes := m.Changes()
	if len(changes) != 1 {
		t.Fatalf("Changes() = %v, want single entry", changes)
	}
	// JSON numbers decode as float64.
	if v, ok := changes["age"].(float64); !ok || v != 31 {
		t.Errorf("Changes()[age] = %v (%T), want 31", changes["age"], changes["age"])
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "invalid json", raw: `{not json`},
		{name: "missing key", raw: `{"type":"add","data":{"name":"x","age":1,"email":""}}`},
		{name: "add without data", raw: `{"type":"add","key":"x"}`},
		{name: "unknown type", raw: `{"type":"upsert","key":"x"}`},
		{name: "delete with payload", raw: `{"type":"delete","key":"x","row_changes":{"age":1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if m, err := Decode([]byte(tt.raw)); err == nil {
				t.Errorf("Decode() expected error, got %+v", m)
			}
		})
	}
}

func TestMutation_EncodeStampsNothing(t *testing.T) {
	// Encode serializes exactly what it was given; stamping is the
	// connection layer's job.
	m := NewEdit("Mendy", "age", 31)
	data, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if decoded["type"] != "edit" {
		t.Errorf("encoded type = %v, want edit", decoded["type"])
	}
	if _, present := decoded["clientId"]; present {
		t.Errorf("encoded clientId present before stamping: %v", decoded["clientId"])
	}
	if _, present := decoded["data"]; present {
		t.Errorf("encoded data present on edit: %v", decoded["data"])
	}
}

func TestMutation_EncodeRejectsInvalid(t *testing.T) {
	m := &Mutation{Type: TypeAdd, Key: "x"}
	if _, err := m.Encode(); err == nil {
		t.Errorf("Encode() expected error for add without data")
	}
}
