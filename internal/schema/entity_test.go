package schema

import (
	"testing"
)

func TestEntity_Validate(t *testing.T) {
	tests := []struct {
		name    string
		entity  Entity
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid entity",
			entity:  Entity{Name: "Mendy", Age: 30, Email: "m@x.com"},
			wantErr: false,
		},
		{
			name:    "zero age is valid",
			entity:  Entity{Name: "Newborn", Age: 0, Email: "n@x.com"},
			wantErr: false,
		},
		{
			name:    "empty email is valid",
			entity:  Entity{Name: "NoMail", Age: 12},
			wantErr: false,
		},
		{
			name:    "missing name",
			entity:  Entity{Age: 30, Email: "m@x.com"},
			wantErr: true,
			errMsg:  "name is required",
		},
		{
			name:    "negative age",
			entity:  Entity{Name: "Mendy", Age: -1},
			wantErr: true,
			errMsg:  "age must be non-negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entity.Validate()
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

func TestEntity_Merge(t *testing.T) {
	base := Entity{Name: "Mendy", Age: 30, Email: "m@x.com"}

	tests := []struct {
		name    string
		changes map[string]any
		want    Entity
		wantErr bool
	}{
		{
			name:    "single field leaves others untouched",
			changes: map[string]any{"age": 31},
			want:    Entity{Name: "Mendy", Age: 31, Email: "m@x.com"},
		},
		{
			name:    "age arrives as float64 from JSON",
			changes: map[string]any{"age": float64(42)},
			want:    Entity{Name: "Mendy", Age: 42, Email: "m@x.com"},
		},
		{
			name:    "multiple fields",
			changes: map[string]any{"age": 25, "email": "new@x.com"},
			want:    Entity{Name: "Mendy", Age: 25, Email: "new@x.com"},
		},
		{
			name:    "name change updates payload only",
			changes: map[string]any{"name": "Mendel"},
			want:    Entity{Name: "Mendel", Age: 30, Email: "m@x.com"},
		},
		{
			name:    "fractional age rejected",
			changes: map[string]any{"age": 30.5},
			wantErr: true,
		},
		{
			name:    "negative age rejected",
			changes: map[string]any{"age": -3},
			wantErr: true,
		},
		{
			name:    "non-numeric age rejected",
			changes: map[string]any{"age": "old"},
			wantErr: true,
		},
		{
			name:    "non-string email rejected",
			changes: map[string]any{"email": 7},
			wantErr: true,
		},
		{
			name:    "unknown field rejected",
			changes: map[string]any{"phone": "555"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := base.Merge(tt.changes)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Merge() expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Merge() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Merge() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestEntity_MergeDoesNotMutateReceiver(t *testing.T) {
	base := Entity{Name: "Mendy", Age: 30, Email: "m@x.com"}

	if _, err := base.Merge(map[string]any{"age": 99}); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if base.Age != 30 {
		t.Errorf("Merge() mutated receiver: age = %d, want 30", base.Age)
	}

	// A change set that fails mid-way must not leak partial writes
	// through the returned copy either.
	got, err := base.Merge(map[string]any{"age": "bad"})
	if err == nil {
		t.Fatalf("Merge() expected error, got %+v", got)
	}
	if got != (Entity{}) {
		t.Errorf("Merge() returned partial entity on error: %+v", got)
	}
}
