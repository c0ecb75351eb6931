package relay

import (
	"testing"

	"rowsync/internal/schema"
)

func TestTable_ApplyStampsIncreasingVersions(t *testing.T) {
	table := NewTable()

	muts := []*schema.Mutation{
		schema.NewAdd(schema.Entity{Name: "Mendy", Age: 30, Email: "m@x.com"}),
		schema.NewEdit("Mendy", "age", 31),
		schema.NewDelete("Mendy"),
	}

	var last int64
	for i, mut := range muts {
		stamped, err := table.Apply(mut)
		if err != nil {
			t.Fatalf("Apply(%d) error = %v", i, err)
		}
		if stamped.Version <= last {
			t.Errorf("Apply(%d) version = %d, want > %d", i, stamped.Version, last)
		}
		last = stamped.Version
	}
	if got := table.Version(); got != last {
		t.Errorf("Version() = %d, want %d", got, last)
	}
}

func TestTable_AddOverwritesExisting(t *testing.T) {
	table := NewTable()

	if _, err := table.Apply(schema.NewAdd(schema.Entity{Name: "a", Age: 1, Email: "old@x.com"})); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if _, err := table.Apply(schema.NewAdd(schema.Entity{Name: "a", Age: 2, Email: "new@x.com"})); err != nil {
		t.Fatalf("second add: %v", err)
	}

	got := table.Snapshot()["a"]
	want := schema.Entity{Name: "a", Age: 2, Email: "new@x.com"}
	if got != want {
		t.Errorf("after second add entity = %+v, want %+v", got, want)
	}
}

func TestTable_EditMergesAndNormalizesLegacyForm(t *testing.T) {
	table := NewTable()
	if _, err := table.Apply(schema.NewAdd(schema.Entity{Name: "Mendy", Age: 30, Email: "m@x.com"})); err != nil {
		t.Fatalf("add: %v", err)
	}

	// Legacy field/value wire form, as emitted by older peers.
	stamped, err := table.Apply(&schema.Mutation{Type: schema.TypeEdit, Key: "Mendy", Field: "age", Value: float64(31)})
	if err != nil {
		t.Fatalf("legacy edit: %v", err)
	}

	if stamped.Field != "" || stamped.Value != nil {
		t.Errorf("broadcast kept legacy fields: field=%q value=%v", stamped.Field, stamped.Value)
	}
	if len(stamped.RowChanges) != 1 {
		t.Fatalf("broadcast row_changes = %v, want the single normalized change", stamped.RowChanges)
	}

	got := table.Snapshot()["Mendy"]
	want := schema.Entity{Name: "Mendy", Age: 31, Email: "m@x.com"}
	if got != want {
		t.Errorf("after edit entity = %+v, want %+v", got, want)
	}
}

func TestTable_DeleteRemoves(t *testing.T) {
	table := NewTable()
	if _, err := table.Apply(schema.NewAdd(schema.Entity{Name: "a", Age: 1})); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := table.Apply(schema.NewDelete("a")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if table.Len() != 0 {
		t.Errorf("Len() after delete = %d, want 0", table.Len())
	}
}

func TestTable_RejectsInvalidWithoutStateChange(t *testing.T) {
	table := NewTable()

	cases := []struct {
		name string
		mut  *schema.Mutation
	}{
		{"missing data", &schema.Mutation{Type: schema.TypeAdd, Key: "x"}},
		{"missing key", &schema.Mutation{Type: schema.TypeDelete}},
		{"bad edit value", &schema.Mutation{Type: schema.TypeEdit, Key: "x", RowChanges: map[string]any{"age": "old"}}},
		{"unknown type", &schema.Mutation{Type: "rename", Key: "x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := table.Apply(tc.mut); err == nil {
				t.Errorf("Apply() expected error")
			}
		})
	}

	if got := table.Version(); got != 0 {
		t.Errorf("Version() after rejected mutations = %d, want 0", got)
	}
}

func TestDiffSeed(t *testing.T) {
	current := map[string]schema.Entity{
		"keep":   {Name: "keep", Age: 1, Email: "k@x.com"},
		"change": {Name: "change", Age: 2, Email: "c@x.com"},
		"drop":   {Name: "drop", Age: 3, Email: "d@x.com"},
	}
	seeded := []schema.Entity{
		{Name: "keep", Age: 1, Email: "k@x.com"},
		{Name: "change", Age: 20, Email: "c@x.com"},
		{Name: "new", Age: 4, Email: "n@x.com"},
	}

	byKey := make(map[string]*schema.Mutation)
	for _, mut := range diffSeed(current, seeded) {
		byKey[mut.Key] = mut
	}

	if len(byKey) != 3 {
		t.Fatalf("diff produced %d mutations, want 3 (got %v)", len(byKey), byKey)
	}
	if mut := byKey["new"]; mut == nil || mut.Type != schema.TypeAdd {
		t.Errorf("new key mutation = %+v, want add", mut)
	}
	if mut := byKey["drop"]; mut == nil || mut.Type != schema.TypeDelete {
		t.Errorf("dropped key mutation = %+v, want delete", mut)
	}
	mut := byKey["change"]
	if mut == nil || mut.Type != schema.TypeEdit {
		t.Fatalf("changed key mutation = %+v, want edit", mut)
	}
	if len(mut.RowChanges) != 1 || mut.RowChanges["age"] != 20 {
		t.Errorf("changed key row_changes = %v, want only age=20", mut.RowChanges)
	}
}
