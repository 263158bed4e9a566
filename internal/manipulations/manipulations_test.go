package manipulations

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestAddAndNextGroup(t *testing.T) {
	s := New()
	s.Add(Width, "100").Add(Height, "50")
	s.NextGroup().Add(Blur, "3")

	groups := s.Groups()
	want := []Group{
		{Width: "100", Height: "50"},
		{Blur: "3"},
	}
	if !reflect.DeepEqual(groups, want) {
		t.Errorf("Groups() = %v, want %v", groups, want)
	}
}

func TestNextGroupDoesNotStackEmptyGroups(t *testing.T) {
	s := New()
	s.NextGroup().NextGroup().Add(Width, "10")

	if got := s.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}
}

func TestAddAsFirstManipulationsPrepends(t *testing.T) {
	declared := New(Group{Width: "368"}, Group{Blur: "3"})
	override := New(Group{Crop: "1,1,10,10"})

	declared.AddAsFirstManipulations(override)

	groups := declared.Groups()
	if len(groups) != 3 {
		t.Fatalf("len(groups) = %d, want 3", len(groups))
	}
	if groups[0][Crop] != "1,1,10,10" {
		t.Errorf("first group = %v, want the override", groups[0])
	}
	if groups[1][Width] != "368" || groups[2][Blur] != "3" {
		t.Errorf("declared chain reordered: %v", groups)
	}
}

func TestPrependedGroupsAreCopies(t *testing.T) {
	override := New(Group{Width: "50"})
	a := New(Group{Format: "jpg"})
	b := New(Group{Format: "png"})

	a.AddAsFirstManipulations(override)
	b.AddAsFirstManipulations(override)

	a.groups[0][Width] = "999"

	if v, _ := b.Get(Width); v != "50" {
		t.Errorf("mutating one prepended copy leaked into another: got %q", v)
	}
	if v, _ := override.Get(Width); v != "50" {
		t.Errorf("mutating a prepended copy changed the source: got %q", v)
	}
}

func TestMergeAppends(t *testing.T) {
	s := New(Group{Width: "10"})
	s.Merge(New(Group{Width: "20"}, Group{Quality: "80"}))

	if got := s.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}
	if v, _ := s.Get(Width); v != "20" {
		t.Errorf("Get(width) = %q, want 20", v)
	}
}

func TestFlattenLaterGroupWins(t *testing.T) {
	s := New(Group{Width: "10", Format: "png"}, Group{Width: "20"})

	flat := s.Flatten()
	want := Group{Width: "20", Format: "png"}
	if !reflect.DeepEqual(flat, want) {
		t.Errorf("Flatten() = %v, want %v", flat, want)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	s := New(Group{Width: "10"})
	c := s.Clone()
	c.Add(Height, "5")

	if _, ok := s.Get(Height); ok {
		t.Error("clone mutation affected original")
	}
}

func TestRemove(t *testing.T) {
	s := New(Group{Format: "jpg", Width: "1"}, Group{Format: "png"})
	s.Remove(Format)

	if _, ok := s.Get(Format); ok {
		t.Error("format still present after Remove")
	}
	if got := s.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1 (emptied group dropped)", got)
	}
}

func TestValidate(t *testing.T) {
	if err := New(Group{Width: "1", Fit: "crop"}).Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
	if err := New(Group{"explode": "1"}).Validate(); err == nil {
		t.Error("Validate() accepted unknown operation")
	}
}

func TestOperationsFollowApplyOrder(t *testing.T) {
	g := Group{Format: "png", Width: "10", Crop: "1,1,1,1", "zzz": "1"}
	got := g.Operations()
	want := []string{Crop, Width, Format, "zzz"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Operations() = %v, want %v", got, want)
	}
}

func TestUnmarshalAcceptsObjectOrArray(t *testing.T) {
	var fromArray Set
	if err := json.Unmarshal([]byte(`[{"width":"10"},{"blur":"2"}]`), &fromArray); err != nil {
		t.Fatalf("unmarshal array: %v", err)
	}
	if fromArray.Len() != 2 {
		t.Errorf("array Len() = %d, want 2", fromArray.Len())
	}

	var fromObject Set
	if err := json.Unmarshal([]byte(`{"width":"10"}`), &fromObject); err != nil {
		t.Fatalf("unmarshal object: %v", err)
	}
	if v, _ := fromObject.Get(Width); v != "10" {
		t.Errorf("object Get(width) = %q, want 10", v)
	}

	if err := json.Unmarshal([]byte(`"nope"`), &fromObject); err == nil {
		t.Error("expected error for scalar JSON")
	}
}

func TestEmptySetMarshalsAsArray(t *testing.T) {
	data, err := json.Marshal(New())
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[]" {
		t.Errorf("Marshal(empty) = %s, want []", data)
	}
}
