package attributes

import (
	"reflect"
	"testing"
)

func TestTranslateDropsUnknownNames(t *testing.T) {
	got := Translate([]string{"age", "bogus", "gender"})
	want := []ID{Age, Gender}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Translate = %v, want %v", got, want)
	}
}

func TestTranslateEmptyInput(t *testing.T) {
	if got := Translate(nil); len(got) != 0 {
		t.Fatalf("expected empty result for nil input, got %v", got)
	}
	if got := Translate([]string{}); len(got) != 0 {
		t.Fatalf("expected empty result for empty input, got %v", got)
	}
	if got := Translate([]string{"nope", "AGE"}); len(got) != 0 {
		t.Fatalf("expected unknown and differently cased names to be dropped, got %v", got)
	}
}

func TestTranslateKeepsOrderAndDeduplicates(t *testing.T) {
	got := Translate([]string{"smile", "age", "smile", "headPose"})
	want := []ID{Smile, Age, HeadPose}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Translate = %v, want %v", got, want)
	}
}

func TestNamesCoverCatalog(t *testing.T) {
	names := Names()
	if len(names) != 15 {
		t.Fatalf("expected 15 attribute names, got %d", len(names))
	}
	for _, name := range names {
		if !Known(name) {
			t.Fatalf("name %q listed but not known", name)
		}
	}
	if got := Translate(names); len(got) != len(names) {
		t.Fatalf("every catalog name should translate, got %d of %d", len(got), len(names))
	}
}
