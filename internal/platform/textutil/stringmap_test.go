package textutil

import (
	"reflect"
	"testing"
)

func TestNormalizeStringMapTrimsEntries(t *testing.T) {
	input := map[string]string{
		" order_id ": " ord_01ABC ",
		"package":    " linkedin-mid ",
		"note":       " ",
		" ":          "ignored",
		"":           "ignored",
	}
	expected := map[string]string{
		"order_id": "ord_01ABC",
		"package":  "linkedin-mid",
		"note":     "",
	}

	actual := NormalizeStringMap(input)
	if !reflect.DeepEqual(actual, expected) {
		t.Fatalf("expected %#v, got %#v", expected, actual)
	}
}

func TestNormalizeStringMapEmptyInputs(t *testing.T) {
	if NormalizeStringMap(nil) != nil {
		t.Fatal("expected nil for nil input")
	}
	if NormalizeStringMap(map[string]string{}) != nil {
		t.Fatal("expected nil for empty map")
	}
	if NormalizeStringMap(map[string]string{"  ": "x"}) != nil {
		t.Fatal("expected nil when no key survives trimming")
	}
}
