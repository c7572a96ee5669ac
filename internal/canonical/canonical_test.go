package canonical_test

import (
	"encoding/json"
	"testing"

	"github.com/passportal/auditledger/internal/canonical"
)

func TestMarshalSortedKeys(t *testing.T) {
	a := canonical.ObjectValue(map[string]canonical.Value{
		"b": canonical.IntValue(2),
		"a": canonical.IntValue(1),
	})

	got := string(canonical.Marshal(a))
	want := `{"a":1,"b":2}`
	if got != want {
		t.Fatalf("canonical output mismatch: got %s want %s", got, want)
	}
}

func TestMarshalSeparatorsAndShapes(t *testing.T) {
	v := canonical.ObjectValue(map[string]canonical.Value{
		"list": canonical.ArrayValue(canonical.IntValue(3), canonical.IntValue(2), canonical.IntValue(1)),
		"num":  canonical.NumberValue("123.45"),
		"str":  canonical.StringValue("hello"),
		"bool": canonical.BoolValue(true),
		"nil":  canonical.NullValue(),
	})

	got := string(canonical.Marshal(v))
	want := `{"bool":true,"list":[3,2,1],"nil":null,"num":123.45,"str":"hello"}`
	if got != want {
		t.Fatalf("canonical output mismatch:\ngot:  %s\nwant: %s", got, want)
	}

	// Ensure the output is valid JSON.
	var tmp interface{}
	if err := json.Unmarshal([]byte(got), &tmp); err != nil {
		t.Fatalf("canonical output is not valid JSON: %v", err)
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	in := []byte(`{"z": {"k": [1, "two", false]}, "a": 9007199254740993, "f": 0.1}`)

	v, err := canonical.Decode(in)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	first := canonical.Marshal(v)

	// Decoding canonical bytes and re-marshaling must be byte-identical,
	// including big-integer and decimal text.
	v2, err := canonical.Decode(first)
	if err != nil {
		t.Fatalf("Decode canonical bytes: %v", err)
	}
	second := canonical.Marshal(v2)
	if string(first) != string(second) {
		t.Fatalf("round trip not stable:\nfirst:  %s\nsecond: %s", first, second)
	}

	want := `{"a":9007199254740993,"f":0.1,"z":{"k":[1,"two",false]}}`
	if string(first) != want {
		t.Fatalf("canonical bytes mismatch:\ngot:  %s\nwant: %s", first, want)
	}
}

func TestMarshalCanonicalInterface(t *testing.T) {
	a := map[string]interface{}{"b": 2, "a": 1}
	b := map[string]interface{}{"a": 1, "b": 2}

	ca, err := canonical.MarshalCanonical(a)
	if err != nil {
		t.Fatalf("MarshalCanonical(a) error: %v", err)
	}
	cb, err := canonical.MarshalCanonical(b)
	if err != nil {
		t.Fatalf("MarshalCanonical(b) error: %v", err)
	}
	if string(ca) != string(cb) {
		t.Fatalf("canonical outputs differ:\nA: %s\nB: %s", ca, cb)
	}
}

func TestFromInterfaceRejectsNonJSON(t *testing.T) {
	if _, err := canonical.FromInterface(make(chan int)); err == nil {
		t.Fatalf("expected error for non-JSON value")
	}
}
