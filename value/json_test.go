package value

import (
	"encoding/json"
	"math"
	"testing"
)

func TestUnmarshalJSON(t *testing.T) {
	tests := []struct {
		in   string
		want Value
	}{
		{`null`, Null()},
		{`true`, Bool(true)},
		{`12`, Int(12)},
		{`-3`, Int(-3)},
		{`12.0`, Float(12)},
		{`1e3`, Float(1000)},
		{`99999999999999999999`, Float(1e20)},
		{`"O'Brien"`, Text("O'Brien")},
		{`[1, "a", null]`, List(Int(1), Text("a"), Null())},
		{`{"a": [0.5]}`, Map(map[string]Value{"a": List(Float(0.5))})},
	}

	for _, tt := range tests {
		var got Value
		if err := json.Unmarshal([]byte(tt.in), &got); err != nil {
			t.Fatalf("Unmarshal(%s) failed: %v", tt.in, err)
		}
		if !Equal(got, tt.want) {
			t.Errorf("Unmarshal(%s) = %v (%s), want %v (%s)", tt.in, got, got.Kind(), tt.want, tt.want.Kind())
		}
	}
}

func TestMarshalJSON_NonFinite(t *testing.T) {
	if _, err := json.Marshal(Float(math.Inf(1))); err == nil {
		t.Fatal("expected error encoding +Inf")
	}
}

func TestMarshalJSON_EmptyListIsArray(t *testing.T) {
	b, err := json.Marshal(List())
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(b) != "[]" {
		t.Errorf("expected [], got %s", b)
	}
}
