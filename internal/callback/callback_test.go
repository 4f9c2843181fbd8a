package callback

import (
	"reflect"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	data := Encode(Assign, "T20250101000000001", "civil_defense")
	if len(data) > 64 {
		t.Fatalf("payload too long: %d", len(data))
	}
	a, args := Decode(data)
	if a != Assign || !reflect.DeepEqual(args, []string{"T20250101000000001", "civil_defense"}) {
		t.Fatalf("decoded %s %v", a, args)
	}
	a, args = Decode(Encode(Cancel))
	if a != Cancel || len(args) != 0 {
		t.Fatalf("decoded %s %v", a, args)
	}
}
