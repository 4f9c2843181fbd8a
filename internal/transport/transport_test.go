package transport

import (
	"reflect"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		cmd  string
		args []string
	}{
		{"/start", "start", []string{}},
		{"/Export@desk_bot csv 2025-01-01 2025-01-31", "export", []string{"csv", "2025-01-01", "2025-01-31"}},
		{"  /cleanup   before 2025-10-01 ", "cleanup", []string{"before", "2025-10-01"}},
		{"hello", "", nil},
		{"/", "", nil},
	}
	for _, tt := range tests {
		cmd, args := ParseCommand(tt.in)
		if cmd != tt.cmd {
			t.Errorf("%q: cmd = %q, want %q", tt.in, cmd, tt.cmd)
		}
		if tt.args != nil && !reflect.DeepEqual(args, tt.args) {
			t.Errorf("%q: args = %v, want %v", tt.in, args, tt.args)
		}
	}
}

func TestCommandRest(t *testing.T) {
	if got := CommandRest("/broadcast  Плановое отключение\nводы"); got != "Плановое отключение\nводы" {
		t.Fatalf("got %q", got)
	}
	if got := CommandRest("/broadcast"); got != "" {
		t.Fatalf("got %q", got)
	}
}
