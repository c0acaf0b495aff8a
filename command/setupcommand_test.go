package command

import (
	"reflect"
	"testing"
)

func TestParseTextCommand(t *testing.T) {
	tests := []struct {
		in       string
		wantName string
		wantArgs []string
		wantOK   bool
	}{
		{"/setar 4c discord", "setar", []string{"4c", "discord"}, true},
		{"  /SETAR   pt   Roblox ", "setar", []string{"pt", "Roblox"}, true},
		{"/listar", "listar", []string{}, true},
		{"/", "", nil, false},
		{"setar 4c discord", "", nil, false},
		{"", "", nil, false},
	}
	for _, tt := range tests {
		name, args, ok := ParseTextCommand(tt.in)
		if ok != tt.wantOK || name != tt.wantName {
			t.Errorf("ParseTextCommand(%q) = %q, %v; want %q, %v", tt.in, name, ok, tt.wantName, tt.wantOK)
			continue
		}
		if ok && !reflect.DeepEqual(args, tt.wantArgs) {
			t.Errorf("ParseTextCommand(%q) args = %#v, want %#v", tt.in, args, tt.wantArgs)
		}
	}
}
