package datastore

import "testing"

func TestToTSQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"finance bill", "finance & bill"},
		{"  ", ""},
		{"Finance, Bill!!", "Finance & Bill"},
		{"SENATE", "SENATE"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := toTSQuery(tt.in); got != tt.want {
				t.Errorf("toTSQuery(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
