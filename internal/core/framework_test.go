package core

import "testing"

func TestParseFramework(t *testing.T) {
	tests := []struct {
		tfm        string
		identifier string
		major      int
		minor      int
	}{
		{"net8.0", ".NETCoreApp", 8, 0},
		{"netstandard2.1", ".NETStandard", 2, 1},
		{"netcoreapp3.1", ".NETCoreApp", 3, 1},
		{"net481", ".NETFramework", 4, 8},
		{"net45", ".NETFramework", 4, 5},
	}

	for _, tt := range tests {
		t.Run(tt.tfm, func(t *testing.T) {
			f, err := ParseFramework(tt.tfm)
			if err != nil {
				t.Fatalf("ParseFramework(%q) error = %v", tt.tfm, err)
			}
			if f.Identifier != tt.identifier || f.Major != tt.major || f.Minor != tt.minor {
				t.Errorf("ParseFramework(%q) = %+v, want {%s %d %d}", tt.tfm, f, tt.identifier, tt.major, tt.minor)
			}
		})
	}
}

func TestIsCompatible(t *testing.T) {
	tests := []struct {
		project, candidate string
		want               bool
	}{
		{"net8.0", "netstandard2.0", true},
		{"net8.0", "net8.0", true},
		{"net8.0", "net9.0", false},
		{"netstandard2.0", "netstandard2.1", false},
		{"netstandard2.1", "netstandard2.0", true},
		{"net45", "netstandard1.1", true},
		{"net45", "netstandard2.0", false},
		{"net8.0", "any", true},
	}

	for _, tt := range tests {
		t.Run(tt.project+"_"+tt.candidate, func(t *testing.T) {
			if got := IsCompatible(tt.project, tt.candidate); got != tt.want {
				t.Errorf("IsCompatible(%q, %q) = %v, want %v", tt.project, tt.candidate, got, tt.want)
			}
		})
	}
}
