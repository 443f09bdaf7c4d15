package typecheck

import "testing"

func TestCompatibleWith(t *testing.T) {
	tests := []struct {
		name    string
		version string
		want    bool
	}{
		{name: "current version", version: "0.5.0", want: true},
		{name: "with v prefix", version: "v0.5.0", want: true},
		{name: "minimum supported", version: "0.4.0", want: true},
		{name: "newer patch", version: "0.5.9", want: true},
		{name: "too old", version: "0.3.2", want: false},
		{name: "different major", version: "1.0.0", want: false},
		{name: "not a version", version: "latest", want: false},
		{name: "empty", version: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CompatibleWith(tt.version); got != tt.want {
				t.Errorf("CompatibleWith(%q) = %v, want %v", tt.version, got, tt.want)
			}
		})
	}
}

func TestGetInfo(t *testing.T) {
	info := GetInfo()
	if info.Version != Version {
		t.Errorf("Info.Version = %q, want %q", info.Version, Version)
	}
	if info.MinClientVersion != MinClientVersion {
		t.Errorf("Info.MinClientVersion = %q, want %q", info.MinClientVersion, MinClientVersion)
	}
}

func TestCheckerRoundTrip(t *testing.T) {
	var checked int
	c := New(Options{
		Workers:   1,
		CheckFile: func(string) error { checked++; return nil },
	})
	if !c.Check([]string{"a.rb", "b.rb"}) {
		t.Fatal("Check() = false")
	}
	if checked != 2 {
		t.Errorf("checked %d files, want 2", checked)
	}
}
