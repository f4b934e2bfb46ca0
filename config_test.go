package tcx

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestParseParams(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    Params
		wantErr error
	}{
		{name: "empty keeps defaults", data: "", want: DefaultParams()},
		{name: "threshold only", data: "high_altitude: 2000\n", want: Params{HighAltitude: 2000, Recovery: true}},
		{name: "recovery off", data: "recovery: false\n", want: Params{HighAltitude: 1500, Recovery: false}},
		{name: "both", data: "high_altitude: 800.5\nrecovery: false\n", want: Params{HighAltitude: 800.5}},
		{name: "non-finite threshold", data: "high_altitude: .nan\n", wantErr: ErrInvalidValue},
		{name: "infinite threshold", data: "high_altitude: .inf\n", wantErr: ErrInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseParams([]byte(tt.data))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseParams error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("parseParams = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLoadParams(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.yaml")
	if err := os.WriteFile(path, []byte("high_altitude: 1200\n"), 0o644); err != nil {
		t.Fatalf("write params: %v", err)
	}
	got, err := LoadParams(path)
	if err != nil {
		t.Fatalf("LoadParams error: %v", err)
	}
	if got.HighAltitude != 1200 || !got.Recovery {
		t.Fatalf("LoadParams = %+v", got)
	}

	if _, err := LoadParams(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDefaultParamsAreIndependent(t *testing.T) {
	p := DefaultParams()
	p.HighAltitude = 1
	p.Recovery = false
	if d := DefaultParams(); d.HighAltitude != 1500 || !d.Recovery {
		t.Fatalf("defaults changed after mutating a copy: %+v", d)
	}
}
