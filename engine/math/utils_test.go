package math

import "testing"

func TestClamp(t *testing.T) {
	if got := Clamp(5, 0, 10); got != 5 {
		t.Fatalf("Clamp(5,0,10) = %d", got)
	}
	if got := Clamp(-1, 0, 10); got != 0 {
		t.Fatalf("Clamp(-1,0,10) = %d", got)
	}
	if got := Clamp(11, 0, 10); got != 10 {
		t.Fatalf("Clamp(11,0,10) = %d", got)
	}
	if got := Clamp(0.5, 0.0, 0.25); got != 0.25 {
		t.Fatalf("Clamp(0.5,0,0.25) = %v", got)
	}
}

func TestScaleDimension(t *testing.T) {
	tests := []struct {
		name  string
		size  uint32
		scale float64
		want  uint32
	}{
		{name: "identity", size: 1920, scale: 1, want: 1920},
		{name: "quarter", size: 1080, scale: 0.25, want: 270},
		{name: "rounds to nearest", size: 1082, scale: 0.25, want: 271},
		{name: "never below one", size: 100, scale: 0.001, want: 1},
		{name: "upscale", size: 960, scale: 2, want: 1920},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ScaleDimension(tt.size, tt.scale); got != tt.want {
				t.Fatalf("ScaleDimension(%d, %v) = %d, want %d", tt.size, tt.scale, got, tt.want)
			}
		})
	}
}

func TestDispatchGroups(t *testing.T) {
	tests := []struct {
		size, group, want uint32
	}{
		{64, 8, 8},
		{65, 8, 9},
		{1, 8, 1},
		{1920, 64, 30},
	}
	for _, tt := range tests {
		if got := DispatchGroups(tt.size, tt.group); got != tt.want {
			t.Fatalf("DispatchGroups(%d, %d) = %d, want %d", tt.size, tt.group, got, tt.want)
		}
	}
}
