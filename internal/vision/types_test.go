package vision

import "testing"

func TestBBoxCentroid(t *testing.T) {
	b := BBox{X1: 10, Y1: 20, X2: 30, Y2: 60}
	cx, cy := b.Centroid()
	if cx != 20 || cy != 40 {
		t.Errorf("expected centroid (20,40), got (%d,%d)", cx, cy)
	}
}

func TestBBoxArea(t *testing.T) {
	tests := []struct {
		name string
		box  BBox
		want int
	}{
		{"normal", BBox{0, 0, 10, 10}, 100},
		{"degenerate", BBox{5, 5, 5, 10}, 0},
		{"inverted", BBox{10, 10, 0, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.box.Area(); got != tt.want {
				t.Errorf("Area() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestBBoxIOU(t *testing.T) {
	a := BBox{0, 0, 10, 10}

	if got := a.IOU(a); got != 1.0 {
		t.Errorf("IOU with self = %v, want 1.0", got)
	}
	if got := a.IOU(BBox{20, 20, 30, 30}); got != 0 {
		t.Errorf("IOU of disjoint boxes = %v, want 0", got)
	}

	// Half overlap: intersection 50, union 150.
	b := BBox{5, 0, 15, 10}
	want := 50.0 / 150.0
	if got := a.IOU(b); got < want-1e-9 || got > want+1e-9 {
		t.Errorf("IOU = %v, want %v", got, want)
	}
}

func TestROIContains(t *testing.T) {
	r := ROI{X1: 100, Y1: 100, X2: 200, Y2: 200}

	tests := []struct {
		name   string
		cx, cy int
		want   bool
	}{
		{"centre", 150, 150, true},
		{"edge", 100, 200, true},
		{"outside left", 99, 150, false},
		{"outside below", 150, 201, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Contains(tt.cx, tt.cy); got != tt.want {
				t.Errorf("Contains(%d,%d) = %v, want %v", tt.cx, tt.cy, got, tt.want)
			}
		})
	}
}
