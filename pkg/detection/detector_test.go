package detection

import (
	"errors"
	"image"
	"testing"

	"github.com/teslashibe/go-checkout/pkg/vision"
)

func TestDetection_Center(t *testing.T) {
	tests := []struct {
		name    string
		det     Detection
		expectX float64
		expectY float64
	}{
		{
			name:    "center of image",
			det:     Detection{X: 0.25, Y: 0.25, W: 0.5, H: 0.5},
			expectX: 0.5,
			expectY: 0.5,
		},
		{
			name:    "top left corner",
			det:     Detection{X: 0, Y: 0, W: 0.2, H: 0.2},
			expectX: 0.1,
			expectY: 0.1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			x, y := tc.det.Center()
			if x != tc.expectX {
				t.Errorf("Center X: got %.2f, want %.2f", x, tc.expectX)
			}
			if y != tc.expectY {
				t.Errorf("Center Y: got %.2f, want %.2f", y, tc.expectY)
			}
		})
	}
}

func TestDetection_Rect(t *testing.T) {
	d := Detection{X: 0.25, Y: 0.5, W: 0.5, H: 0.25}
	got := d.Rect(640, 480)
	want := image.Rect(160, 240, 480, 360)
	if got != want {
		t.Errorf("Rect: got %v, want %v", got, want)
	}
}

func TestFilterMinSize(t *testing.T) {
	dets := []Detection{
		{X: 0, Y: 0, W: 0.1, H: 0.1},     // 64x48 on 640x480
		{X: 0.5, Y: 0.2, W: 0.3, H: 0.4}, // 192x192
		{X: 0.1, Y: 0.1, W: 0.3, H: 0.1}, // 192x48
	}

	tests := []struct {
		name  string
		minPx int
		want  int
	}{
		{name: "disabled", minPx: 0, want: 3},
		{name: "opencv cascade default", minPx: 100, want: 1},
		{name: "everything too small", minPx: 500, want: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := FilterMinSize(dets, 640, 480, tc.minPx)
			if len(got) != tc.want {
				t.Errorf("FilterMinSize kept %d, want %d", len(got), tc.want)
			}
		})
	}

	if len(dets) != 3 || dets[0].W != 0.1 {
		t.Error("FilterMinSize must not modify its input")
	}
}

func TestStatic(t *testing.T) {
	s := &Static{Detections: []Detection{{X: 0.1, Y: 0.1, W: 0.5, H: 0.5, Confidence: 0.9}}}
	got, err := s.Locate(vision.Frame{})
	if err != nil || len(got) != 1 {
		t.Fatalf("Locate = %v, %v", got, err)
	}

	got[0].X = 0.9
	again, _ := s.Locate(vision.Frame{})
	if again[0].X != 0.1 {
		t.Error("Static should hand out copies")
	}

	boom := errors.New("boom")
	s.Err = boom
	if _, err := s.Locate(vision.Frame{}); !errors.Is(err, boom) {
		t.Errorf("expected configured error, got %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ModelPath == "" {
		t.Error("DefaultConfig: ModelPath should not be empty")
	}
	if cfg.ConfidenceThresh <= 0 || cfg.ConfidenceThresh > 1 {
		t.Errorf("DefaultConfig: ConfidenceThresh should be 0-1, got %f", cfg.ConfidenceThresh)
	}
	if cfg.MinFaceSize != 100 {
		t.Errorf("DefaultConfig: MinFaceSize = %d, want 100", cfg.MinFaceSize)
	}
}

func TestSortLargestFirst(t *testing.T) {
	tests := []struct {
		name   string
		dets   []Detection
		expect []float64 // X of each detection after sorting
	}{
		{name: "empty list", dets: nil, expect: nil},
		{
			name:   "bigger face leads regardless of confidence",
			dets:   []Detection{{X: 0.1, W: 0.1, H: 0.1, Confidence: 0.99}, {X: 0.5, W: 0.3, H: 0.4, Confidence: 0.6}},
			expect: []float64{0.5, 0.1},
		},
		{
			name:   "equal areas keep order",
			dets:   []Detection{{X: 0.1, W: 0.2, H: 0.2}, {X: 0.5, W: 0.2, H: 0.2}, {X: 0.7, W: 0.05, H: 0.05}},
			expect: []float64{0.1, 0.5, 0.7},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			SortLargestFirst(tc.dets)
			if len(tc.dets) != len(tc.expect) {
				t.Fatalf("got %d detections, want %d", len(tc.dets), len(tc.expect))
			}
			for i, x := range tc.expect {
				if tc.dets[i].X != x {
					t.Errorf("detection %d X = %.2f, want %.2f", i, tc.dets[i].X, x)
				}
			}
		})
	}
}
