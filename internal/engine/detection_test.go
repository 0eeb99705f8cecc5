package engine

import (
	"testing"
)

func TestBBoxIoU_Identical(t *testing.T) {
	b := BBox{X: 10, Y: 20, W: 100, H: 200}
	if iou := b.IoU(b); iou != 1.0 {
		t.Errorf("expected IoU 1.0 for identical boxes, got %v", iou)
	}
}

func TestBBoxIoU_Disjoint(t *testing.T) {
	a := BBox{X: 0, Y: 0, W: 10, H: 10}
	b := BBox{X: 100, Y: 100, W: 10, H: 10}
	if iou := a.IoU(b); iou != 0 {
		t.Errorf("expected IoU 0 for disjoint boxes, got %v", iou)
	}
}

func TestBBoxIoU_HalfOverlap(t *testing.T) {
	// Two 10x10 boxes offset by 5 in x: intersection 50, union 150.
	a := BBox{X: 0, Y: 0, W: 10, H: 10}
	b := BBox{X: 5, Y: 0, W: 10, H: 10}
	want := float32(50.0 / 150.0)
	if iou := a.IoU(b); iou != want {
		t.Errorf("expected IoU %v, got %v", want, iou)
	}
}

func TestBBoxIoU_Degenerate(t *testing.T) {
	a := BBox{X: 0, Y: 0, W: 0, H: 10}
	b := BBox{X: 0, Y: 0, W: 10, H: 10}
	if iou := a.IoU(b); iou != 0 {
		t.Errorf("expected IoU 0 for degenerate box, got %v", iou)
	}
}

func TestDetectionValidate(t *testing.T) {
	tests := []struct {
		name    string
		det     Detection
		wantErr bool
	}{
		{"valid", Detection{Box: BBox{W: 10, H: 20}, Confidence: 0.9}, false},
		{"zero width", Detection{Box: BBox{W: 0, H: 20}, Confidence: 0.9}, true},
		{"negative height", Detection{Box: BBox{W: 10, H: -5}, Confidence: 0.9}, true},
		{"confidence above one", Detection{Box: BBox{W: 10, H: 20}, Confidence: 1.5}, true},
		{"negative confidence", Detection{Box: BBox{W: 10, H: 20}, Confidence: -0.1}, true},
		{"low confidence is not malformed", Detection{Box: BBox{W: 10, H: 20}, Confidence: 0.01}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.det.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
