package geom

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsetClampsInsteadOfInverting(t *testing.T) {
	r := Rect{X1: 612, Y1: 792}
	assert.Equal(t, Rect{X0: 10, Y0: 10, X1: 602, Y1: 782}, r.Inset(10))

	tight := Rect{X1: 20, Y1: 100}.Inset(15)
	assert.Equal(t, 0.0, tight.Width())
	assert.Equal(t, 70.0, tight.Height())
	assert.True(t, tight.IsEmpty())
}

func TestUnion(t *testing.T) {
	a := Rect{X0: 0, Y0: 0, X1: 10, Y1: 10}
	b := Rect{X0: 5, Y0: 5, X1: 20, Y1: 20}
	assert.Equal(t, Rect{X0: 0, Y0: 0, X1: 20, Y1: 20}, a.Union(b))
}

func TestLandscape(t *testing.T) {
	assert.Equal(t, Size{Width: 792, Height: 612}, Size{Width: 612, Height: 792}.Landscape())
	assert.Equal(t, Size{Width: 792, Height: 612}, Size{Width: 792, Height: 612}.Landscape())
}

func TestFit(t *testing.T) {
	tests := []struct {
		name    string
		src     Rect
		dst     Rect
		upscale bool
		want    Rect
		scale   float64
	}{
		{
			name:    "portrait into half sheet",
			src:     Rect{X1: 612, Y1: 792},
			dst:     Rect{X0: 396, X1: 792, Y1: 612},
			upscale: true,
			scale:   396.0 / 612.0,
			want:    Rect{X0: 396, Y0: (612 - 792*396.0/612.0) / 2, X1: 792, Y1: (612-792*396.0/612.0)/2 + 792*396.0/612.0},
		},
		{
			name:    "no upscale keeps natural size centered",
			src:     Rect{X1: 100, Y1: 50},
			dst:     Rect{X1: 300, Y1: 300},
			upscale: false,
			scale:   1,
			want:    Rect{X0: 100, Y0: 125, X1: 200, Y1: 175},
		},
		{
			name:    "upscale fills the limiting edge",
			src:     Rect{X1: 100, Y1: 50},
			dst:     Rect{X1: 300, Y1: 300},
			upscale: true,
			scale:   3,
			want:    Rect{X0: 0, Y0: 75, X1: 300, Y1: 225},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, got, ok := Fit(tt.src, tt.dst, tt.upscale)
			assert.True(t, ok)
			assert.InDelta(t, tt.scale, tr.Scale, 1e-9)
			assert.InDelta(t, tt.want.X0, got.X0, 1e-9)
			assert.InDelta(t, tt.want.Y0, got.Y0, 1e-9)
			assert.InDelta(t, tt.want.X1, got.X1, 1e-9)
			assert.InDelta(t, tt.want.Y1, got.Y1, 1e-9)

			mapped := tr.ApplyRect(tt.src)
			assert.InDelta(t, got.X0, mapped.X0, 1e-9)
			assert.InDelta(t, got.Y1, mapped.Y1, 1e-9)
		})
	}
}

func TestFitDegenerate(t *testing.T) {
	_, _, ok := Fit(Rect{X1: 0, Y1: 10}, Rect{X1: 10, Y1: 10}, true)
	assert.False(t, ok)
	_, _, ok = Fit(Rect{X1: 10, Y1: 10}, Rect{X0: 5, X1: 5, Y1: 10}, true)
	assert.False(t, ok)
}
