package overlay

import (
	"math"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const geomTolerance = 1e-9

func det(id string, x, y, w, h float64) RawDetection {
	return RawDetection{TrackingID: id, Bounds: Rect{X: x, Y: y, Width: w, Height: h}}
}

func TestNormalize_FrontCameraExample(t *testing.T) {
	vp := Viewport{Width: 400, Height: 800}

	f, err := Normalize(det("1", 0.5, 0.2, 0.2, 0.1), FacingFront, vp)
	require.NoError(t, err)

	assert.InDelta(t, 120, f.Rect.X, geomTolerance)
	assert.InDelta(t, 160, f.Rect.Y, geomTolerance)
	assert.InDelta(t, 80, f.Rect.Width, geomTolerance)
	assert.InDelta(t, 80, f.Rect.Height, geomTolerance)
	assert.Equal(t, "1", f.ID)
	assert.False(t, f.Synthetic)
}

func TestNormalize_BackCameraNotMirrored(t *testing.T) {
	vp := Viewport{Width: 400, Height: 800}

	f, err := Normalize(det("1", 0.5, 0.2, 0.2, 0.1), FacingBack, vp)
	require.NoError(t, err)
	assert.InDelta(t, 200, f.Rect.X, geomTolerance)
	assert.InDelta(t, 160, f.Rect.Y, geomTolerance)
}

func TestNormalize_PreviewHeightScalesVertical(t *testing.T) {
	vp := Viewport{Width: 400, Height: 1000, PreviewHeight: 500}

	f, err := Normalize(det("1", 0.1, 0.5, 0.2, 0.2), FacingBack, vp)
	require.NoError(t, err)

	// y and height both scale against the preview height, not the screen height.
	assert.InDelta(t, 250, f.Rect.Y, geomTolerance)
	assert.InDelta(t, 100, f.Rect.Height, geomTolerance)
	assert.InDelta(t, 80, f.Rect.Width, geomTolerance)
}

func TestNormalize_ContainedInViewport(t *testing.T) {
	viewports := []Viewport{
		{Width: 400, Height: 800},
		{Width: 1, Height: 1},
		{Width: 1920, Height: 1080},
		{Width: 360, Height: 740, PreviewHeight: 370},
	}
	values := []float64{-0.5, -0.01, 0, 0.25, 0.5, 0.99, 1, 1.3}

	for _, vp := range viewports {
		refH := vp.ReferenceHeight()
		for _, facing := range []Facing{FacingBack, FacingFront} {
			for _, x := range values {
				for _, y := range values {
					for _, w := range values {
						for _, h := range values {
							f, err := Normalize(det("1", x, y, w, h), facing, vp)
							require.NoError(t, err)

							r := f.Rect
							ok := r.X >= 0 && r.Y >= 0 &&
								r.Width >= 0 && r.Height >= 0 &&
								r.X+r.Width <= vp.Width+geomTolerance &&
								r.Y+r.Height <= refH+geomTolerance &&
								refH <= vp.Height
							if !ok {
								t.Fatalf("rect %+v escapes viewport %+v (facing=%s bounds=%v,%v,%v,%v)",
									r, vp, facing, x, y, w, h)
							}
						}
					}
				}
			}
		}
	}
}

func TestNormalize_MirrorIsInvolution(t *testing.T) {
	vp := Viewport{Width: 400, Height: 800}
	cases := []RawDetection{
		det("1", 0.5, 0.2, 0.2, 0.1),
		det("2", 0, 0, 0.3, 0.3),
		det("3", 0.9, 0.9, 0.3, 0.3),
		det("4", -0.2, 0.4, 0.5, 0.1),
	}

	for _, d := range cases {
		front, err := Normalize(d, FacingFront, vp)
		require.NoError(t, err)
		back, err := Normalize(d, FacingBack, vp)
		require.NoError(t, err)

		unmirrored := Mirror(front.Rect, vp.Width)
		assert.InDelta(t, back.Rect.X, unmirrored.X, geomTolerance, "tracking id %s", d.TrackingID)
		assert.InDelta(t, back.Rect.Y, unmirrored.Y, geomTolerance)
		assert.InDelta(t, back.Rect.Width, unmirrored.Width, geomTolerance)
		assert.InDelta(t, front.Rect.X, Mirror(Mirror(front.Rect, vp.Width), vp.Width).X, geomTolerance)
	}
}

func TestNormalize_ViewportNotReady(t *testing.T) {
	for _, vp := range []Viewport{
		{},
		{Width: 400},
		{Height: 800},
		{Width: -1, Height: 800},
	} {
		_, err := Normalize(det("1", 0.1, 0.1, 0.1, 0.1), FacingBack, vp)
		var gerr *GeometryError
		require.ErrorAs(t, err, &gerr, "viewport %+v", vp)
		assert.Equal(t, vp, gerr.Viewport)
	}
}

func TestNormalize_InvalidBounds(t *testing.T) {
	vp := Viewport{Width: 400, Height: 800}
	_, err := Normalize(det("1", math.NaN(), 0.1, 0.1, 0.1), FacingBack, vp)
	assert.ErrorIs(t, err, ErrInvalidBounds)

	_, err = Normalize(det("1", 0.1, 0.1, math.Inf(1), 0.1), FacingBack, vp)
	assert.ErrorIs(t, err, ErrInvalidBounds)
}

func TestNormalize_CopiesAttributes(t *testing.T) {
	vp := Viewport{Width: 400, Height: 800}
	d := det("1", 0.1, 0.1, 0.1, 0.1)
	d.Attributes = Attributes{AttrSmile: 0.8, AttrYaw: -12}

	f, err := Normalize(d, FacingFront, vp)
	require.NoError(t, err)

	d.Attributes[AttrSmile] = 0
	v, ok := f.Attributes.Get(AttrSmile)
	assert.True(t, ok)
	assert.InDelta(t, 0.8, v, geomTolerance)
	_, ok = f.Attributes.Get(AttrLeftEyeOpen)
	assert.False(t, ok)
}

func TestNormalizeBatch_PlaceholderIDs(t *testing.T) {
	vp := Viewport{Width: 400, Height: 800}
	var ids IDSource

	faces, err := NormalizeBatch([]RawDetection{
		det("", 0.1, 0.1, 0.1, 0.1),
		det("7", 0.3, 0.1, 0.1, 0.1),
		det("", 0.5, 0.1, 0.1, 0.1),
	}, FacingBack, vp, &ids, 0)
	require.NoError(t, err)
	require.Len(t, faces, 3)

	assert.Equal(t, "~1", faces[0].ID)
	assert.True(t, faces[0].Synthetic)
	assert.Equal(t, "7", faces[1].ID)
	assert.False(t, faces[1].Synthetic)
	assert.Equal(t, "~2", faces[2].ID)

	ids.Reset()
	assert.Equal(t, "~1", ids.Next())
	assert.True(t, IsSyntheticID("~1"))
	assert.False(t, IsSyntheticID("1"))
}

func TestNormalizeBatch_FiltersAndFailures(t *testing.T) {
	vp := Viewport{Width: 400, Height: 800}
	var ids IDSource

	low := det("1", 0.1, 0.1, 0.1, 0.1)
	low.Confidence = lo.ToPtr(0.2)
	high := det("2", 0.1, 0.1, 0.1, 0.1)
	high.Confidence = lo.ToPtr(0.9)
	broken := det("3", math.NaN(), 0, 0, 0)
	broken.Confidence = lo.ToPtr(0.9)

	faces, err := NormalizeBatch([]RawDetection{low, high, broken}, FacingBack, vp, &ids, 0.5)
	require.NoError(t, err)
	require.Len(t, faces, 1)
	assert.Equal(t, "2", faces[0].ID)

	_, err = NormalizeBatch([]RawDetection{high}, FacingBack, Viewport{}, &ids, 0)
	var gerr *GeometryError
	assert.ErrorAs(t, err, &gerr)

	faces, err = NormalizeBatch(nil, FacingBack, vp, &ids, 0)
	require.NoError(t, err)
	assert.Empty(t, faces)
}

func TestNormalizeBatch_UnscoredDetectionsPassConfidenceFloor(t *testing.T) {
	vp := Viewport{Width: 400, Height: 800}
	var ids IDSource

	unscored := det("1", 0.1, 0.1, 0.1, 0.1)
	zero := det("2", 0.5, 0.1, 0.1, 0.1)
	zero.Confidence = lo.ToPtr(0.0)

	faces, err := NormalizeBatch([]RawDetection{unscored, zero}, FacingBack, vp, &ids, 0.4)
	require.NoError(t, err)
	require.Len(t, faces, 1)
	assert.Equal(t, "1", faces[0].ID)
	assert.Nil(t, faces[0].Confidence)
}

func TestParseFacing(t *testing.T) {
	f, err := ParseFacing("Front")
	require.NoError(t, err)
	assert.Equal(t, FacingFront, f)
	assert.Equal(t, "front", f.String())

	f, err = ParseFacing(" back ")
	require.NoError(t, err)
	assert.Equal(t, FacingBack, f)

	_, err = ParseFacing("sideways")
	assert.Error(t, err)
}

func TestViewport_Validate(t *testing.T) {
	assert.NoError(t, Viewport{}.Validate())
	assert.NoError(t, Viewport{Width: 400, Height: 800, PreviewHeight: 400}.Validate())
	assert.Error(t, Viewport{Width: -1, Height: 800}.Validate())
	assert.Error(t, Viewport{Width: 400, Height: 800, PreviewHeight: 900}.Validate())
	assert.Error(t, Viewport{Width: math.Inf(1), Height: 800}.Validate())
}

func TestIoU(t *testing.T) {
	a := Rect{X: 0, Y: 0, Width: 10, Height: 10}
	assert.InDelta(t, 1, iou(a, a), geomTolerance)
	assert.InDelta(t, 0, iou(a, Rect{X: 20, Y: 20, Width: 10, Height: 10}), geomTolerance)
	// Half overlap: intersection 50, union 150.
	assert.InDelta(t, 1.0/3.0, iou(a, Rect{X: 5, Y: 0, Width: 10, Height: 10}), geomTolerance)
	assert.Zero(t, iou(Rect{}, Rect{}))
}

func TestAttributes_SmileLevel(t *testing.T) {
	cases := map[float64]string{
		0.95: SmileHappy,
		0.7:  SmileHappy,
		0.65: SmileHappy, // rounds to 0.7
		0.5:  SmileNeutral,
		0.4:  SmileNeutral,
		0.34: SmileSad,
		0:    SmileSad,
	}
	for v, want := range cases {
		got, ok := Attributes{AttrSmile: v}.SmileLevel()
		assert.True(t, ok)
		assert.Equal(t, want, got, "smile %.2f", v)
	}

	_, ok := Attributes{AttrYaw: 10}.SmileLevel()
	assert.False(t, ok)
	_, ok = Attributes(nil).SmileLevel()
	assert.False(t, ok)
}
