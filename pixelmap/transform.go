package pixelmap

import (
	"image"
	"math"

	"github.com/kpfaulkner/pixmap-go/imgerr"
	"github.com/kpfaulkner/pixmap-go/util"
	log "github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// AntiAliasing selects the resampling filter used by Scale.
type AntiAliasing int

const (
	AntiAliasingNone AntiAliasing = iota
	AntiAliasingLow
	AntiAliasingMedium
	AntiAliasingHigh
)

func (a AntiAliasing) interpolator() draw.Interpolator {
	switch a {
	case AntiAliasingLow:
		return draw.ApproxBiLinear
	case AntiAliasingMedium:
		return draw.BiLinear
	case AntiAliasingHigh:
		return draw.CatmullRom
	}
	return draw.NearestNeighbor
}

func (pb *PixelBuffer) checkTransform(op string) error {
	if err := pb.checkWritable(op); err != nil {
		return err
	}
	return pb.checkAddressable(op)
}

// Scale resizes by the given factors. A negative factor mirrors that axis.
func (pb *PixelBuffer) Scale(xScale float64, yScale float64, aa AntiAliasing) error {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	if err := pb.checkTransform("scale"); err != nil {
		return err
	}
	if xScale == 0 || yScale == 0 || math.IsNaN(xScale) || math.IsNaN(yScale) {
		return imgerr.New(imgerr.InvalidParameter, "scale", "invalid scale %gx%g", xScale, yScale)
	}
	w := util.RoundToInt(float64(pb.Width()) * math.Abs(xScale))
	h := util.RoundToInt(float64(pb.Height()) * math.Abs(yScale))
	if w <= 0 || h <= 0 {
		return imgerr.New(imgerr.InvalidParameter, "scale", "result size %dx%d is empty", w, h)
	}
	if w == pb.Width() && h == pb.Height() {
		if xScale < 0 || yScale < 0 {
			pb.flip(xScale < 0, yScale < 0)
		}
		return nil
	}
	return pb.resizeMirrored(w, h, aa, xScale < 0, yScale < 0)
}

// Resize scales to an exact size.
func (pb *PixelBuffer) Resize(width int, height int, aa AntiAliasing) error {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	if err := pb.checkTransform("resize"); err != nil {
		return err
	}
	return pb.resize(width, height, aa)
}

func (pb *PixelBuffer) resize(w int, h int, aa AntiAliasing) error {
	if w <= 0 || h <= 0 {
		return imgerr.New(imgerr.InvalidParameter, "scale", "result size %dx%d is empty", w, h)
	}
	if w == pb.Width() && h == pb.Height() {
		return nil
	}
	return pb.resizeMirrored(w, h, aa, false, false)
}

// resizeMirrored allocates the new storage before touching any pixels, so a
// failed allocation leaves the buffer as it was. Mirroring happens on the copy.
func (pb *PixelBuffer) resizeMirrored(w int, h int, aa AntiAliasing, mirrorX bool, mirrorY bool) error {
	info := pb.info
	info.Size = Size{Width: w, Height: h}
	st, stride, err := pb.reallocate(info)
	if err != nil {
		log.Errorf("scale to %dx%d failed: %v", w, h, err)
		return err
	}

	src := pb.toNRGBA()
	mirrorNRGBA(src, mirrorX, mirrorY)
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	aa.interpolator().Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	storeNRGBA(st.bytes(), stride, info, dst)
	pb.replaceStorage(st, info, stride)
	return nil
}

func mirrorNRGBA(img *image.NRGBA, horizontal bool, vertical bool) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if horizontal {
		for y := 0; y < h; y++ {
			row := img.Pix[y*img.Stride:]
			for l, r := 0, w-1; l < r; l, r = l+1, r-1 {
				for i := 0; i < 4; i++ {
					row[l*4+i], row[r*4+i] = row[r*4+i], row[l*4+i]
				}
			}
		}
	}
	if vertical {
		line := make([]byte, w*4)
		for t, bt := 0, h-1; t < bt; t, bt = t+1, bt-1 {
			top := img.Pix[t*img.Stride : t*img.Stride+w*4]
			bottom := img.Pix[bt*img.Stride : bt*img.Stride+w*4]
			copy(line, top)
			copy(top, bottom)
			copy(bottom, line)
		}
	}
}

// Flip mirrors the pixels horizontally and/or vertically in place.
func (pb *PixelBuffer) Flip(horizontal bool, vertical bool) error {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	if err := pb.checkTransform("flip"); err != nil {
		return err
	}
	if !horizontal && !vertical {
		return nil
	}
	pb.flip(horizontal, vertical)
	return nil
}

func (pb *PixelBuffer) flip(horizontal bool, vertical bool) {
	buf := pb.store.bytes()
	bpp := pb.info.PixelFormat.BytesPerPixel()
	w, h := pb.Width(), pb.Height()
	tmp := make([]byte, bpp)

	if horizontal {
		for y := 0; y < h; y++ {
			row := buf[y*pb.rowStride:]
			for l, r := 0, w-1; l < r; l, r = l+1, r-1 {
				a := row[l*bpp : l*bpp+bpp]
				b := row[r*bpp : r*bpp+bpp]
				copy(tmp, a)
				copy(a, b)
				copy(b, tmp)
			}
		}
	}
	if vertical {
		rowBytes := pb.info.MinRowStride()
		line := make([]byte, rowBytes)
		for t, b := 0, h-1; t < b; t, b = t+1, b-1 {
			top := buf[t*pb.rowStride : t*pb.rowStride+rowBytes]
			bottom := buf[b*pb.rowStride : b*pb.rowStride+rowBytes]
			copy(line, top)
			copy(top, bottom)
			copy(bottom, line)
		}
	}
	pb.bump()
}

// Rotate turns the image clockwise by degrees. Multiples of 90 are exact pixel
// remaps; other angles are resampled bilinearly into the rotated bounding box.
func (pb *PixelBuffer) Rotate(degrees float64) error {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	if err := pb.checkTransform("rotate"); err != nil {
		return err
	}
	if math.IsNaN(degrees) || math.IsInf(degrees, 0) {
		return imgerr.New(imgerr.InvalidParameter, "rotate", "invalid angle %g", degrees)
	}
	d := util.NormaliseDegrees(degrees)
	switch d {
	case 0:
		return nil
	case 90, 180, 270:
		return pb.rotateRightAngle(int(d))
	}
	return pb.rotateArbitrary(d)
}

func (pb *PixelBuffer) rotateRightAngle(d int) error {
	w, h := pb.Width(), pb.Height()
	info := pb.info
	if d != 180 {
		info.Size = Size{Width: h, Height: w}
	}
	st, stride, err := pb.reallocate(info)
	if err != nil {
		log.Errorf("rotate by %d failed: %v", d, err)
		return err
	}

	bpp := pb.info.PixelFormat.BytesPerPixel()
	src := pb.store.bytes()
	dst := st.bytes()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var dx, dy int
			switch d {
			case 90:
				dx, dy = h-1-y, x
			case 180:
				dx, dy = w-1-x, h-1-y
			case 270:
				dx, dy = y, w-1-x
			}
			s := y*pb.rowStride + x*bpp
			o := dy*stride + dx*bpp
			copy(dst[o:o+bpp], src[s:s+bpp])
		}
	}
	pb.replaceStorage(st, info, stride)
	return nil
}

func (pb *PixelBuffer) rotateArbitrary(degrees float64) error {
	rad := degrees * math.Pi / 180
	sin, cos := math.Sincos(rad)
	w, h := float64(pb.Width()), float64(pb.Height())
	nw := util.RoundToInt(math.Abs(w*cos) + math.Abs(h*sin))
	nh := util.RoundToInt(math.Abs(w*sin) + math.Abs(h*cos))

	info := pb.info
	info.Size = Size{Width: nw, Height: nh}
	if info.PixelFormat.HasAlpha() && info.AlphaType == AlphaOpaque {
		// uncovered corners are transparent
		info.AlphaType = AlphaPremul
	}
	st, stride, err := pb.reallocate(info)
	if err != nil {
		log.Errorf("rotate by %g failed: %v", degrees, err)
		return err
	}

	cx, cy := w/2, h/2
	dcx, dcy := float64(nw)/2, float64(nh)/2
	s2d := f64.Aff3{
		cos, -sin, dcx - cos*cx + sin*cy,
		sin, cos, dcy - sin*cx - cos*cy,
	}
	src := pb.toNRGBA()
	dst := image.NewNRGBA(image.Rect(0, 0, nw, nh))
	draw.BiLinear.Transform(dst, s2d, src, src.Bounds(), draw.Src, nil)
	storeNRGBA(st.bytes(), stride, info, dst)
	pb.replaceStorage(st, info, stride)
	return nil
}

// Crop keeps only rect. A rect equal to the whole image is a no-op; a rect
// that is not contained in the image is rejected.
func (pb *PixelBuffer) Crop(rect Rect) error {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	if err := pb.checkTransform("crop"); err != nil {
		return err
	}
	if rect == (Rect{Width: pb.Width(), Height: pb.Height()}) {
		return nil
	}
	if !rect.Within(pb.Width(), pb.Height()) {
		log.Errorf("invalid crop rect %+v for %dx%d", rect, pb.Width(), pb.Height())
		return imgerr.New(imgerr.InvalidParameter, "crop", "rect %+v outside %dx%d", rect, pb.Width(), pb.Height())
	}

	info := pb.info
	info.Size = Size{Width: rect.Width, Height: rect.Height}
	st, stride, err := pb.reallocate(info)
	if err != nil {
		return err
	}
	bpp := pb.info.PixelFormat.BytesPerPixel()
	src := pb.store.bytes()[rect.Top*pb.rowStride+rect.Left*bpp:]
	copyRows(st.bytes(), stride, src, pb.rowStride, rect.Width*bpp, rect.Height)
	pb.replaceStorage(st, info, stride)
	return nil
}

// Translate moves the content by (dx,dy) pixels. The canvas becomes
// (width+dx) x (height+dy); content pushed past the top or left edge is clipped
// and uncovered pixels are transparent.
func (pb *PixelBuffer) Translate(dx float64, dy float64) error {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	if err := pb.checkTransform("translate"); err != nil {
		return err
	}
	ox, oy := util.RoundToInt(dx), util.RoundToInt(dy)
	if ox == 0 && oy == 0 {
		return nil
	}
	w, h := pb.Width()+ox, pb.Height()+oy
	if w <= 0 || h <= 0 {
		return imgerr.New(imgerr.InvalidParameter, "translate", "offset (%d,%d) leaves an empty image", ox, oy)
	}

	info := pb.info
	info.Size = Size{Width: w, Height: h}
	st, stride, err := pb.reallocate(info)
	if err != nil {
		return err
	}

	bpp := pb.info.PixelFormat.BytesPerPixel()
	src := pb.store.bytes()
	dst := st.bytes()
	clear(dst)
	for y := 0; y < pb.Height(); y++ {
		ty := y + oy
		if ty < 0 || ty >= h {
			continue
		}
		x0 := util.Max(0, -ox)
		x1 := util.Min(pb.Width(), w-ox)
		if x1 <= x0 {
			continue
		}
		s := y*pb.rowStride + x0*bpp
		d := ty*stride + (x0+ox)*bpp
		n := (x1 - x0) * bpp
		copy(dst[d:d+n], src[s:s+n])
	}
	pb.replaceStorage(st, info, stride)
	return nil
}
