package pixelmap

import (
	"runtime"

	"github.com/kpfaulkner/pixmap-go/imgerr"
)

func (pb *PixelBuffer) checkAddressable(op string) error {
	if pb.store == nil {
		return errReleased(op)
	}
	if pb.info.PixelFormat.IsYUV() {
		return imgerr.New(imgerr.InvalidParameter, op, "%s has no per pixel access", pb.info.PixelFormat)
	}
	if int64(pb.rowStride)*int64(pb.Height()) > int64(len(pb.store.bytes())) {
		return imgerr.New(imgerr.InvalidParameter, op, "stride %d x height %d exceeds capacity %d", pb.rowStride, pb.Height(), len(pb.store.bytes()))
	}
	return nil
}

func (pb *PixelBuffer) pixelOffset(op string, x int, y int) (int, error) {
	if err := pb.checkAddressable(op); err != nil {
		return 0, err
	}
	if x < 0 || y < 0 || x >= pb.Width() || y >= pb.Height() {
		return 0, imgerr.New(imgerr.InvalidParameter, op, "position (%d,%d) outside %dx%d", x, y, pb.Width(), pb.Height())
	}
	return y*pb.rowStride + x*pb.info.PixelFormat.BytesPerPixel(), nil
}

// ReadPixel returns the pixel at (x,y) as 0xAARRGGBB, with alpha as stored.
func (pb *PixelBuffer) ReadPixel(x int, y int) (uint32, error) {
	defer runtime.KeepAlive(pb)
	off, err := pb.pixelOffset("read pixel", x, y)
	if err != nil {
		return 0, err
	}
	return ARGB(loadPixel(pb.info.PixelFormat, pb.store.bytes()[off:])), nil
}

// WritePixel stores a 0xAARRGGBB color at (x,y).
func (pb *PixelBuffer) WritePixel(x int, y int, argb uint32) error {
	if err := pb.checkWritable("write pixel"); err != nil {
		return err
	}
	off, err := pb.pixelOffset("write pixel", x, y)
	if err != nil {
		return err
	}
	storePixel(pb.info.PixelFormat, pb.store.bytes()[off:], FromARGB(argb))
	pb.bump()
	return nil
}

// regionSpan validates a region copy against both this buffer and the caller's
// slice, returning the number of bytes in one region row.
func (pb *PixelBuffer) regionSpan(op string, region Rect, other []byte, otherStride int) (int, error) {
	if err := pb.checkAddressable(op); err != nil {
		return 0, err
	}
	if !region.Within(pb.Width(), pb.Height()) {
		return 0, imgerr.New(imgerr.InvalidParameter, op, "region %+v outside %dx%d", region, pb.Width(), pb.Height())
	}
	rowBytes := region.Width * pb.info.PixelFormat.BytesPerPixel()
	if otherStride < rowBytes {
		return 0, imgerr.New(imgerr.InvalidParameter, op, "stride %d below row size %d", otherStride, rowBytes)
	}
	need := int64(otherStride)*int64(region.Height-1) + int64(rowBytes)
	if need > int64(len(other)) {
		return 0, imgerr.New(imgerr.InvalidParameter, op, "buffer of %d bytes too small, need %d", len(other), need)
	}
	return rowBytes, nil
}

// ReadRegion copies the pixels of region into dst, in this buffer's pixel format,
// with dstStride bytes between rows.
func (pb *PixelBuffer) ReadRegion(region Rect, dst []byte, dstStride int) error {
	defer runtime.KeepAlive(pb)
	rowBytes, err := pb.regionSpan("read region", region, dst, dstStride)
	if err != nil {
		return err
	}
	bpp := pb.info.PixelFormat.BytesPerPixel()
	src := pb.store.bytes()
	for y := 0; y < region.Height; y++ {
		s := (region.Top+y)*pb.rowStride + region.Left*bpp
		copy(dst[y*dstStride:y*dstStride+rowBytes], src[s:s+rowBytes])
	}
	return nil
}

// WriteRegion copies src, laid out with srcStride, into region.
func (pb *PixelBuffer) WriteRegion(region Rect, src []byte, srcStride int) error {
	if err := pb.checkWritable("write region"); err != nil {
		return err
	}
	rowBytes, err := pb.regionSpan("write region", region, src, srcStride)
	if err != nil {
		return err
	}
	bpp := pb.info.PixelFormat.BytesPerPixel()
	dst := pb.store.bytes()
	for y := 0; y < region.Height; y++ {
		d := (region.Top+y)*pb.rowStride + region.Left*bpp
		copy(dst[d:d+rowBytes], src[y*srcStride:y*srcStride+rowBytes])
	}
	pb.bump()
	return nil
}

// Erase fills every pixel with a 0xAARRGGBB color.
func (pb *PixelBuffer) Erase(argb uint32) error {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	if err := pb.checkWritable("erase"); err != nil {
		return err
	}
	if err := pb.checkAddressable("erase"); err != nil {
		return err
	}
	bpp := pb.info.PixelFormat.BytesPerPixel()
	pixel := make([]byte, bpp)
	storePixel(pb.info.PixelFormat, pixel, FromARGB(argb))

	buf := pb.store.bytes()
	for y := 0; y < pb.Height(); y++ {
		row := buf[y*pb.rowStride:]
		for x := 0; x < pb.Width(); x++ {
			copy(row[x*bpp:], pixel)
		}
	}
	pb.bump()
	return nil
}
