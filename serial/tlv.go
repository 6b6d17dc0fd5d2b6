// Package serial turns PixelBuffers into self-describing TLV records and
// into IPC parcels that can share pixel memory with another process.
package serial

import (
	"github.com/kpfaulkner/pixmap-go/imgerr"
	"github.com/kpfaulkner/pixmap-go/pixelmap"
	"github.com/kpfaulkner/pixmap-go/pxio"
	log "github.com/sirupsen/logrus"
)

const (
	TagEnd           uint8 = 0x00
	TagWidth         uint8 = 0x01
	TagHeight        uint8 = 0x02
	TagPixelFormat   uint8 = 0x03
	TagColorSpace    uint8 = 0x04
	TagAlphaType     uint8 = 0x05
	TagBaseDensity   uint8 = 0x06
	TagAllocatorType uint8 = 0x07
	TagPixelData     uint8 = 0x08

	// MaxTLVData caps the pixel payload of one record.
	MaxTLVData = 128 * 1024 * 1024
)

func putAttr(w *pxio.Writer, tag uint8, v int) {
	w.PutU8(tag)
	w.PutVarint(uint32(pxio.VarintLen(uint32(v))))
	w.PutVarint(uint32(v))
}

// EncodeTLV writes the buffer's attributes and tightly packed pixel rows,
// followed by the end tag. Shared memory is recorded as heap since a record
// never carries a mapping.
func EncodeTLV(pb *pixelmap.PixelBuffer) ([]byte, error) {
	if pb == nil || pb.Released() {
		return nil, imgerr.New(imgerr.InvalidParameter, "tlv encode", "no pixel buffer")
	}
	info := pb.Info()
	rowBytes := info.MinRowStride()
	rows := info.PlaneRows()
	dataSize := rowBytes * rows
	if dataSize <= 0 || dataSize > MaxTLVData {
		log.Errorf("tlv encode: %d data bytes outside (0, %d]", dataSize, MaxTLVData)
		return nil, imgerr.New(imgerr.InvalidParameter, "tlv encode", "pixel data of %d bytes cannot be encoded", dataSize)
	}

	allocator := pb.Allocator()
	if allocator == pixelmap.AllocatorSharedMemory {
		log.Debugf("tlv encode: recording shared memory buffer as heap")
		allocator = pixelmap.AllocatorHeap
	}

	w := pxio.NewWriter(dataSize + 64)
	putAttr(w, TagWidth, info.Width())
	putAttr(w, TagHeight, info.Height())
	putAttr(w, TagPixelFormat, int(info.PixelFormat))
	putAttr(w, TagColorSpace, int(info.ColorSpace))
	putAttr(w, TagAlphaType, int(info.AlphaType))
	putAttr(w, TagBaseDensity, info.BaseDensity)
	putAttr(w, TagAllocatorType, int(allocator))

	w.PutU8(TagPixelData)
	w.PutVarint(uint32(dataSize))
	stride := pb.RowStride()
	err := pb.WithPixels(func(px []byte) error {
		for y := 0; y < rows; y++ {
			w.PutBytes(px[y*stride : y*stride+rowBytes])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	w.PutU8(TagEnd)
	return w.Bytes(), nil
}

// DecodeTLV rebuilds a heap backed, editable buffer from a record. Unknown
// tags are skipped. Any length that runs past the record is Malformed.
func DecodeTLV(data []byte) (*pixelmap.PixelBuffer, error) {
	var (
		info   = pixelmap.ImageInfo{FrameCount: 1}
		pixels []byte
		seen   = map[uint8]bool{}
	)
	c := pxio.NewCursor(data)
	for {
		tag, err := c.ReadU8()
		if err != nil {
			// a record may stop without an end tag
			break
		}
		if tag == TagEnd {
			break
		}
		n, err := c.ReadVarint()
		if err != nil {
			return nil, err
		}
		length := int(n)
		if length <= 0 || length > c.Remaining() {
			log.Errorf("tlv decode: tag 0x%02x claims %d bytes, %d remain", tag, length, c.Remaining())
			return nil, imgerr.New(imgerr.Malformed, "tlv decode", "tag 0x%02x length %d out of range", tag, length)
		}

		if tag == TagPixelData {
			if pixels, err = c.ReadBytes(length); err != nil {
				return nil, err
			}
			seen[tag] = true
			continue
		}
		if tag > TagPixelData {
			log.Warnf("tlv decode: skipping unknown tag 0x%02x", tag)
			if err := c.Skip(length); err != nil {
				return nil, err
			}
			continue
		}

		field, err := c.ReadBytes(length)
		if err != nil {
			return nil, err
		}
		v, err := pxio.NewCursor(field).ReadVarint()
		if err != nil {
			return nil, err
		}
		value := int(v)
		switch tag {
		case TagWidth:
			info.Size.Width = value
		case TagHeight:
			info.Size.Height = value
		case TagPixelFormat:
			info.PixelFormat = pixelmap.PixelFormat(value)
		case TagColorSpace:
			info.ColorSpace = pixelmap.ColorSpace(value)
		case TagAlphaType:
			info.AlphaType = pixelmap.AlphaType(value)
		case TagBaseDensity:
			info.BaseDensity = value
		case TagAllocatorType:
			// always rebuilt on the heap
		}
		seen[tag] = true
	}

	if pixels == nil {
		return nil, imgerr.New(imgerr.Malformed, "tlv decode", "record has no pixel data")
	}
	for _, tag := range []uint8{TagWidth, TagHeight, TagPixelFormat} {
		if !seen[tag] {
			return nil, imgerr.New(imgerr.Malformed, "tlv decode", "record is missing tag 0x%02x", tag)
		}
	}
	if !info.PixelFormat.Valid() || !info.ColorSpace.Valid() || info.Width() <= 0 || info.Height() <= 0 ||
		info.Width() > pixelmap.MaxDimension || info.Height() > pixelmap.MaxDimension {
		return nil, imgerr.New(imgerr.Malformed, "tlv decode", "invalid image %dx%d %s colour space %d",
			info.Width(), info.Height(), info.PixelFormat, int(info.ColorSpace))
	}
	rowBytes := info.MinRowStride()
	if int64(len(pixels)) != info.ByteCountFor(rowBytes) {
		return nil, imgerr.New(imgerr.Malformed, "tlv decode", "pixel data holds %d bytes, image needs %d", len(pixels), info.ByteCountFor(rowBytes))
	}

	pb, err := pixelmap.Create(info, pixelmap.AllocatorHeap, pixelmap.WithRowStride(rowBytes))
	if err != nil {
		return nil, err
	}
	copy(pb.Pixels(), pixels)
	return pb, nil
}
