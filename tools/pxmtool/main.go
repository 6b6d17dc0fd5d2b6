package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/kpfaulkner/pixmap-go/codecs"
	"github.com/kpfaulkner/pixmap-go/core"
	"github.com/kpfaulkner/pixmap-go/options"
	"github.com/kpfaulkner/pixmap-go/pixelmap"
	"github.com/kpfaulkner/pixmap-go/plugin"
	"github.com/kpfaulkner/pixmap-go/serial"
	"github.com/kpfaulkner/pixmap-go/store"
	"github.com/pkg/profile"
	log "github.com/sirupsen/logrus"
)

func registryFromFile(path string) (*plugin.Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reg := plugin.NewRegistry()
	if err := codecs.Register(reg, f); err != nil {
		return nil, err
	}
	reg.Freeze()
	return reg, nil
}

// decodeChunked feeds the file to an incremental session chunk bytes at a time.
func decodeChunked(data []byte, chunk int, opts []core.PipelineOption) (*pixelmap.PixelBuffer, error) {
	sess, err := core.NewIncrementalSession(opts...)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	for off := 0; off < len(data); off += chunk {
		end := min(off+chunk, len(data))
		st, err := sess.UpdateData(data[off:end], end == len(data))
		if err != nil {
			return nil, err
		}
		fmt.Printf("received %d state %s progress %d%%\n", sess.Received(), st.Kind, sess.Progress())
		if st.Kind == core.StateFailed {
			return nil, st.Err
		}
	}
	return sess.Finalize()
}

func decodeFile(path string, opts []core.PipelineOption, decodeOpts *options.DecodeOptions) (*pixelmap.PixelBuffer, error) {
	src, err := core.CreateImageSourceFromFile(path, opts...)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	info, err := src.GetImageInfo()
	if err != nil {
		return nil, err
	}
	mime, _ := src.MimeType()
	fmt.Printf("%s %dx%d %s %s %s\n", mime, info.Width(), info.Height(), info.PixelFormat, info.AlphaType, info.ColorSpace)
	return src.CreatePixelMap(decodeOpts)
}

func main() {
	input := flag.String("i", "", "input image file")
	output := flag.String("o", "", "output file, format taken from the extension")
	hint := flag.String("hint", "", "format hint as MIME type")
	chunk := flag.Int("chunk", 0, "feed the input incrementally in chunks of this many bytes")
	tlvPath := flag.String("tlv", "", "write a TLV record of the decoded pixels")
	storeDir := flag.String("store", "", "store directory")
	key := flag.String("key", "", "key for -store")
	caps := flag.String("caps", "", "capability table (yaml) to use instead of the built in one")
	rotate := flag.Float64("rotate", 0, "rotate by degrees")
	scale := flag.Float64("scale", 1, "scale factor")
	prof := flag.String("profile", "", "cpu or mem")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}
	if *input == "" {
		flag.Usage()
		os.Exit(2)
	}

	switch *prof {
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	case "mem":
		defer profile.Start(profile.MemProfileHeap, profile.ProfilePath(".")).Stop()
	case "":
	default:
		log.Fatalf("unknown profile %q", *prof)
	}

	var pipeOpts []core.PipelineOption
	var reg *plugin.Registry
	if *caps != "" {
		var err error
		if reg, err = registryFromFile(*caps); err != nil {
			log.Fatalf("unable to load capabilities %v", err)
		}
		pipeOpts = append(pipeOpts, core.WithRegistry(reg))
	}
	if *hint != "" {
		pipeOpts = append(pipeOpts, core.WithFormatHint(*hint))
	}
	decodeOpts := options.NewDecodeOptions(&options.DecodeOptions{
		RotateDegrees: *rotate,
		Editable:      true,
	})
	pipeOpts = append(pipeOpts, core.WithDecodeOptions(decodeOpts))

	start := time.Now()
	var pb *pixelmap.PixelBuffer
	var err error
	if *chunk > 0 {
		data, rerr := os.ReadFile(*input)
		if rerr != nil {
			log.Fatalf("boomage %v", rerr)
		}
		pb, err = decodeChunked(data, *chunk, pipeOpts)
	} else {
		pb, err = decodeFile(*input, pipeOpts, decodeOpts)
	}
	if err != nil {
		log.Fatalf("error decoding %v", err)
	}
	defer pb.Release()
	fmt.Printf("decoding took %d ms\n", time.Since(start).Milliseconds())

	if *scale != 1 {
		if err := pb.Scale(*scale, *scale, pixelmap.AntiAliasingMedium); err != nil {
			log.Fatalf("error scaling %v", err)
		}
	}
	fmt.Printf("result %dx%d %s stride %d\n", pb.Width(), pb.Height(), pb.PixelFormat(), pb.RowStride())

	if *output != "" {
		packer, err := core.NewPacker(reg)
		if err != nil {
			log.Fatalf("boomage %v", err)
		}
		start := time.Now()
		if err := packer.PackToFile(*output, pb, nil); err != nil {
			log.Fatalf("error packing %v", err)
		}
		fmt.Printf("packing took %d ms\n", time.Since(start).Milliseconds())
	}

	if *tlvPath != "" {
		rec, err := serial.EncodeTLV(pb)
		if err != nil {
			log.Fatalf("error encoding tlv %v", err)
		}
		if err := os.WriteFile(*tlvPath, rec, 0666); err != nil {
			log.Fatalf("boomage %v", err)
		}
	}

	if *storeDir != "" {
		if *key == "" {
			log.Fatalf("-store needs -key")
		}
		fs, err := store.NewFileStore(*storeDir)
		if err != nil {
			log.Fatalf("boomage %v", err)
		}
		if err := fs.Put(*key, pb); err != nil {
			log.Fatalf("error storing %v", err)
		}
		log.Debugf("stored %s in %s", *key, *storeDir)
	}
}
