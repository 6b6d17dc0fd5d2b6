package main

import (
	"flag"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/kpfaulkner/pixmap-go/core"
	"github.com/kpfaulkner/pixmap-go/serial"
	"github.com/pkg/profile"
	log "github.com/sirupsen/logrus"
)

// bench decodes each input repeatedly, then packs the last result to PNG and
// round trips it through a TLV record.
func main() {
	count := flag.Int("n", 10, "decodes per file")
	destinationDir := flag.String("d", os.TempDir(), "output directory")
	memProfile := flag.Bool("mem", false, "heap profile instead of cpu")
	flag.Parse()

	var p interface{ Stop() }
	if *memProfile {
		p = profile.Start(profile.MemProfileHeap, profile.ProfilePath("."))
	} else {
		p = profile.Start(profile.CPUProfile, profile.ProfilePath("."))
	}
	defer p.Stop()

	packer, err := core.NewPacker(nil)
	if err != nil {
		log.Fatalf("boomage %v", err)
	}

	for _, file := range flag.Args() {
		fmt.Printf("file %s\n", file)
		f, err := os.ReadFile(file)
		if err != nil {
			log.Errorf("Error opening file: %v\n", err)
			return
		}

		start := time.Now()
		for i := 0; i < *count; i++ {
			src, err := core.CreateImageSourceFromBuffer(f)
			if err != nil {
				log.Errorf("Error creating source: %v\n", err)
				return
			}
			decodeStart := time.Now()
			pb, err := src.CreatePixelMap(nil)
			src.Close()
			if err != nil {
				fmt.Printf("Error decoding: %v\n", err)
				return
			}
			fmt.Printf("decoding took %d ms\n", time.Since(decodeStart).Milliseconds())

			if i < *count-1 {
				pb.Release()
				continue
			}

			base := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
			pngFileName := path.Join(*destinationDir, base+".png")
			if err := packer.PackToFile(pngFileName, pb, nil); err != nil {
				log.Fatalf("boomage %v", err)
			}

			rec, err := serial.EncodeTLV(pb)
			if err != nil {
				log.Fatalf("boomage %v", err)
			}
			back, err := serial.DecodeTLV(rec)
			if err != nil {
				log.Fatalf("boomage %v", err)
			}
			fmt.Printf("tlv record %d bytes, %dx%d\n", len(rec), back.Width(), back.Height())
			back.Release()
			pb.Release()
		}

		fmt.Printf("decoding total time %d ms\n", time.Since(start).Milliseconds())
	}
}
