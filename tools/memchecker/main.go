package main

import (
	"fmt"
	"reflect"

	"github.com/kpfaulkner/pixmap-go/core"
	"github.com/kpfaulkner/pixmap-go/pixelmap"
	"github.com/kpfaulkner/pixmap-go/plugin"
)

// displays sizes of main structs to determine any padding wasteage
func memStats(rType reflect.Type) {
	fmt.Printf("Size of %s : %d bytes\n", rType.Name(), rType.Size())

	if rType.Kind() == reflect.Struct {
		for i := 0; i < rType.NumField(); i++ {
			field := rType.Field(i)
			fmt.Printf("  Name %s\n", field.Name)
			fmt.Printf("    Offset of    : %d bytes\n", field.Offset)
			fmt.Printf("    Size of      : %d bytes\n", field.Type.Size())
			fmt.Printf("    Alignment of : %d bytes\n", field.Type.Align())
			fmt.Println()
		}
	}
}

func main() {
	memStats(reflect.TypeFor[pixelmap.ImageInfo]())
	memStats(reflect.TypeFor[pixelmap.PixelBuffer]())
	memStats(reflect.TypeFor[plugin.Header]())
	memStats(reflect.TypeFor[core.DecodeState]())
}
