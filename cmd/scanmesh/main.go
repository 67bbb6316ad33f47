package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/unixpickle/essentials"

	"scanmesh/pkg/config"
	"scanmesh/pkg/export"
	"scanmesh/pkg/reconstruction"
	"scanmesh/pkg/segmentation"
)

func main() {
	input := flag.String("input", "", "Image file, DICOM file, or directory of slices")
	output := flag.String("output", "", "Output model path (default: <input>_3d.<ext>)")
	threshold := flag.Float64("threshold", 0, "Manual segmentation threshold (default: Otsu)")
	simplify := flag.Float64("simplify", 0.3, "Fraction of faces removed by decimation, in [0,1)")
	smooth := flag.Int("smooth", 20, "Laplacian smoothing iterations")
	step := flag.Int("step", 2, "Marching cubes step size in voxels")
	format := flag.String("format", export.FormatSTL, "Output format: stl, stl-ascii or obj")
	method := flag.String("method", segmentation.MethodOtsu, "Segmentation method: otsu, threshold or region_growing")
	visualize := flag.Bool("visualize", false, "Save slice images, montages and a mesh snapshot")
	configPath := flag.String("config", "", "YAML configuration file")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	if *input == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	essentials.Must(err)

	// explicit flags override the configuration file
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if *verbose || (cfg.Output.Verbose && !set["verbose"]) {
		log.SetLevel(log.DebugLevel)
	}
	if set["simplify"] {
		cfg.Mesh.Simplify = *simplify
	}
	if set["smooth"] {
		cfg.Mesh.SmoothIterations = *smooth
	}
	if set["step"] {
		cfg.Surface.Step = *step
	}
	if set["format"] {
		cfg.Output.Format = strings.ToLower(*format)
	}
	if set["method"] {
		cfg.Segmentation.Method = *method
	}
	if set["threshold"] {
		cfg.Segmentation.Method = segmentation.MethodThreshold
	}
	if *visualize {
		cfg.Output.SaveIntermediaryResults = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[Main] Invalid parameters: %v", err)
	}

	outputPath := *output
	if outputPath == "" {
		base := filepath.Base(strings.TrimRight(*input, `/\`))
		outputPath = strings.TrimSuffix(base, filepath.Ext(base)) + "_3d"
	}

	params := reconstruction.ParamsFromConfig(cfg, *input, outputPath)
	if set["threshold"] {
		params.Segmentation.Cutoff = threshold
	}

	fmt.Println("================================")
	fmt.Println("SCANMESH: 2D SCAN TO 3D MESH CONVERSION")
	fmt.Println("================================")

	res, err := reconstruction.NewConverter(params).Process(context.Background())
	if err != nil {
		log.Fatalf("[Main] Conversion failed: %v", err)
	}

	fmt.Printf("\nConversion completed successfully in %.2f seconds!\n", res.Duration.Seconds())
	fmt.Printf("Output 3D model saved to: %s\n\n", res.OutputFile)

	fmt.Println("Mesh statistics:")
	fmt.Println("================")
	fmt.Printf("Slices processed: %d\n", res.SlicesProcessed)
	fmt.Printf("Vertices: %d\n", res.Stats.Vertices)
	fmt.Printf("Faces: %d\n", res.Stats.Faces)
	fmt.Printf("Surface area: %.2f mm^2\n", res.Stats.SurfaceArea)
	fmt.Printf("Volume: %.2f mm^3\n", res.Stats.Volume)
	fmt.Printf("Bounding box diagonal: %.2f mm\n", res.Stats.Diagonal)
	fmt.Printf("Connected components: %d\n", res.Stats.Components)
	fmt.Printf("Closed: %v\n", res.Stats.Closed)
	fmt.Printf("File size: %.1f KB\n", res.FileSizeKB)

	if params.SaveIntermediaryResults {
		fmt.Println("\nIntermediary results saved to:")
		fmt.Printf("%s\n", params.IntermediaryDir)
		fmt.Println("The following stages were saved:")
		fmt.Println("- 01_volume: Input volume slices and montage")
		fmt.Println("- 02_mask: Segmentation mask slices and montage")
		fmt.Println("- 03_mesh: Snapshot of the final mesh")
	}
}
