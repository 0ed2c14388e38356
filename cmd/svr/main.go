package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"svrecon/internal/ioadapter"
	"svrecon/internal/model"
	"svrecon/internal/reconstruct"
	"svrecon/internal/report"
	"svrecon/pkg/config"
)

func main() {
	stackPaths := flag.String("stacks", "", "Comma-separated list of input NIfTI stack files")
	thicknesses := flag.String("thicknesses", "", "Comma-separated per-stack slice thickness in mm (defaults to each stack's z voxel size)")
	probabilityMaps := flag.String("probability-maps", "", "Comma-separated per-stack tissue-prior NIfTI files, already resampled onto the template grid (empty entries allowed, e.g. \"atlas.nii.gz,,\")")
	maskPath := flag.String("mask", "", "Optional mask NIfTI file")
	configPath := flag.String("config", "", "YAML config file (defaults built in if omitted)")
	outputPath := flag.String("output", "reconstruction.nii.gz", "Output reconstructed volume path")
	reportPath := flag.String("report", "slices.csv", "Per-slice diagnostic CSV report path")
	numCores := flag.Int("cores", runtime.NumCPU(), "Number of CPU cores to use (overrides the config's processing.numCores)")
	verbose := flag.Bool("verbose", false, "Enable verbose logging")
	flag.Parse()

	if *stackPaths == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	if *verbose || cfg.Output.Verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	workers := *numCores
	coresSet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "cores" {
			coresSet = true
		}
	})
	if !coresSet && cfg.Processing.NumCores > 0 {
		workers = cfg.Processing.NumCores
	}

	io := ioadapter.NiftiIO{}

	paths := strings.Split(*stackPaths, ",")
	var thickList []float64
	if *thicknesses != "" {
		for _, s := range strings.Split(*thicknesses, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				log.Fatalf("parsing thickness %q: %v", s, err)
			}
			thickList = append(thickList, v)
		}
	}
	var priorPaths []string
	if *probabilityMaps != "" {
		priorPaths = strings.Split(*probabilityMaps, ",")
	}

	var templateVol *model.Volume
	var records []*model.Record

	for stackIdx, p := range paths {
		stackVol, err := io.LoadVolume(strings.TrimSpace(p))
		if err != nil {
			log.Fatalf("loading stack %s: %v", p, err)
		}
		if templateVol == nil {
			templateVol = model.CreateTemplate(stackVol.DX, stackVol.DY, stackVol.DZ, stackVol.NX, stackVol.NY, stackVol.NZ, stackVol.Affine, cfg.Reconstruction.Resolution)
		}

		thickness := stackVol.DZ
		if stackIdx < len(thickList) {
			thickness = thickList[stackIdx]
		}

		var prior *model.Volume
		if stackIdx < len(priorPaths) {
			if pp := strings.TrimSpace(priorPaths[stackIdx]); pp != "" {
				prior, err = io.LoadVolume(pp)
				if err != nil {
					log.Fatalf("loading probability map %s: %v", pp, err)
				}
			}
		}

		for z := 0; z < stackVol.NZ; z++ {
			slice := model.NewSlice(stackVol.NX, stackVol.NY, stackVol.DX, stackVol.DY, thickness, stackVol.Affine)
			for y := 0; y < stackVol.NY; y++ {
				for x := 0; x < stackVol.NX; x++ {
					slice.Set(x, y, stackVol.At(x, y, z))
				}
			}
			rec := model.NewRecord(slice, stackIdx)
			rec.SliceIndex = z
			rec.Pose = model.NewRigidPose()
			rec.ProbabilityMap = prior
			records = append(records, rec)
		}
	}

	stackMetas := make([]model.StackMeta, len(paths))
	for stackIdx := range paths {
		packages := 1
		if stackIdx < len(cfg.Reconstruction.Packages) {
			packages = cfg.Reconstruction.Packages[stackIdx]
		}
		multiband := 1
		if stackIdx < len(cfg.Reconstruction.MultibandFactor) {
			multiband = cfg.Reconstruction.MultibandFactor[stackIdx]
		}
		stackMetas[stackIdx] = model.StackMeta{Packages: packages, MultibandFactor: multiband}
	}

	var mask *model.Mask
	if *maskPath != "" {
		maskVol, err := io.LoadVolume(*maskPath)
		if err != nil {
			log.Fatalf("loading mask: %v", err)
		}
		mask = model.CreateMask(maskVol)
	} else {
		mask = model.NewMask(templateVol)
		for i := range mask.Data {
			mask.Data[i] = 1
		}
	}

	params := reconstruct.Params{
		Resolution:          cfg.Reconstruction.Resolution,
		Delta:               cfg.Reconstruction.Delta,
		Lambda:              cfg.Reconstruction.Lambda,
		SigmaBias:           cfg.Reconstruction.SigmaBias,
		NCCThreshold:        cfg.Reconstruction.NCCThreshold,
		OuterIterations:     cfg.Reconstruction.OuterIterations,
		InnerIterations:     cfg.Reconstruction.InnerIterations,
		FFDEnabled:          cfg.Reconstruction.FFDEnabled,
		BiasEnabled:         cfg.Reconstruction.BiasEnabled,
		GlobalBiasCorrect:   cfg.Reconstruction.GlobalBiasCorrection,
		StructuralExclusion: cfg.Reconstruction.StructuralExclusion,
		Adaptive:            cfg.Reconstruction.Adaptive,
		Workers:             workers,
		ForceExcluded:       map[int]bool{},
	}
	for _, idx := range cfg.Reconstruction.ForceExcludedSlices {
		params.ForceExcluded[idx] = true
	}

	ctx, err := reconstruct.NewContext(params, templateVol, mask, records)
	if err != nil {
		log.Fatalf("initialising reconstruction context: %v", err)
	}
	ctx.StackMetas = stackMetas

	fmt.Println("Starting slice-to-volume reconstruction...")
	start := time.Now()
	rep, err := ctx.Run()
	if err != nil {
		log.Fatalf("reconstruction failed: %v", err)
	}
	elapsed := time.Since(start)

	if err := io.SaveVolume(*outputPath, ctx.Volume); err != nil {
		log.Fatalf("saving output volume: %v", err)
	}
	if err := report.WriteSliceReport(*reportPath, ctx.Records); err != nil {
		log.Fatalf("writing slice report: %v", err)
	}

	if cfg.Output.SaveIntermediaryResults {
		dumper := ioadapter.DiagnosticDumper{}
		minI, maxI := ctx.Globals.MinIntensity, ctx.Globals.MaxIntensity
		if err := dumper.DumpSequence(ctx.Volume, "z", cfg.Output.IntermediaryDir, minI, maxI); err != nil {
			log.Printf("warning: dumping intermediary slices: %v", err)
		}
	}

	fmt.Printf("\nReconstruction completed in %.2f seconds\n", elapsed.Seconds())
	fmt.Printf("Output volume: %s\n", *outputPath)
	fmt.Printf("Slice report: %s\n\n", filepath.Clean(*reportPath))
	fmt.Println("Quality report:")
	fmt.Printf("  NCC:                 %.4f\n", rep.NCC)
	fmt.Printf("  NRMSE:               %.4f\n", rep.NRMSE)
	fmt.Printf("  Ratio excluded:      %.4f\n", rep.RatioExcluded)
	fmt.Printf("  Avg volume weight:   %.4f\n", rep.AvgVolumeWeight)
	fmt.Printf("  Mutual information:  %.4f\n", rep.MutualInformation)
	fmt.Printf("  Entropy difference:  %.4f\n", rep.EntropyDiff)
}
