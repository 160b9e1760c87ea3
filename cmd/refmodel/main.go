// Command refmodel writes seeded reference generator and perceptual network
// weights for the projector CLI.
package main

import (
	"flag"
	"fmt"
	"os"

	"pose-projector/internal/model"
	"pose-projector/internal/render"
)

func main() {
	genPath := flag.String("generator", "generator.json", "Output path of the generator weights")
	netPath := flag.String("feature-net", "features.json", "Output path of the perceptual network weights")
	resolution := flag.Int("resolution", 64, "Generator output resolution")
	channels := flag.Int("channels", 3, "Generator output channels (1 or 3)")
	zDim := flag.Int("z-dim", 64, "Input noise dimensionality")
	wDim := flag.Int("w-dim", 32, "Latent code dimensionality")
	numWs := flag.Int("num-ws", 8, "Number of synthesis layers sharing the latent code")
	seed := flag.Int64("seed", 1, "Weight initialization seed")
	flag.Parse()

	if *resolution < 8 || (*channels != 1 && *channels != 3) {
		fmt.Println("Usage: refmodel [-resolution >=8] [-channels 1|3] [-z-dim 64] [-w-dim 32] [-num-ws 8] [-seed 1]")
		os.Exit(1)
	}

	info := model.Info{
		ZDim:          *zDim,
		WDim:          *wDim,
		NumWs:         *numWs,
		ImgChannels:   *channels,
		ImgResolution: *resolution,
	}
	gen := model.NewAffine(info, *seed)
	if err := gen.Save(*genPath); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to save generator: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Generator: %+v, %d noise buffers -> %s (%s)\n",
		info, len(gen.NoiseBuffers()), *genPath, render.FileSize(*genPath))

	net := model.NewConvNet(*channels, *seed+1)
	if err := net.Save(*netPath); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to save feature network: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Feature network: %d layers, taps %v -> %s (%s)\n",
		len(net.Layers()), net.Taps, *netPath, render.FileSize(*netPath))
}
