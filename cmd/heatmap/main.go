// Command heatmap renders a pose heatmap to a grayscale PNG.
package main

import (
	"flag"
	"fmt"
	"os"

	"pose-projector/internal/pose"
	"pose-projector/internal/render"
	"pose-projector/pkg/geometry"
	"pose-projector/pkg/tensor"

	"github.com/disintegration/imaging"
)

func main() {
	keypoints := flag.String("keypoints", "", "Colon-separated x:y:confidence triples")
	table := flag.String("posefile", "", "Pose table CSV (used with -image)")
	imagePath := flag.String("image", "", "Image whose table row is rendered")
	resolution := flag.Int("resolution", 256, "Side of the image the keypoints refer to")
	scale := flag.Int("scale", 4, "Upscale factor of the written PNG")
	out := flag.String("out", "heatmap.png", "Output PNG path")
	flag.Parse()

	if *keypoints == "" && (*table == "" || *imagePath == "") {
		fmt.Println("Usage: heatmap -keypoints <x:y:c:...> | -posefile <csv> -image <name> [-resolution 256] [-out heatmap.png]")
		os.Exit(1)
	}

	var (
		maps *tensor.Tensor
		err  error
	)
	if *keypoints != "" {
		var pts []float64
		pts, err = pose.ParseKeypoints(*keypoints)
		if err == nil {
			reportExtent(pts)
			maps, err = pose.Encode(pts, *resolution)
		}
	} else {
		var tbl *pose.Table
		tbl, err = pose.LoadTable(*table)
		if err == nil {
			fmt.Printf("Loaded pose table with %d rows\n", tbl.Len())
			maps, err = tbl.Heatmap(*imagePath, *resolution)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build heatmap: %v\n", err)
		os.Exit(1)
	}

	k, h, w := maps.Dims()
	active := 0
	for c := 0; c < k; c++ {
		for _, v := range maps.Data[c*h*w : (c+1)*h*w] {
			if v != 0 {
				active++
				break
			}
		}
	}
	fmt.Printf("Heatmap: %d channels of %dx%d, %d active\n", k, w, h, active)

	img := pose.ToImage(maps)
	if *scale > 1 {
		up := imaging.Resize(img, w*(*scale), h*(*scale), imaging.NearestNeighbor)
		err = render.SavePNG(*out, up)
	} else {
		err = render.SavePNG(*out, img)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to save heatmap: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s (%s)\n", *out, render.FileSize(*out))
}

func reportExtent(pts []float64) {
	kps, err := pose.Triples(pts)
	if err != nil {
		return
	}
	vis := pose.VisiblePositions(kps)
	if len(vis) == 0 {
		fmt.Println("No visible keypoints")
		return
	}
	box := geometry.BoundingBox(vis)
	mid := box.Center()
	c := geometry.Centroid(vis)
	fmt.Printf("%d/%d keypoints visible, extent %.0fx%.0f centred at (%.1f, %.1f), centroid (%.1f, %.1f)\n",
		len(vis), len(kps), box.Width, box.Height, mid.X, mid.Y, c.X, c.Y)
}
