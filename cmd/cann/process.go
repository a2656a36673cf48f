package main

import (
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gocv.io/x/gocv"

	"github.com/swdee/go-cann"
	"github.com/swdee/go-cann/imgio"
)

// processFlags are the options of the process command
type processFlags struct {
	roi     string
	size    int
	noise   float64
	rotate  int
	flip    int
	border  int
	useNull bool
}

func newProcessCmd(gf *globalFlags) *cobra.Command {

	var pf processFlags

	cmd := &cobra.Command{
		Use:   "process <input> <output>",
		Short: "Add noise to, rotate, flip and crop-resize an image on the device",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(gf, &pf, args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&pf.roi, "roi", "250,250,512,512", "Crop region as x,y,width,height")
	cmd.Flags().IntVar(&pf.size, "size", 256, "Width and height the crop is resized to")
	cmd.Flags().Float64Var(&pf.noise, "noise", 25, "Standard deviation of the gaussian noise added")
	cmd.Flags().IntVar(&pf.rotate, "rotate", 0, "Rotation, 0, 1 and 2 rotate 90, 180 and 270 degrees clockwise")
	cmd.Flags().IntVar(&pf.flip, "flip", 0, "Flip code, 0 around the x-axis, positive the y-axis, negative both")
	cmd.Flags().IntVar(&pf.border, "border", 0, "Border added above and left of the resized crop")
	cmd.Flags().BoolVar(&pf.useNull, "sync", false, "Run every step synchronously on the null stream")

	return cmd
}

// parseROI parses a rectangle given as x,y,width,height
func parseROI(s string) (image.Rectangle, error) {

	parts := strings.Split(s, ",")

	if len(parts) != 4 {
		return image.Rectangle{}, fmt.Errorf("roi %q must be x,y,width,height", s)
	}

	var v [4]int

	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))

		if err != nil {
			return image.Rectangle{}, fmt.Errorf("invalid roi %q: %w", s, err)
		}

		v[i] = n
	}

	return image.Rect(v[0], v[1], v[0]+v[2], v[1]+v[3]), nil
}

func runProcess(gf *globalFlags, pf *processFlags, input, output string) error {

	roi, err := parseROI(pf.roi)

	if err != nil {
		return err
	}

	ctx, err := openContext(gf)

	if err != nil {
		return err
	}

	defer closeContext(ctx)

	img, err := imgio.Read(ctx, input)

	if err != nil {
		return err
	}

	defer img.Release()

	var opts []cann.Option
	var stream *cann.Stream

	if !pf.useNull {
		stream, err = ctx.NewStream()

		if err != nil {
			return err
		}

		defer stream.Destroy()

		opts = append(opts, cann.WithStream(stream))
	}

	// generate gauss noise that will be added into the input image
	noiseHost := gocv.NewMatWithSize(img.Rows(), img.Cols(), gocv.MatTypeCV8UC3)
	defer noiseHost.Close()

	gocv.RandN(&noiseHost, gocv.NewScalar(0, 0, 0, 0), gocv.NewScalar(pf.noise, pf.noise, pf.noise, 0))

	noise, err := ctx.NewNpuMat()

	if err != nil {
		return err
	}

	defer noise.Release()

	if err := noise.Upload(noiseHost, opts...); err != nil {
		return fmt.Errorf("error uploading noise: %w", err)
	}

	noisy, err := ctx.Add(img, noise, opts...)

	if err != nil {
		return fmt.Errorf("error adding noise: %w", err)
	}

	defer noisy.Release()

	rotated, err := ctx.Rotate(noisy, cann.RotateCode(pf.rotate), opts...)

	if err != nil {
		return fmt.Errorf("error rotating: %w", err)
	}

	defer rotated.Release()

	flipped, err := ctx.Flip(rotated, cann.FlipCode(pf.flip), opts...)

	if err != nil {
		return fmt.Errorf("error flipping: %w", err)
	}

	defer flipped.Release()

	out, err := ctx.CropResizeMakeBorder(flipped, roi, image.Pt(pf.size, pf.size), gocv.InterpolationLinear,
		gocv.BorderConstant, cann.NewScalar(230, 10, 10), pf.border, pf.border, opts...)

	if err != nil {
		return fmt.Errorf("error cropping: %w", err)
	}

	defer out.Release()

	if stream != nil {
		if err := stream.WaitForCompletion(); err != nil {
			return fmt.Errorf("error processing image: %w", err)
		}
	}

	if err := imgio.Write(ctx, output, out); err != nil {
		return err
	}

	fmt.Printf("Wrote %dx%d result to %s\n", out.Cols(), out.Rows(), output)

	return nil
}
