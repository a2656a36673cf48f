package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/swdee/go-cann"
)

// benchFlags are the options of the bench command
type benchFlags struct {
	ops     int
	size    int
	streams int
}

func newBenchCmd(gf *globalFlags) *cobra.Command {

	var bf benchFlags

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Time arithmetic operations on the null stream, a stream and a stream pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(gf, &bf)
		},
	}

	cmd.Flags().IntVar(&bf.ops, "ops", 100, "Number of operations to run")
	cmd.Flags().IntVar(&bf.size, "size", 512, "Width and height of the U8C3 operands")
	cmd.Flags().IntVar(&bf.streams, "streams", 4, "Number of streams in the pool")

	return cmd
}

func runBench(gf *globalFlags, bf *benchFlags) error {

	ctx, err := openContext(gf)

	if err != nil {
		return err
	}

	defer closeContext(ctx)

	a, err := ctx.NewNpuMatWithScalar(bf.size, bf.size, cann.TypeU8C3, cann.NewScalar(100, 50, 25))

	if err != nil {
		return err
	}

	defer a.Release()

	b, err := ctx.NewNpuMatWithScalar(bf.size, bf.size, cann.TypeU8C3, cann.NewScalar(1, 2, 3))

	if err != nil {
		return err
	}

	defer b.Release()

	dst, err := ctx.NewNpuMat()

	if err != nil {
		return err
	}

	defer dst.Release()

	// null stream, every call waits
	start := time.Now()

	for i := 0; i < bf.ops; i++ {
		if _, err := ctx.Add(a, b, cann.WithDst(dst)); err != nil {
			return err
		}
	}

	report("null stream", bf.ops, time.Since(start))

	// one stream, single wait at the end
	s, err := ctx.NewStream()

	if err != nil {
		return err
	}

	defer s.Destroy()

	start = time.Now()

	for i := 0; i < bf.ops; i++ {
		if _, err := ctx.Add(a, b, cann.WithDst(dst), cann.WithStream(s)); err != nil {
			return err
		}
	}

	if err := s.WaitForCompletion(); err != nil {
		return err
	}

	report("stream", bf.ops, time.Since(start))

	// stream pool, operands are only on the active device so the pool is
	// restricted to it when more than one device exists
	if ctx.DeviceCount() > 1 {
		fmt.Printf("%-12s skipped, operands are resident on a single device\n", "stream pool")
		return nil
	}

	pool, err := ctx.NewStreamPool(bf.streams)

	if err != nil {
		return err
	}

	defer pool.Close()

	start = time.Now()

	var g errgroup.Group

	for i := 0; i < bf.ops; i++ {
		g.Go(func() error {
			st := pool.Get()
			defer pool.Return(st)

			out, err := ctx.Add(a, b, cann.WithStream(st))

			if err != nil {
				return err
			}

			defer out.Release()

			return st.WaitForCompletion()
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	report("stream pool", bf.ops, time.Since(start))

	return nil
}

// report prints the timing of a benchmark run
func report(name string, ops int, d time.Duration) {
	fmt.Printf("%-12s %d ops in %s, %s/op\n", name, ops, d, d/time.Duration(max(ops, 1)))
}
