package main

import (
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli"
	"github.com/urfave/cli/altsrc"

	"github.com/Pavez7274/kroos"
	"github.com/Pavez7274/kroos/balloc"
)

const letterBytes = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

func randomPayload(r *rand.Rand, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letterBytes[r.Intn(len(letterBytes))]
	}
	return string(b)
}

func stressCmd(c *cli.Context) error {
	valueSize := c.Int("valuesize")
	count := c.Int("count")
	workers := c.Int("goroutines")
	if valueSize <= 0 || count <= 0 || workers <= 0 {
		return fmt.Errorf("valuesize, count and goroutines must be positive")
	}

	pool, err := balloc.NewPool(&balloc.Options{
		ChunkSize:   uint64(c.Int("chunksize")) * 1024 * 1024,
		MaxCapacity: uint64(c.Int("maxcapacity")) * 1024 * 1024,
		UseMutex:    true,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	r := rand.New(rand.NewSource(1))
	start := time.Now()

	for i := 0; i < count; i++ {
		shared := kroos.NewRimeString[kroos.Atomic](pool, randomPayload(r, valueSize))

		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			h := shared.Clone()
			wg.Add(1)
			go func() {
				defer wg.Done()
				if len(h.Bytes()) != valueSize {
					panic("payload size mismatch")
				}
				h.Release()
			}()
		}
		shared.Release()
		wg.Wait()
	}

	elapsed := time.Since(start)
	stats := pool.Stats()
	ops := count * (workers + 1)

	fmt.Println("  Stress Run ")
	fmt.Println("=================================")
	fmt.Printf(" Values     : %d x %v\n", count, common.StorageSize(float64(valueSize)))
	fmt.Printf(" Goroutines : %d per value\n", workers)
	fmt.Printf(" Elapsed    : %v (%.0f handles/s)\n", elapsed, float64(ops)/elapsed.Seconds())
	fmt.Printf(" Capacity   : %v\n", common.StorageSize(float64(stats.Capacity)))
	fmt.Printf(" Watermark  : %v (%.1f%%)\n", common.StorageSize(float64(stats.Watermark)), float64(stats.Watermark)/float64(stats.Capacity)*100.0)
	fmt.Printf(" Leaked     : %v\n", common.StorageSize(float64(stats.Used)))
	fmt.Println("=================================")
	fmt.Println(pool.BuildStatsString())

	if stats.Used != 0 {
		return fmt.Errorf("pool still holds %d bytes after all releases", stats.Used)
	}
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "kroostool"
	app.Version = "0.1.0"
	app.Usage = "Exercise and inspect kroos block pools"

	stressFlags := []cli.Flag{
		altsrc.NewIntFlag(cli.IntFlag{
			Name:  "valuesize",
			Usage: "Size of each shared value in bytes",
			Value: 100,
		}),
		altsrc.NewIntFlag(cli.IntFlag{
			Name:  "count",
			Usage: "Number of shared values to cycle",
			Value: 10000,
		}),
		altsrc.NewIntFlag(cli.IntFlag{
			Name:  "goroutines",
			Usage: "Concurrent clones per value",
			Value: 8,
		}),
		altsrc.NewIntFlag(cli.IntFlag{
			Name:  "chunksize",
			Usage: "Pool chunk size in MB",
			Value: 1,
		}),
		altsrc.NewIntFlag(cli.IntFlag{
			Name:  "maxcapacity",
			Usage: "Pool capacity cap in MB (0 = unbounded)",
			Value: 0,
		}),
	}

	app.Commands = []cli.Command{
		{
			Name:    "stress",
			Aliases: []string{"s"},
			Usage:   "Hammer a pool with concurrent clone/release cycles",
			Flags:   stressFlags,
			Action:  stressCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
