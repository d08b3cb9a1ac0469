package kv

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	vmetrics "github.com/VictoriaMetrics/metrics"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cmdUtil "github.com/mdorier/mochi-rkv/cmd/util"
	rkv "github.com/mdorier/mochi-rkv/lib/kv"
)

// BenchCmd measures single-key put/get latency against a backend.
var BenchCmd = &cobra.Command{
	Use:               "bench",
	Short:             "Measure put/get latency against a backend",
	Args:              cobra.NoArgs,
	PersistentPreRunE: processConfig,
	RunE:              runBench,
}

func init() {
	setupBackendFlags(BenchCmd)
	BenchCmd.Flags().Int("ops", 10000, cmdUtil.WrapString("Number of operations per phase"))
	BenchCmd.Flags().Int("value-size", 128, cmdUtil.WrapString("Size of the generated values in bytes"))
}

func runBench(cmd *cobra.Command, _ []string) error {
	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Destroy()

	ops := viper.GetInt("ops")
	valueSize := viper.GetInt("value-size")

	value := make([]byte, valueSize)
	rand.Read(value)
	vmem := rkv.Wrap(value)
	vsizes := []uint64{uint64(valueSize)}

	putTimer := gometrics.NewTimer()
	getTimer := gometrics.NewTimer()

	for i := 0; i < ops; i++ {
		key := []byte(fmt.Sprintf("bench-%08d", i))
		start := time.Now()
		st := db.Put(rkv.ModeDefault, rkv.Wrap(key), []uint64{uint64(len(key))}, vmem, vsizes)
		putTimer.UpdateSince(start)
		if st != rkv.StatusOK {
			return fmt.Errorf("put %d failed: %w", i, st.Err())
		}
	}

	buf := make([]byte, valueSize)
	for i := 0; i < ops; i++ {
		key := []byte(fmt.Sprintf("bench-%08d", i))
		out := rkv.Wrap(buf)
		sizes := []uint64{0}
		start := time.Now()
		st := db.Get(rkv.ModeDefault, true, rkv.Wrap(key), []uint64{uint64(len(key))}, &out, sizes)
		getTimer.UpdateSince(start)
		if st != rkv.StatusOK {
			return fmt.Errorf("get %d failed: %w", i, st.Err())
		}
	}

	report := func(name string, t gometrics.Timer) {
		ps := t.Percentiles([]float64{0.5, 0.9, 0.99})
		fmt.Printf("%-4s  count=%d  mean=%.1fµs  p50=%.1fµs  p90=%.1fµs  p99=%.1fµs\n",
			name, t.Count(),
			t.Mean()/1000, ps[0]/1000, ps[1]/1000, ps[2]/1000)
	}
	report("put", putTimer)
	report("get", getTimer)

	if viper.GetBool("metrics") {
		fmt.Println()
		vmetrics.WritePrometheus(os.Stdout, false)
	}
	return nil
}
