package main

import (
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/brianvoe/gofakeit/v6"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nStangl/splaykv/server/data"
	"github.com/nStangl/splaykv/server/memtable"
	"github.com/nStangl/splaykv/util"
)

type config struct {
	sets   int
	hot    int
	gets   int
	rounds int
	seed   int64
	words  string
	csv    string
}

// run holds the per operation latencies of one implementation
type run struct {
	name  string
	sets  []float64
	gets  []float64
	scans []float64
	found map[data.ResultKind]int
	depth int
}

var (
	cfg     config
	rootCmd = &cobra.Command{
		Use:   "memtable",
		Short: "compare memtable implementations",
		Long:  "Sets a batch of random keys, then reads a small hot subset over and over, once per memtable implementation",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			if cfg.sets <= 0 || cfg.rounds <= 0 {
				return fmt.Errorf("sets and rounds must be positive")
			}

			keys, err := loadKeys()
			if err != nil {
				return err
			}

			hot := hotKeys(keys)

			log.Infof("benchmarking with %d keys, %d hot keys, %d gets, %d rounds", len(keys), cfg.hot, len(hot), cfg.rounds)

			runs := []*run{
				bench("splay", keys, hot, func() memtable.Table { return memtable.NewSplayTree() }),
				bench("redblack", keys, hot, func() memtable.Table { return memtable.NewRedBlackTree() }),
			}

			for _, r := range runs {
				report(r)
			}

			if cfg.csv != "" {
				if err := util.WriteCSV(cfg.csv, rows(runs)); err != nil {
					return fmt.Errorf("failed to dump latencies: %w", err)
				}

				log.Infof("latencies written to %s", cfg.csv)
			}

			return nil
		},
	}
)

func init() {
	rootCmd.Flags().IntVarP(&cfg.sets, "sets", "s", 5000, "Distinct keys set per round")
	rootCmd.Flags().IntVar(&cfg.hot, "hot", 100, "Size of the frequently read key subset")
	rootCmd.Flags().IntVarP(&cfg.gets, "gets", "g", 5000, "Gets per round, cycling through the hot keys")
	rootCmd.Flags().IntVarP(&cfg.rounds, "rounds", "r", 20, "Rounds per implementation, each on a fresh memtable")
	rootCmd.Flags().Int64Var(&cfg.seed, "seed", 1, "Seed for key generation and shuffling")
	rootCmd.Flags().StringVarP(&cfg.words, "words", "w", "", "Optional file with one word per line to build keys from")
	rootCmd.Flags().StringVar(&cfg.csv, "csv", "", "Optional path to dump every latency as csv")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Whoops. There was an error while executing your CLI '%s'", err)
		os.Exit(1)
	}
}

func loadKeys() ([][]byte, error) {
	gofakeit.Seed(cfg.seed)

	seen := make(map[string]struct{}, cfg.sets)
	keys := make([][]byte, 0, cfg.sets)

	add := func(k string) {
		if _, ok := seen[k]; ok {
			return
		}

		seen[k] = struct{}{}
		keys = append(keys, []byte(k))
	}

	if cfg.words != "" {
		words, err := util.ReadWords(cfg.words)
		if err != nil {
			return nil, fmt.Errorf("failed to load words: %w", err)
		}

		if len(words) == 0 {
			return nil, fmt.Errorf("no words in %q", cfg.words)
		}

		for i := 0; len(keys) < cfg.sets && i < cfg.sets*4; i++ {
			add(gofakeit.RandomString(words) + gofakeit.RandomString(words))
		}
	}

	for len(keys) < cfg.sets {
		add(gofakeit.Username() + gofakeit.LetterN(6))
	}

	return keys, nil
}

// hotKeys cycles a small random subset of keys, the skewed read
// pattern a splay tree is meant for
func hotKeys(keys [][]byte) [][]byte {
	r := rand.New(rand.NewSource(cfg.seed))

	subset := make([][]byte, len(keys))
	copy(subset, keys)

	r.Shuffle(len(subset), func(i, j int) { subset[i], subset[j] = subset[j], subset[i] })

	if cfg.hot > 0 && cfg.hot < len(subset) {
		subset = subset[:cfg.hot]
	}

	hot := make([][]byte, 0, cfg.gets)
	for i := 0; i < cfg.gets; i++ {
		hot = append(hot, subset[i%len(subset)])
	}

	return hot
}

func bench(name string, keys, hot [][]byte, newTable func() memtable.Table) *run {
	r := &run{
		name:  name,
		sets:  make([]float64, 0, len(keys)*cfg.rounds),
		gets:  make([]float64, 0, len(hot)*cfg.rounds),
		found: make(map[data.ResultKind]int),
	}

	start := time.Now()

	for round := 0; round < cfg.rounds; round++ {
		t := newTable()

		for _, k := range keys {
			s := time.Now()
			t.Set(k, k)
			r.sets = append(r.sets, float64(time.Since(s).Nanoseconds()))
		}

		for _, k := range hot {
			s := time.Now()
			v := t.Get(k)
			r.gets = append(r.gets, float64(time.Since(s).Nanoseconds()))

			r.found[v.Kind]++
		}

		s := time.Now()
		for it := t.Iterator(); it.Next(); {
			_ = it.Value()
		}
		r.scans = append(r.scans, float64(time.Since(s).Nanoseconds()))

		if st, ok := t.(*memtable.SplayTree); ok {
			r.depth = st.Depth()
		}
	}

	log.Infof("%s took %s", name, time.Since(start))

	return r
}

func report(r *run) {
	const (
		bins     = 5
		maxWidth = 5
	)

	fmt.Printf("== %s (lookups: %v)\n", r.name, r.found)

	if r.depth > 0 {
		fmt.Printf("depth after reads: %d\n", r.depth)
	}

	for _, s := range []struct {
		op   string
		vals []float64
	}{
		{"sets", r.sets},
		{"gets", r.gets},
		{"scans", r.scans},
	} {
		if len(s.vals) == 0 {
			continue
		}

		fmt.Printf("%s, mean %.0fns (in nanoseconds)\n", s.op, mean(s.vals))

		h := histogram.Hist(bins, s.vals)
		if err := histogram.Fprint(os.Stdout, h, histogram.Linear(maxWidth)); err != nil {
			log.Errorf("failed to print histogram: %v", err)
		}
	}
}

func rows(runs []*run) [][]string {
	out := [][]string{{"memtable", "op", "nanos"}}

	for _, r := range runs {
		for _, s := range []struct {
			op   string
			vals []float64
		}{
			{"set", r.sets},
			{"get", r.gets},
			{"scan", r.scans},
		} {
			for _, v := range s.vals {
				out = append(out, []string{r.name, s.op, strconv.FormatFloat(v, 'f', -1, 64)})
			}
		}
	}

	return out
}

func mean(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}

	return sum / float64(len(vals))
}
