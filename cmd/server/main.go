package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/nStangl/splaykv/server/web"
	"github.com/nStangl/splaykv/util"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	cfg     web.Config
	rootCmd = &cobra.Command{
		Use:     "server",
		Short:   "splaykv server",
		Long:    "Single node key-value server backed by a splay tree memtable, a write-ahead log and sstables",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			if unparsed := util.ExtractUnknownArgs(cmd.Flags(), args); len(unparsed) == 1 {
				cfg.Loglevel = unparsed[0]
			}

			setLogLevel(cfg.Loglevel)

			if err := os.MkdirAll(cfg.Directory, os.ModePerm); err != nil {
				return fmt.Errorf("failed to create data directory %q: %w", cfg.Directory, err)
			}

			store, err := web.NewStore(&cfg)
			if err != nil {
				return fmt.Errorf("failed to create store: %w", err)
			}

			log.Infof("opened store in %s with %s memtable", cfg.Directory, cfg.Memtable)

			s, err := web.NewPublicServer(&cfg, store)
			if err != nil {
				return fmt.Errorf("failed to create new public server: %w", err)
			}

			ts, err := s.Server()
			if err != nil {
				return fmt.Errorf("failed to create new public TCP server: %w", err)
			}

			done, ers := ts.Serve()

			log.Infof("server %s serving requests on %s", s.ID(), ts.Addr())

			go func() {
				for err := range ers {
					log.Errorf("error from public server: %v", err)
				}
			}()

			// Catch the interrupts (ctrl+c)
			quit := make(chan os.Signal, 1)

			signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

			go func() {
				<-quit

				log.Info("server about to close")

				if err := ts.Close(); err != nil {
					log.Errorf("error closing public server: %v", err)
				}
			}()

			<-done

			return nil
		},
	}
)

func init() {
	log.SetLevel(log.InfoLevel)
	log.SetOutput(os.Stdout)

	rootCmd.PersistentFlags().IntVarP(&cfg.Port, "port", "p", 8080, "Sets the port of the server")
	rootCmd.PersistentFlags().StringVarP(&cfg.Address, "address", "a", "127.0.0.1", "Which address the server should listen to")
	rootCmd.PersistentFlags().StringVarP(&cfg.Directory, "directory", "d", "db-data", "Directory for the log and sstable files, created if missing")
	rootCmd.PersistentFlags().StringVarP(&cfg.Logfile, "logfile", "l", "log.db", "Name of the write-ahead log inside the directory")
	rootCmd.PersistentFlags().StringVarP(&cfg.Loglevel, "loglevel", "o", "ALL", "Loglevel, e.g., INFO, ALL, . . .")
	rootCmd.PersistentFlags().StringVar(&cfg.Loglevel, "ll", "ALL", "Loglevel, e.g., INFO, ALL, . . .")
	rootCmd.PersistentFlags().StringVarP(&cfg.Memtable, "memtable", "m", "splay", "Memtable implementation, splay or redblack")
	rootCmd.PersistentFlags().IntVarP(&cfg.MaxEntries, "max_entries", "c", 0, "Keys held in memory before flushing, 0 keeps the default")
	rootCmd.PersistentFlags().IntVar(&cfg.MaxBytes, "max_bytes", 0, "Approximate memtable bytes before flushing, 0 keeps the default")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Whoops. There was an error while executing your CLI '%s'", err)
		os.Exit(1)
	}
}

func setLogLevel(level string) {
	switch strings.ToLower(level) {
	case "all", "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
		log.Warnf("invalid log level %q, falling back to info", level)
	}

	log.SetOutput(os.Stderr)
}
