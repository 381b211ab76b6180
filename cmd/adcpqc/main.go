// Command adcpqc screens ADCP deployments against the threshold QC tests
// and writes per-instrument reports.
//
//	adcpqc [-config qc.hujson] [-db runs.db] [-out reports/] [-workers N] record.json|dir ...
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/adcpqc/internal/adcp"
	"github.com/banshee-data/adcpqc/internal/config"
	"github.com/banshee-data/adcpqc/internal/fsutil"
	"github.com/banshee-data/adcpqc/internal/ingest"
	"github.com/banshee-data/adcpqc/internal/report"
	"github.com/banshee-data/adcpqc/internal/store"
	"github.com/banshee-data/adcpqc/internal/timeutil"
	"github.com/banshee-data/adcpqc/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, fsutil.OSFileSystem{}, timeutil.RealClock{}, os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	configPath  string
	dbPath      string
	outDir      string
	workers     int
	showVersion bool
	inputs      []string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fset := flag.NewFlagSet("adcpqc", flag.ContinueOnError)
	fset.SetOutput(stderr)

	var o options
	fset.StringVar(&o.configPath, "config", "", "QC config file (.json or .hujson); built-in defaults when empty")
	fset.StringVar(&o.dbPath, "db", "", "sqlite run ledger; disabled when empty")
	fset.StringVar(&o.outDir, "out", "", "directory for JSON reports; disabled when empty")
	fset.IntVar(&o.workers, "workers", 0, "instruments screened in parallel (0 = from config)")
	fset.BoolVar(&o.showVersion, "version", false, "print version and exit")
	if err := fset.Parse(args); err != nil {
		return nil, err
	}
	o.inputs = fset.Args()
	if !o.showVersion && len(o.inputs) == 0 {
		return nil, fmt.Errorf("no input records given")
	}
	return &o, nil
}

// run returns the process exit code: 0 when every instrument passed, 1 when
// any failed or could not be screened, 2 on usage or setup errors. Results
// go to stdout, flag usage to stderr.
func run(ctx context.Context, fs fsutil.FileSystem, clock timeutil.Clock, args []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		log.Printf("%v", err)
		return 2
	}
	if o.showVersion {
		fmt.Fprintln(stdout, version.String())
		return 0
	}

	cfg := config.DefaultQCConfig()
	if o.configPath != "" {
		if cfg, err = config.LoadQCConfig(fs, o.configPath); err != nil {
			log.Printf("load config: %v", err)
			return 2
		}
	}
	opts, err := cfg.Options()
	if err != nil {
		log.Printf("config: %v", err)
		return 2
	}
	workers := cfg.GetWorkers()
	if o.workers > 0 {
		workers = o.workers
	}

	paths, err := ingest.ExpandPaths(fs, o.inputs)
	if err != nil {
		log.Printf("inputs: %v", err)
		return 2
	}
	if len(paths) == 0 {
		log.Printf("inputs: no .json records found in %v", o.inputs)
		return 2
	}
	records, err := ingest.LoadRecords(fs, paths)
	if err != nil {
		log.Printf("load records: %v", err)
		return 2
	}

	var ledger *store.Store
	if o.dbPath != "" {
		if ledger, err = store.OpenWithClock(o.dbPath, clock); err != nil {
			log.Printf("open db: %v", err)
			return 2
		}
		defer ledger.Close()
		if err := ledger.MigrateUp(); err != nil {
			log.Printf("migrate db: %v", err)
			return 2
		}
	}

	start := clock.Now()
	outcomes := adcp.ScreenBatch(ctx, records, cfg, opts, workers)
	log.Printf("screened %d record(s) with %d worker(s) in %v", len(records), workers, clock.Since(start))

	exit := 0
	written := make(map[string]string)
	for _, oc := range outcomes {
		label := fmt.Sprintf("%s (%s)", oc.Record.Meta.Instrument(), paths[oc.Index])
		if oc.Err != nil {
			fmt.Fprintf(stdout, "%s: ERROR %v\n", label, oc.Err)
			exit = 1
			continue
		}

		rep, err := report.Build(oc.Result)
		if err != nil {
			fmt.Fprintf(stdout, "%s: ERROR %v\n", label, err)
			exit = 1
			continue
		}
		status := "PASS"
		if rep.Failed {
			status = "FAIL"
			exit = 1
		}
		fmt.Fprintf(stdout, "%s: %s %v\n", label, status, rep.Combined)
		for _, sk := range oc.Result.Skipped {
			fmt.Fprintf(stdout, "  skipped %s: %s\n", sk.Name, sk.Reason)
		}

		if o.outDir != "" {
			name := report.FileName(rep)
			if prev, ok := written[name]; ok {
				log.Printf("%s: report %s already written for %s", label, name, prev)
				exit = 1
			} else if path, err := report.Write(fs, o.outDir, rep); err != nil {
				log.Printf("%s: %v", label, err)
				exit = 1
			} else {
				written[name] = paths[oc.Index]
				fmt.Fprintf(stdout, "  report %s\n", path)
			}
		}
		if ledger != nil {
			id, err := ledger.InsertRun(ctx, oc.Result)
			if err != nil {
				log.Printf("%s: record run: %v", label, err)
				exit = 1
			} else {
				fmt.Fprintf(stdout, "  run %s\n", id)
			}
		}
	}
	return exit
}
