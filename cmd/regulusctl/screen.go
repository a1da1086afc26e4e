package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/madddiyarn/regulus/internal/conjunction"
	"github.com/madddiyarn/regulus/internal/errors"
	"github.com/madddiyarn/regulus/internal/propagation"
	"github.com/madddiyarn/regulus/internal/store"
	"github.com/madddiyarn/regulus/internal/tle"
)

var (
	tleFlag     string
	workersFlag int
	verboseFlag bool
)

var screenCmd = &cobra.Command{
	Use:   "screen --tle <file> <primary-id>",
	Short: "Screen a local element-set file without a running service",
	Long: `screen loads a three-line element-set file, runs one detection in process
with SGP4 and prints the result. Events go to a throwaway database.`,
	Args: cobra.ExactArgs(1),
	RunE: runScreen,
}

func init() {
	screenCmd.Flags().StringVar(&tleFlag, "tle", "", "element-set file (name line + two TLE lines per object)")
	screenCmd.Flags().IntVar(&workersFlag, "workers", 0, "pairs screened concurrently (default: CPUs)")
	screenCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "log detection progress to stderr")
	screenCmd.MarkFlagRequired("tle")
}

func runScreen(cmd *cobra.Command, args []string) error {
	req, err := buildRequest(args[0])
	if err != nil {
		return err
	}

	var out io.Writer = io.Discard
	if verboseFlag {
		out = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(out, nil))

	ds, err := tle.LoadFile(tleFlag, logger)
	if err != nil {
		return err
	}
	if len(ds.Sets) == 0 {
		return errors.InvalidArgumentf("%s holds no element sets", tleFlag)
	}
	catalog := tle.NewCatalog()
	catalog.Set(ds)
	pterm.Info.Printf("Loaded %d element sets for %d objects from %s\n", len(ds.Sets), catalog.Len(), ds.Source)

	dir, err := os.MkdirTemp("", "regulusctl-")
	if err != nil {
		return errors.Wrap(err, "temp dir")
	}
	defer os.RemoveAll(dir)

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	events, err := store.Open(ctx, filepath.Join(dir, "screen.db"), logger)
	if err != nil {
		return err
	}
	defer events.Close()

	cfg := conjunction.DefaultConfig()
	if workersFlag > 0 {
		cfg.Workers = workersFlag
	}
	det, err := conjunction.NewDetector(cfg, catalog, propagation.NewSGP4(), events, logger)
	if err != nil {
		return err
	}

	spinner, _ := pterm.DefaultSpinner.Start("Screening object " + strconv.Itoa(req.PrimaryID))
	res, err := det.Detect(ctx, req)
	if err != nil {
		spinner.Fail(err.Error())
		return err
	}
	spinner.Success("Screened against " + strconv.Itoa(res.CheckedAgainst) + " object(s)")

	if jsonFlag {
		return outputJSON(res)
	}
	return printResult(res)
}
