package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Rahwulkumar/trading-journal/internal/model"
	"github.com/Rahwulkumar/trading-journal/internal/store/sqlite"
)

// SeedFile is the YAML document accepted by `journal seed`.
//
//	accounts:
//	  - account_name: FTMO-100k
//	    prop_firm: FTMO
//	    capital_size: 100000
//	strategies:
//	  - strategy_name: London breakout
//	    rules: [wait for Asia range, enter on retest]
type SeedFile struct {
	Accounts   []model.Account  `yaml:"accounts"`
	Strategies []model.Strategy `yaml:"strategies"`
}

// SeedResult counts what a seed run inserted and skipped.
type SeedResult struct {
	Accounts   int
	Strategies int
	Skipped    int
}

// ParseSeed decodes a seed document. Unknown keys are rejected.
func ParseSeed(r io.Reader) (SeedFile, error) {
	var f SeedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return f, nil
		}
		return f, fmt.Errorf("seed: %w", err)
	}
	return f, nil
}

// Seed inserts every account and strategy in f. Rows that already exist are skipped.
func Seed(ctx context.Context, l *sqlite.Ledger, f SeedFile) (SeedResult, error) {
	var res SeedResult
	for _, a := range f.Accounts {
		_, err := l.CreateAccount(ctx, a)
		switch {
		case errors.Is(err, sqlite.ErrConflict):
			res.Skipped++
		case err != nil:
			return res, fmt.Errorf("seed account %q: %w", a.AccountName, err)
		default:
			res.Accounts++
		}
	}

	for _, s := range f.Strategies {
		_, err := l.CreateStrategy(ctx, s)
		switch {
		case errors.Is(err, sqlite.ErrConflict):
			res.Skipped++
		case err != nil:
			return res, fmt.Errorf("seed strategy %q: %w", s.StrategyName, err)
		default:
			res.Strategies++
		}
	}
	return res, nil
}

func newSeedCmd(o *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert accounts and strategies from a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.config()
			if err != nil {
				return err
			}
			fh, err := os.Open(file)
			if err != nil {
				return err
			}
			defer fh.Close()
			doc, err := ParseSeed(fh)
			if err != nil {
				return err
			}

			ledger, err := openLedger(cfg, toolLogger(cmd.ErrOrStderr(), cfg))
			if err != nil {
				return err
			}
			defer ledger.Close()

			res, err := Seed(cmd.Context(), ledger, doc)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d accounts, %d strategies (%d skipped)\n",
				res.Accounts, res.Strategies, res.Skipped)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "seed.yaml", "Seed file")
	return cmd
}
