// Package main provides the roll command-line tool. It wires together
// configuration, logging, the formula registry, and optional Lua bindings,
// then evaluates a dice expression or a registered formula.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/cory-johannsen/dicelang/internal/config"
	"github.com/cory-johannsen/dicelang/internal/content"
	"github.com/cory-johannsen/dicelang/internal/dice"
	"github.com/cory-johannsen/dicelang/internal/observability"
	"github.com/cory-johannsen/dicelang/internal/scripting"
)

func main() {
	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	formulaID := flag.String("formula", "", "evaluate a registered formula by ID instead of an expression")
	repeat := flag.Int("n", 1, "number of times to roll")
	trace := flag.Bool("trace", true, "print the per-die trace alongside the result")
	bounds := flag.Bool("bounds", false, "print the minimum and maximum possible results")
	list := flag.Bool("list", false, "list registered formula IDs and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	// Initialize logger
	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	// Load formula definitions
	registry, err := content.LoadRegistry(cfg.Content.FormulasDir)
	if err != nil {
		logger.Fatal("loading formulas", zap.Error(err))
	}
	logger.Debug("formulas loaded",
		zap.String("dir", cfg.Content.FormulasDir),
		zap.Int("count", len(registry.IDs())),
	)

	if *list {
		for _, id := range registry.IDs() {
			fmt.Println(id)
		}
		return
	}

	// Load scripted variable bindings
	var vars dice.Bindings
	if cfg.Content.ScriptsDir != "" {
		provider := scripting.NewProvider(cfg.Scripting.InstructionLimit)
		defer provider.Close()
		if err := provider.LoadDir(cfg.Content.ScriptsDir); err != nil {
			logger.Fatal("loading scripts", zap.Error(err))
		}
		vars, err = provider.Bindings()
		if err != nil {
			logger.Fatal("converting script bindings", zap.Error(err))
		}
		logger.Debug("script bindings loaded",
			zap.String("dir", cfg.Content.ScriptsDir),
			zap.Int("count", len(vars)),
		)
	}

	formula, err := resolveFormula(registry, *formulaID, flag.Args())
	if err != nil {
		logger.Error("resolving formula", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *bounds {
		lo, hi, err := formula.Bounds(vars)
		if err != nil {
			logger.Fatal("computing bounds", zap.Error(err))
		}
		fmt.Printf("%s: min %d, max %d\n", formula, lo, hi)
		return
	}

	roller := dice.NewLoggedRoller(dice.NewCryptoSource(), logger)
	for i := 0; i < *repeat; i++ {
		res, err := roller.Roll(formula, vars)
		if err != nil {
			logger.Error("evaluating formula", zap.Error(err))
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if *trace {
			fmt.Println(res.String())
		} else {
			fmt.Println(res.Value.String())
		}
	}
}

// resolveFormula picks the formula to evaluate: a registered ID when the
// -formula flag is set, otherwise the remaining arguments joined as one
// expression.
func resolveFormula(registry *content.Registry, id string, args []string) (*dice.Formula, error) {
	if id != "" {
		nf, ok := registry.Formula(id)
		if !ok {
			return nil, fmt.Errorf("unknown formula ID %q", id)
		}
		return nf.Formula, nil
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("no expression given; pass one as an argument or use -formula")
	}
	return dice.Parse(strings.Join(args, " "))
}
