// Machina CLI - compiles, checks and scores assembly solutions
package main

import (
	"crypto/sha256"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/machina/bundle"
	"github.com/chazu/machina/compiler"
	"github.com/chazu/machina/problem"
	"github.com/chazu/machina/server"
	"github.com/chazu/machina/store"
	"github.com/chazu/machina/vm"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	verbose := flag.Bool("v", false, "Verbose output")
	serveMode := flag.Bool("serve", false, "Start checker service (Connect HTTP/JSON)")
	servePort := flag.Int("port", 4567, "Checker service port (used with --serve)")
	lspMode := flag.Bool("lsp", false, "Start language server on stdio")
	emitPath := flag.String("emit", "", "Write the compiled program as a bundle to this path")
	dbPath := flag.String("db", "", "Record the score in this SQLite database")
	historyMode := flag.Bool("history", false, "List recorded runs for the problem (requires --db)")
	stepLimit := flag.Int("step-limit", 0, "Abort runs that exceed this many steps (0 = unlimited)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: machina [options] <problem.{json,toml}> <solution.{asm,bundle}>\n\n")
		fmt.Fprintf(os.Stderr, "Compiles the solution, checks it against the problem and prints the score.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  machina mail.json sort.asm            # Check and score a solution\n")
		fmt.Fprintf(os.Stderr, "  machina -emit sort.bundle mail.json sort.asm\n")
		fmt.Fprintf(os.Stderr, "  machina -db scores.db mail.json sort.asm\n")
		fmt.Fprintf(os.Stderr, "  machina -db scores.db -history mail.json\n")
		fmt.Fprintf(os.Stderr, "  machina --serve --port 8080           # Start checker service\n")
		fmt.Fprintf(os.Stderr, "  machina --lsp mail.json               # LSP on stdio, scoped to a problem\n")
	}
	flag.Parse()

	verbosity := 0
	if *verbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	if *serveMode {
		var opts []server.Option
		if *stepLimit > 0 {
			opts = append(opts, server.WithStepLimit(*stepLimit))
		}
		srv := server.New(opts...)
		if err := srv.ListenAndServe(*servePort); err != nil {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *lspMode {
		var prob *vm.Problem
		if flag.NArg() > 0 {
			var err error
			prob, err = problem.Load(flag.Arg(0))
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error loading problem: %v\n", err)
				os.Exit(1)
			}
		}
		if err := server.NewLSP(prob).Run(); err != nil {
			fmt.Fprintf(os.Stderr, "LSP error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *historyMode {
		if *dbPath == "" || flag.NArg() < 1 {
			fmt.Fprintf(os.Stderr, "Usage: machina -db <path> -history <problem.{json,toml}>\n")
			os.Exit(1)
		}
		if err := printHistory(*dbPath, flag.Arg(0)); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if flag.NArg() < 2 {
		flag.Usage()
		os.Exit(1)
	}

	problemPath := flag.Arg(0)
	solutionPath := flag.Arg(1)

	prob, err := problem.Load(problemPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading problem: %v\n", err)
		os.Exit(1)
	}

	prog, source, err := loadSolution(solutionPath, *verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := prog.Validate(prob); err != nil {
		fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
		os.Exit(1)
	}

	var opts []vm.RunOption
	if *stepLimit > 0 {
		opts = append(opts, vm.WithStepLimit(*stepLimit))
	}
	score, err := prog.Run(prob, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Check failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(score)

	if *emitPath != "" {
		name := strings.TrimSuffix(filepath.Base(solutionPath), filepath.Ext(solutionPath))
		b := bundle.New(name, source, prog, &score)
		if err := bundle.WriteFile(*emitPath, b); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing bundle: %v\n", err)
			os.Exit(1)
		}
		if *verbose {
			fmt.Printf("Wrote %s\n", *emitPath)
		}
	}

	if *dbPath != "" {
		if err := recordScore(*dbPath, problemPath, source, score, *verbose); err != nil {
			fmt.Fprintf(os.Stderr, "Error recording score: %v\n", err)
			os.Exit(1)
		}
	}
}

// loadSolution reads a solution from disk. Assembly sources are compiled,
// bundles are decoded directly.
func loadSolution(path string, verbose bool) (*vm.Program, string, error) {
	if filepath.Ext(path) == ".bundle" {
		b, err := bundle.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("reading bundle %q: %w", path, err)
		}
		prog, err := b.Program()
		if err != nil {
			return nil, "", fmt.Errorf("decoding bundle %q: %w", path, err)
		}
		if verbose {
			fmt.Printf("Loaded bundle %s (%d instructions)\n", b.Name, prog.Size())
		}
		return prog, b.Source, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	source := string(content)

	prog, err := compiler.Compile(source)
	if err != nil {
		return nil, "", fmt.Errorf("compiling %q: %w", path, err)
	}
	if verbose {
		fmt.Printf("Compiled %s (%d instructions)\n", filepath.Base(path), prog.Size())
	}
	return prog, source, nil
}

func recordScore(dbPath, problemPath, source string, score vm.Score, verbose bool) error {
	st, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	name := strings.TrimSuffix(filepath.Base(problemPath), filepath.Ext(problemPath))
	hash := fmt.Sprintf("%x", sha256.Sum256([]byte(source)))
	id, err := st.RecordRun(name, hash, score)
	if err != nil {
		return err
	}
	if verbose {
		fmt.Printf("Recorded run %s for %s\n", id, name)
	}
	return nil
}

func printHistory(dbPath, problemPath string) error {
	st, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	name := strings.TrimSuffix(filepath.Base(problemPath), filepath.Ext(problemPath))
	runs, err := st.History(name)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Printf("No runs recorded for %s\n", name)
		return nil
	}

	for _, run := range runs {
		fmt.Printf("%s  %s  size=%d steps=%d/%.2f/%d\n",
			run.CreatedAt.Format("2006-01-02 15:04:05"), run.ID,
			run.Size, run.StepsMin, run.StepsAvg, run.StepsMax)
	}

	best, err := st.Best(name)
	if err != nil {
		return err
	}
	fmt.Printf("\nBest: %s (size=%d, avg steps=%.2f)\n", best.ID, best.Size, best.StepsAvg)
	return nil
}
