// Command lexflow is a thin CLI around the Engine: it loads a program
// file, binds command-line inputs to the entry workflow's parameters,
// runs it, and prints the result as JSON. Grounded on the teacher's
// cmd/workflow-runner/main.go bootstrap shape (signal-aware context,
// config/logger wiring) scaled down to a single synchronous run instead
// of a long-lived service.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/lyzr/lexflow/common/config"
	"github.com/lyzr/lexflow/common/logger"
	"github.com/lyzr/lexflow/internal/engine"
	"github.com/lyzr/lexflow/internal/ir"
	_ "github.com/lyzr/lexflow/internal/opcodes" // registers the built-in opcode set
	"github.com/lyzr/lexflow/internal/program"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	programPath := flag.String("program", "", "path to a LexFlow program (.json or .yaml)")
	entry := flag.String("entry", "main", "name of the workflow to run")
	inputsJSON := flag.String("inputs", "{}", "JSON object bound to the entry workflow's parameters")
	flag.Parse()

	cfg, err := config.Load("lexflow")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Service.LogLevel, cfg.Service.LogFormat)

	if *programPath == "" {
		log.Error("missing required -program flag")
		os.Exit(1)
	}

	result, err := run(ctx, cfg, log, *programPath, *entry, *inputsJSON)
	if err != nil {
		log.Error("run failed", "error", err)
		os.Exit(1)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Error("failed to encode result", "error", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger, programPath, entry, inputsJSON string) (*engine.Result, error) {
	data, err := os.ReadFile(programPath)
	if err != nil {
		return nil, fmt.Errorf("read program file: %w", err)
	}

	compiled, err := loadProgram(programPath, data, entry)
	if err != nil {
		return nil, fmt.Errorf("compile program: %w", err)
	}

	var actuals map[string]any
	if err := json.Unmarshal([]byte(inputsJSON), &actuals); err != nil {
		return nil, fmt.Errorf("parse -inputs: %w", err)
	}

	log.Info("program loaded", "path", programPath, "entry", entry)

	eng := engine.New(cfg, log, compiled)
	return eng.Run(ctx, actuals)
}

// loadProgram dispatches to program.LoadJSON or program.LoadYAML by file
// extension; anything other than .yaml/.yml is treated as JSON.
func loadProgram(path string, data []byte, entry string) (*ir.Program, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return program.LoadYAML(data, entry)
	default:
		return program.LoadJSON(data, entry)
	}
}
