package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Victor-armando18/service-pricing/internal/domain"
	"github.com/Victor-armando18/service-pricing/internal/infrastructure"
	"github.com/Victor-armando18/service-pricing/internal/infrastructure/events"
	"github.com/Victor-armando18/service-pricing/internal/infrastructure/jsonlogic"
	"github.com/Victor-armando18/service-pricing/internal/usecase"
	"github.com/Victor-armando18/service-pricing/pkg/engine"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func main() {
	dir := flag.String("dir", "data/rules", "directory holding <version>_rules.{yaml,yml,json}")
	version := flag.String("version", "v1", "rule pack version")
	contextFile := flag.String("context", "", "JSON file with an evaluation context; overrides the sample")
	collectAll := flag.Bool("collect-all", false, "report every constraint violation instead of the first")
	verbose := flag.Bool("v", false, "log engine decisions to stderr")
	flag.Parse()

	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("   PRICING ENGINE CLI - DIAGNOSTIC TOOL")
	fmt.Println(strings.Repeat("=", 60))

	evalCtx, err := loadContext(*contextFile)
	if err != nil {
		fmt.Printf("\n❌ ERROR: %v\n", err)
		os.Exit(1)
	}

	logger := zerolog.Nop()
	if *verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	jsonlogic.Register()
	cfg := engine.DefaultConfig()
	cfg.Logger = logger
	if *collectAll {
		cfg.Mode = engine.CollectAll
	}

	svc := usecase.NewPricingService(
		infrastructure.NewFileRuleLoader(*dir),
		engine.NewEngine(cfg, engine.DefaultActionRegistry()),
		events.Discard{},
		usecase.PricingOptions{DefaultVersion: *version, Logger: logger},
	)

	out, err := svc.Price(context.Background(), domain.PriceRequest{RequestID: "CLI", Context: evalCtx})
	if err != nil {
		fmt.Printf("\n❌ CRITICAL ERROR: %v\n", err)
		os.Exit(1)
	}

	displayExecutionSummary(out)
}

// loadContext lê o contexto de path ou devolve um produto de exemplo
// (eletrónica, com concorrente mais barato).
func loadContext(path string) (engine.RuleEvaluationContext, error) {
	if path == "" {
		return engine.RuleEvaluationContext{
			ProductID:    "SKU-CLI-1",
			SellerID:     "seller-1",
			SiteID:       "site-ao",
			CategoryID:   "electronics",
			Quantity:     12,
			BasePrice:    decimal.RequireFromString("100.00"),
			CostPrice:    decimal.RequireFromString("60.00"),
			CurrentPrice: decimal.RequireFromString("100.00"),
			Attributes: map[string]any{
				"competitorPrice": "95.00",
				"inventory":       40,
			},
			EvaluatedAt: time.Now().UTC(),
		}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return engine.RuleEvaluationContext{}, fmt.Errorf("context file not found [%s]: %w", path, err)
	}
	var evalCtx engine.RuleEvaluationContext
	if err := json.Unmarshal(data, &evalCtx); err != nil {
		return engine.RuleEvaluationContext{}, fmt.Errorf("parse context JSON: %w", err)
	}
	return evalCtx, nil
}

func displayExecutionSummary(out *domain.PriceOutcome) {
	res := out.Evaluation

	// 1. LOG DE EXECUÇÃO (O Caminho Percorrido)
	fmt.Println("\n[1. EXECUTION LOG]")
	for _, step := range res.ExecutionLog {
		fmt.Printf("   [%-10s] Rule: %-6d %-16s -> %s\n",
			strings.ToUpper(step.Phase), step.RuleID, step.Action, step.Message)
	}

	// 2. RESULTADOS POR REGRA
	fmt.Println("\n[2. RULE RESULTS]")
	for _, r := range res.Results {
		status := "✅"
		if !r.Success {
			status = "⚠️ "
		}
		fmt.Printf("   %s %-6d %-24s %10s -> %-10s %s\n",
			status, r.RuleID, r.RuleName, r.OriginalPrice.StringFixed(2), r.AdjustedPrice.StringFixed(2), r.AppliedReason)
		for _, v := range r.Violations {
			fmt.Printf("        BLOCKED: [%s] %s\n", v.Code, v.Message)
		}
	}
	for _, s := range res.Skipped {
		fmt.Printf("   ⏭  %-6d skipped: %s\n", s.RuleID, s.Reason)
	}

	fmt.Println("\n[3. PRICE DELTA]")
	if len(out.Delta) == 0 {
		fmt.Println("   No changes.")
	} else {
		deltaJSON, _ := json.MarshalIndent(out.Delta, "   ", "  ")
		fmt.Println("   " + string(deltaJSON))
	}

	// 4. RESUMO RÁPIDO
	fmt.Println("\n[4. QUICK SUMMARY]")
	fmt.Printf("   Start price:  %s\n", out.StartPrice.StringFixed(2))
	fmt.Printf("   Final price:  %s\n", out.FinalPrice.StringFixed(2))
	fmt.Printf("   Delta:        %v (changed by the server)\n", out.ServerDelta)
	fmt.Printf("   Rule version: %s\n", out.RulesVersion)

	fmt.Println(strings.Repeat("=", 60))
}
