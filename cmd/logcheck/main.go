package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	appcfg "github.com/YassineElZaart/learn-chess/internal/config"
	"github.com/YassineElZaart/learn-chess/internal/logcheck"
	"github.com/YassineElZaart/learn-chess/internal/obslog"
	"github.com/YassineElZaart/learn-chess/internal/rules"
	"github.com/YassineElZaart/learn-chess/internal/store"
)

func main() {
	fix := flag.Bool("fix", false, "rewrite coordinate-form logs into algebraic notation")
	id := flag.String("id", "", "check a single session")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall deadline")
	flag.Parse()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	backend, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("open %s store: %v", cfg.StoreBackend, err)
	}
	defer func() { _ = backend.Close() }()

	checker := logcheck.New(backend.Store, rules.New())

	var reports []logcheck.Report
	if strings.TrimSpace(*id) != "" {
		rep := checker.CheckID(ctx, *id)
		if *fix && !rep.OK() && rep.Err == nil {
			if err := checker.Fix(ctx, *id); err != nil {
				rep.Err = err
			} else {
				rep.Fixed = true
			}
		}
		reports = append(reports, rep)
	} else {
		reports, err = checker.Run(ctx, *fix)
		if err != nil {
			log.Printf("run interrupted: %v", err)
		}
	}

	bad := 0
	for _, r := range reports {
		switch {
		case r.Err != nil:
			bad++
			fmt.Printf("ERR   %s: %v\n", r.SessionID, r.Err)
		case r.OK():
			fmt.Printf("OK    %s (%d moves)\n", r.SessionID, r.Moves)
		case r.Fixed:
			fmt.Printf("FIXED %s: %s\n", r.SessionID, strings.Join(r.Problems, ", "))
		default:
			bad++
			fmt.Printf("BAD   %s: %s\n", r.SessionID, strings.Join(r.Problems, ", "))
		}
	}
	fmt.Printf("%d sessions checked, %d with unresolved problems\n", len(reports), bad)
	if bad > 0 {
		os.Exit(1)
	}
}
