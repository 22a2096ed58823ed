package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"library-lending/internal/app"
	"library-lending/internal/importer"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "tylko sprawdź plik, nie zapisuj książek")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Użycie: %s [-dry-run] plik.csv\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	ctx := context.Background()
	a, _ := app.MustOpen(ctx)
	defer a.Close()
	logger := a.Logger

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		logger.Error("Nie można otworzyć pliku", "path", flag.Arg(0), "error", err)
		a.Close()
		os.Exit(1)
	}
	defer f.Close()

	rows, err := importer.Parse(f)
	if err != nil {
		logger.Error("Błąd odczytu pliku CSV", "error", err)
		a.Close()
		os.Exit(1)
	}

	if *dryRun {
		bad := 0
		for _, row := range rows {
			if row.Err != nil {
				bad++
				logger.Warn("Niepoprawny wiersz", "line", row.Line, "error", row.Err)
			}
		}
		logger.Info("Sprawdzono plik", "rows", len(rows), "invalid", bad)
		return
	}

	report, err := a.Service.ImportBooks(ctx, rows)
	if err != nil {
		logger.Error("Import przerwany", "error", err, "created", report.Created)
		a.Close()
		os.Exit(1)
	}
	for _, p := range report.Problems {
		logger.Warn("Pominięto wiersz", "line", p.Line, "title", p.Title, "reason", p.Reason)
	}
	logger.Info("Import zakończony", "created", report.Created, "skipped", report.Skipped)
}
