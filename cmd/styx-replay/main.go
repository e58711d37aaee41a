// styx-replay rebuilds case state from a JSONL file of verdict events. It is
// an operator tool for backfilling a fresh database from an exported event
// stream, bypassing the live queue.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/stygian-io/styx/internal/aggregate"
	"github.com/stygian-io/styx/internal/config"
	"github.com/stygian-io/styx/internal/database"
	"github.com/stygian-io/styx/internal/ingest"
	"github.com/stygian-io/styx/internal/report"
	"github.com/stygian-io/styx/internal/services"
)

func main() {
	input := flag.String("input", "", "path to JSONL verdict events")
	flag.Parse()

	if *input == "" {
		log.Fatal("usage: styx-replay -input events.jsonl")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	f, err := os.Open(*input)
	if err != nil {
		log.Fatalf("open input: %v", err)
	}
	defer f.Close()

	cases := services.NewCaseService(db)
	engine := aggregate.NewEngine(cases, report.NewGenerator(), nil, cfg.CapacityRPS, cfg.AggWindow)

	var line, applied, skipped int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line++

		var evt ingest.VerdictEvent
		if err := json.Unmarshal(scanner.Bytes(), &evt); err != nil {
			log.Printf("line %d: bad json, skipped: %v", line, err)
			skipped++
			continue
		}
		if err := evt.Validate(); err != nil {
			log.Printf("line %d: %v, skipped", line, err)
			skipped++
			continue
		}

		c, err := cases.UpsertCase(evt.Zone, evt.IP, evt.ASN, evt.Country, evt.TS)
		if err != nil {
			log.Fatalf("line %d: upsert case: %v", line, err)
		}
		if err := cases.AppendEvent(c.ID, evt.Row()); err != nil {
			log.Fatalf("line %d: append event: %v", line, err)
		}
		if _, err := engine.Recompute(c); err != nil {
			log.Fatalf("line %d: recompute: %v", line, err)
		}
		applied++
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("read input: %v", err)
	}

	fmt.Printf("replayed %d events (%d skipped)\n", applied, skipped)
}
