package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/clearlaw/lexengine/internal/storage"
)

// checkResult is one doctor check outcome.
type checkResult struct {
	name   string
	ok     bool
	detail string
}

// newDoctorCmd creates the doctor command: connectivity and readiness
// checks for every external dependency the pipeline uses.
func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check connectivity to storage, index and model services",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			a, err := buildApp(cmd.Context(), cfg, slog.Default())
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			var checks []checkResult

			// Object storage: the catalog blob doubles as a reachability probe.
			if _, err := a.store.Get(ctx, storage.CatalogKey()); err != nil {
				checks = append(checks, checkResult{"object storage", false, "catalog unreadable: " + err.Error()})
			} else {
				checks = append(checks, checkResult{"object storage", true, "catalog readable"})
			}

			// Lexical index: force the lazy load.
			if hits := a.lexical.Search(ctx, "act", 1); a.lexical.Loaded() {
				checks = append(checks, checkResult{"lexical index", true,
					fmt.Sprintf("loaded, probe returned %d hits", len(hits))})
			} else {
				checks = append(checks, checkResult{"lexical index", false, "snapshot failed to load"})
			}

			if a.vector != nil {
				if a.vector.Healthy(ctx) {
					checks = append(checks, checkResult{"vector service", true, "reachable"})
				} else {
					checks = append(checks, checkResult{"vector service", false, "health probe failed"})
				}
			} else {
				checks = append(checks, checkResult{"vector service", false, "not configured"})
			}

			if a.rerankc != nil {
				if a.rerankc.Available(ctx) {
					checks = append(checks, checkResult{"rerank service", true, "reachable"})
				} else {
					checks = append(checks, checkResult{"rerank service", false, "unavailable, selection uses fused order"})
				}
			} else {
				checks = append(checks, checkResult{"rerank service", false, "not configured"})
			}

			if a.cache != nil {
				hits, misses := a.cache.Stats()
				checks = append(checks, checkResult{"semantic cache", true,
					fmt.Sprintf("%d hits, %d misses", hits, misses)})
			} else {
				checks = append(checks, checkResult{"semantic cache", false, "disabled"})
			}

			out := cmd.OutOrStdout()
			failures := 0
			for _, c := range checks {
				mark := "ok"
				if !c.ok {
					mark = "FAIL"
					failures++
				}
				fmt.Fprintf(out, "%-16s %-4s %s\n", c.name, mark, c.detail)
			}
			if failures > 0 {
				fmt.Fprintf(out, "\n%d of %d checks failed\n", failures, len(checks))
			}
			return nil
		},
	}
}
