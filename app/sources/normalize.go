package sources

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ExpertVagabond/solana-narrative-tracker/app/signal"
)

// normalize validates every collected signal and de-duplicates by id,
// keeping the first occurrence. Malformed records are dropped here, never
// propagated as crashes.
func normalize(src signal.Source, sigs []signal.Signal) []signal.Signal {
	seen := make(map[string]bool, len(sigs))
	out := make([]signal.Signal, 0, len(sigs))
	for _, sig := range sigs {
		if err := sig.Validate(); err != nil {
			slog.Debug("Dropping malformed signal", "source", string(src), "error", err)
			continue
		}
		if seen[sig.ID] {
			slog.Debug("Dropping duplicate signal", "source", string(src), "id", sig.ID)
			continue
		}
		seen[sig.ID] = true
		out = append(out, sig)
	}
	return out
}

// slugify turns an upstream name into a stable id component.
func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func signalID(src signal.Source, kind, key string) string {
	return fmt.Sprintf("%s:%s:%s", src, kind, slugify(key))
}

func formatUSD(v float64) string {
	return fmt.Sprintf("%.0f", v)
}

func formatPct(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
