package controlauth

import (
	"os"
	"strings"

	"github.com/google/uuid"
)

// WorkerID resolves a stable identity for this bridge instance: the
// GRAVITON_WORKER_ID environment variable wins, then a previously persisted
// id at path, then a freshly generated one persisted best-effort.
func WorkerID(path string) string {
	if id := strings.TrimSpace(os.Getenv("GRAVITON_WORKER_ID")); id != "" {
		return id
	}

	if raw, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(raw)); id != "" {
			return id
		}
	}

	generated := "worker-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	// Persistence failure is not fatal; the id is just regenerated next run.
	_ = os.WriteFile(path, []byte(generated+"\n"), 0o644)
	return generated
}
