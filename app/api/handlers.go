package api

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ExpertVagabond/solana-narrative-tracker/app/publish"
	"github.com/ExpertVagabond/solana-narrative-tracker/app/signal"
	"github.com/ExpertVagabond/solana-narrative-tracker/app/store"
	"github.com/ExpertVagabond/solana-narrative-tracker/app/tasks"
)

type Handler struct {
	publisher *publish.Publisher
	snapshots *store.SnapshotStore
	history   RunHistory
	trigger   RunTrigger
	version   string
}

func NewHandler(publisher *publish.Publisher, snapshots *store.SnapshotStore,
	history RunHistory, trigger RunTrigger, version string) *Handler {
	return &Handler{
		publisher: publisher,
		snapshots: snapshots,
		history:   history,
		trigger:   trigger,
		version:   version,
	}
}

// GetData serves the dashboard data artifact.
func (h *Handler) GetData(c *gin.Context) {
	path := h.publisher.Path()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No dashboard data published yet"})
		return
	}
	c.Header("Cache-Control", "no-cache")
	c.File(path)
}

// GetHealth reports the last collection run's per-source status.
func (h *Handler) GetHealth(c *gin.Context) {
	health := gin.H{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   h.version,
	}

	snap, err := h.snapshots.Read()
	if err != nil {
		if errors.Is(err, store.ErrNoSnapshot) {
			health["status"] = "empty"
			c.JSON(http.StatusOK, health)
			return
		}
		slog.Error("Failed to read snapshot", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read snapshot"})
		return
	}

	sources := make(map[string]gin.H, 4)
	for _, src := range signal.AllSources() {
		res := snap.Result(src)
		entry := gin.H{
			"status":  string(res.Status),
			"signals": len(res.Signals),
		}
		if res.Error != "" {
			entry["error"] = res.Error
		}
		sources[string(src)] = entry
	}

	health["status"] = "ok"
	health["run_id"] = snap.RunID
	health["collected_at"] = snap.CollectedAt.Format(time.RFC3339)
	health["signals"] = snap.Count()
	health["sources"] = sources
	c.JSON(http.StatusOK, health)
}

// GetStats lists recent run history.
func (h *Handler) GetStats(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusOK, gin.H{"runs": []store.RunRecord{}, "total": 0})
		return
	}
	runs, err := h.history.RecentRuns(20)
	if err != nil {
		slog.Error("Failed to read run history", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read run history"})
		return
	}
	if runs == nil {
		runs = []store.RunRecord{}
	}
	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"total": len(runs),
	})
}

// APITriggerRun starts a full run in the background.
func (h *Handler) APITriggerRun(c *gin.Context) {
	if err := h.trigger.TriggerRun(); err != nil {
		if errors.Is(err, tasks.ErrRunInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": "A run is already in progress"})
			return
		}
		slog.Error("Failed to trigger run", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to trigger run"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Full run started",
	})
}
