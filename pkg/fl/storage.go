package fl

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/absmach/hubnspoke/pkg/atomicfile"
	pkgerrors "github.com/absmach/hubnspoke/pkg/errors"
)

// History stores one JSON summary per finished round.
type History struct {
	roundsDir string
	mu        sync.RWMutex
}

func NewHistory(roundsDir string) (*History, error) {
	if err := os.MkdirAll(roundsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create rounds directory: %w", err)
	}

	return &History{roundsDir: roundsDir}, nil
}

func (h *History) SaveRound(summary RoundSummary) error {
	roundFile, err := h.roundFile(summary.RoundID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal round summary: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := atomicfile.WriteFile(roundFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write round file: %w", err)
	}

	return nil
}

func (h *History) LoadRound(roundID string) (RoundSummary, error) {
	roundFile, err := h.roundFile(roundID)
	if err != nil {
		return RoundSummary{}, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := os.ReadFile(roundFile)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return RoundSummary{}, fmt.Errorf("%w: round %s", pkgerrors.ErrNotFound, roundID)
	case err != nil:
		return RoundSummary{}, fmt.Errorf("failed to read round file: %w", err)
	}

	var summary RoundSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return RoundSummary{}, fmt.Errorf("failed to unmarshal round summary: %w", err)
	}

	return summary, nil
}

func (h *History) ListRounds() ([]string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	entries, err := os.ReadDir(h.roundsDir)
	if err != nil {
		return nil, err
	}

	var roundIDs []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "round_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		roundIDs = append(roundIDs, strings.TrimSuffix(strings.TrimPrefix(name, "round_"), ".json"))
	}
	sort.Strings(roundIDs)

	return roundIDs, nil
}

func (h *History) roundFile(roundID string) (string, error) {
	sanitized := sanitizeRoundID(roundID)
	if sanitized == "" {
		return "", fmt.Errorf("%w: invalid round id %q", pkgerrors.ErrEmptyKey, roundID)
	}

	return filepath.Join(h.roundsDir, fmt.Sprintf("round_%s.json", sanitized)), nil
}

// sanitizeRoundID keeps only characters that are safe in a file name.
func sanitizeRoundID(roundID string) string {
	var final strings.Builder
	for _, r := range strings.TrimSpace(roundID) {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' {
			final.WriteRune(r)
		}
	}

	return final.String()
}
