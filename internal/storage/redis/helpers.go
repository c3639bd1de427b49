package redis

import (
	"fmt"
	"strconv"
	"time"

	"github.com/goodtune/tvwarden/internal/storage"
)

// appFields flattens an App into hash fields.
func appFields(app storage.App) map[string]any {
	return map[string]any{
		"package_name": app.PackageName,
		"display_name": app.DisplayName,
		"installed":    strconv.FormatBool(app.Installed),
		"allowed":      strconv.FormatBool(app.Allowed),
		"category":     app.Category,
		"updated_at":   app.UpdatedAt.Format(time.RFC3339Nano),
	}
}

// parseApp converts a Redis hash to App
func parseApp(data map[string]string) (*storage.App, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	installed, err := strconv.ParseBool(data["installed"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse installed: %w", err)
	}

	allowed, err := strconv.ParseBool(data["allowed"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse allowed: %w", err)
	}

	var updatedAt time.Time
	if raw := data["updated_at"]; raw != "" {
		updatedAt, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse updated_at: %w", err)
		}
	}

	return &storage.App{
		PackageName: data["package_name"],
		DisplayName: data["display_name"],
		Installed:   installed,
		Allowed:     allowed,
		Category:    data["category"],
		UpdatedAt:   updatedAt,
	}, nil
}

// parseDailyUsage converts a Redis hash to DailyUsage
func parseDailyUsage(data map[string]string) (*storage.DailyUsage, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	minutes, err := strconv.Atoi(data["minutes"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse minutes: %w", err)
	}

	return &storage.DailyUsage{
		Date:        data["date"],
		PackageName: data["package_name"],
		Minutes:     minutes,
	}, nil
}
