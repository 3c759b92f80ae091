package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var slugInvalidRe = regexp.MustCompile(`[^a-z0-9]+`)

const migrationTemplate = `-- +goose Up
-- +goose StatementBegin
-- %[1]s: statements must run on both postgres and sqlite
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- %[1]s: undo the Up block
-- +goose StatementEnd
`

// migrationSlug lowercases name and collapses anything outside [a-z0-9] into
// single underscores.
func migrationSlug(name string) string {
	slug := slugInvalidRe.ReplaceAllString(strings.ToLower(name), "_")
	return strings.Trim(slug, "_")
}

// CreateSQLMigration writes an empty goose migration named
// <dir>/<YYYYMMDDHHMMSS>_<slug>.sql and returns its path.
func CreateSQLMigration(dir string, name string) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return "", fmt.Errorf("migration dir is required")
	}
	slug := migrationSlug(name)
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create migration dir %q: %w", dir, err)
	}

	fullpath := filepath.Join(dir, fmt.Sprintf("%s_%s.sql", time.Now().UTC().Format("20060102150405"), slug))
	file, err := os.OpenFile(fullpath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return "", fmt.Errorf("migration already exists: %s", fullpath)
		}
		return "", fmt.Errorf("open migration %q: %w", fullpath, err)
	}
	defer file.Close()

	if _, err := fmt.Fprintf(file, migrationTemplate, slug); err != nil {
		return "", fmt.Errorf("write migration %q: %w", fullpath, err)
	}
	return fullpath, nil
}
