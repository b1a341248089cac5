package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"slices"
	"strings"

	"go.uber.org/multierr"

	"github.com/angelmondragon/salesmetrics-etl/pkg/enums"
)

var (
	sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)
)

// ValidateDir validates migration filenames + basic SQL headers.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	_, err := validateFS(os.DirFS(dir), ".")
	return err
}

// ValidateEmbedded validates every driver directory compiled into the binary
// and checks that all drivers carry the same migration versions.
func ValidateEmbedded() error {
	return validateDrivers(embedded, "migrations")
}

// ValidateTree runs the same checks as ValidateEmbedded against root on disk.
func ValidateTree(root string) error {
	if root == "" {
		return fmt.Errorf("dir is required")
	}
	return validateDrivers(os.DirFS(root), ".")
}

func validateDrivers(fsys fs.FS, root string) error {
	var (
		errs      error
		reference []string
		refDriver enums.DBDriver
	)
	for _, driver := range enums.DBDrivers() {
		versions, err := validateFS(fsys, path.Join(root, driver.String()))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", driver, err))
			continue
		}
		if reference == nil {
			reference, refDriver = versions, driver
			continue
		}
		if !slices.Equal(reference, versions) {
			errs = multierr.Append(errs, fmt.Errorf("%s migrations %v do not match %s migrations %v", driver, versions, refDriver, reference))
		}
	}
	return errs
}

// validateFS returns the sorted versions found in dir.
func validateFS(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", dir, err)
	}

	seen := map[string]string{} // version -> filename
	versions := []string{}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".sql") {
			continue
		}

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return nil, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}

		version := m[1]
		if prev, ok := seen[version]; ok {
			return nil, fmt.Errorf("duplicate migration version %s in %q and %q", version, prev, name)
		}
		seen[version] = name
		versions = append(versions, version)

		full := path.Join(dir, name)
		b, err := fs.ReadFile(fsys, full)
		if err != nil {
			return nil, fmt.Errorf("read file %q: %w", full, err)
		}

		txt := string(b)
		if !strings.Contains(txt, "-- +goose Up") {
			return nil, fmt.Errorf("migration %q missing \"-- +goose Up\"", name)
		}
		if !strings.Contains(txt, "-- +goose Down") {
			return nil, fmt.Errorf("migration %q missing \"-- +goose Down\"", name)
		}
		if strings.Count(txt, "-- +goose StatementBegin") != strings.Count(txt, "-- +goose StatementEnd") {
			return nil, fmt.Errorf("migration %q has unbalanced StatementBegin/StatementEnd", name)
		}
	}

	slices.Sort(versions)
	return versions, nil
}
