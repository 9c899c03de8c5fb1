package store

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/domain"
)

// Fixtures seeds the upstream HR records this service only reads.
type Fixtures struct {
	Company   domain.Company            `yaml:"company"`
	Employees []domain.Employee         `yaml:"employees"`
	Templates []domain.DocumentTemplate `yaml:"templates"`
}

// Seeder is implemented by every store backend.
type Seeder interface {
	UpsertCompany(ctx context.Context, c domain.Company) error
	UpsertEmployee(ctx context.Context, e domain.Employee) error
	UpsertTemplate(ctx context.Context, t domain.DocumentTemplate) error
}

func ParseFixtures(b []byte) (Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(b, &f); err != nil {
		return Fixtures{}, fmt.Errorf("parse fixtures: %w", err)
	}
	for i, t := range f.Templates {
		if t.ID == "" || t.Content == "" {
			return Fixtures{}, fmt.Errorf("template #%d: id and content are required", i)
		}
		if t.Category == "" {
			f.Templates[i].Category = domain.CategoryOther
		} else if !t.Category.Valid() {
			return Fixtures{}, fmt.Errorf("template %s: unknown category %q", t.ID, t.Category)
		}
	}
	for i, e := range f.Employees {
		if e.ID == "" || e.Name == "" {
			return Fixtures{}, fmt.Errorf("employee #%d: id and name are required", i)
		}
	}
	return f, nil
}

func LoadFixturesFile(path string) (Fixtures, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Fixtures{}, err
	}
	return ParseFixtures(b)
}

func ApplyFixtures(ctx context.Context, st Seeder, f Fixtures) error {
	if f.Company != (domain.Company{}) {
		if err := st.UpsertCompany(ctx, f.Company); err != nil {
			return fmt.Errorf("seed company: %w", err)
		}
	}
	for _, e := range f.Employees {
		if err := st.UpsertEmployee(ctx, e); err != nil {
			return fmt.Errorf("seed employee %s: %w", e.ID, err)
		}
	}
	for _, t := range f.Templates {
		if err := st.UpsertTemplate(ctx, t); err != nil {
			return fmt.Errorf("seed template %s: %w", t.ID, err)
		}
	}
	return nil
}
