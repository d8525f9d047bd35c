package postgresql

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cmlabs-hris/payroll-engine/internal/domain/payroll"
	"github.com/cmlabs-hris/payroll-engine/internal/pkg/database"
	"github.com/cmlabs-hris/payroll-engine/internal/pkg/formula"
)

type conceptRepository struct {
	db *database.DB
}

func NewConceptRepository(db *database.DB) payroll.ConceptCatalog {
	return &conceptRepository{db: db}
}

// Catalog returns the active concepts, with formula specs already built into strategies.
func (r *conceptRepository) Catalog(ctx context.Context) (payroll.Catalog, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT id, name, kind, calc_type, formula, applies_to, sort_order
		FROM payroll_concepts
		WHERE is_active = true
		ORDER BY sort_order, id
	`
	rows, err := q.Query(ctx, query)
	if err != nil {
		return payroll.Catalog{}, fmt.Errorf("failed to list payroll concepts: %w", err)
	}
	defer rows.Close()

	var concepts []payroll.Concept
	for rows.Next() {
		var c payroll.Concept
		var spec []byte
		var appliesTo []string
		if err := rows.Scan(&c.ID, &c.Name, &c.Kind, &c.CalcType, &spec, &appliesTo, &c.SortOrder); err != nil {
			return payroll.Catalog{}, fmt.Errorf("failed to scan payroll concept: %w", err)
		}
		for _, k := range appliesTo {
			c.AppliesTo = append(c.AppliesTo, payroll.PeriodKind(k))
		}
		if c.CalcType == payroll.CalcTypeFormula {
			var fs payroll.FormulaSpec
			if err := json.Unmarshal(spec, &fs); err != nil {
				return payroll.Catalog{}, fmt.Errorf("concept %s has an unreadable formula: %w", c.ID, err)
			}
			c.Formula, err = formula.Build(fs)
			if err != nil {
				return payroll.Catalog{}, fmt.Errorf("concept %s: %w", c.ID, err)
			}
		}
		concepts = append(concepts, c)
	}
	if err := rows.Err(); err != nil {
		return payroll.Catalog{}, fmt.Errorf("failed to list payroll concepts: %w", err)
	}

	return payroll.Catalog{Concepts: concepts}, nil
}
