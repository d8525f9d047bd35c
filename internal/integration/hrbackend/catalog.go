package hrbackend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cmlabs-hris/payroll-engine/internal/domain/payroll"
	"github.com/cmlabs-hris/payroll-engine/internal/pkg/formula"
)

type formulaDTO struct {
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params"`
}

type conceptDTO struct {
	ID        string      `json:"id"`
	Code      string      `json:"code"`
	Name      string      `json:"name"`
	Kind      string      `json:"kind"`
	Type      string      `json:"type"`
	CalcType  string      `json:"calc_type"`
	Formula   *formulaDTO `json:"formula"`
	AppliesTo []string    `json:"applies_to"`
	SortOrder int         `json:"sort_order"`
	IsActive  *bool       `json:"is_active"`
}

func (c *Client) Catalog(ctx context.Context) (payroll.Catalog, error) {
	var dtos []conceptDTO
	if err := c.get(ctx, conceptsPath, nil, &dtos); err != nil {
		return payroll.Catalog{}, err
	}

	concepts := make([]payroll.Concept, 0, len(dtos))
	for _, d := range dtos {
		if d.IsActive != nil && !*d.IsActive {
			continue
		}
		concept, err := d.toConcept()
		if err != nil {
			return payroll.Catalog{}, err
		}
		concepts = append(concepts, concept)
	}
	return payroll.Catalog{Concepts: concepts}, nil
}

func (d conceptDTO) toConcept() (payroll.Concept, error) {
	concept := payroll.Concept{
		ID:        firstNonEmpty(d.ID, d.Code),
		Name:      d.Name,
		Kind:      payroll.ConceptKind(strings.ToLower(firstNonEmpty(d.Kind, d.Type))),
		CalcType:  payroll.CalcType(strings.ToLower(d.CalcType)),
		SortOrder: d.SortOrder,
	}
	if concept.ID == "" {
		return payroll.Concept{}, fmt.Errorf("%w: concept id missing", ErrIncompleteData)
	}
	if !concept.Kind.IsValid() {
		return payroll.Concept{}, fmt.Errorf("%w: concept %s has kind %q", ErrIncompleteData, concept.ID, concept.Kind)
	}
	if !concept.CalcType.IsValid() {
		return payroll.Concept{}, fmt.Errorf("%w: concept %s has calc type %q", ErrIncompleteData, concept.ID, concept.CalcType)
	}
	for _, k := range d.AppliesTo {
		kind := payroll.PeriodKind(strings.ToLower(k))
		if !kind.IsValid() {
			return payroll.Concept{}, fmt.Errorf("%w: concept %s applies to unknown kind %q", ErrIncompleteData, concept.ID, k)
		}
		concept.AppliesTo = append(concept.AppliesTo, kind)
	}

	if concept.CalcType == payroll.CalcTypeFormula {
		if d.Formula == nil {
			return payroll.Concept{}, fmt.Errorf("%w: formula concept %s has no formula", ErrIncompleteData, concept.ID)
		}
		f, err := formula.Build(payroll.FormulaSpec{Type: d.Formula.Type, Params: d.Formula.Params})
		if err != nil {
			return payroll.Concept{}, fmt.Errorf("concept %s: %w", concept.ID, err)
		}
		concept.Formula = f
	}
	return concept, nil
}
