package auth

import (
	"context"
	"strings"

	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"

	"github.com/bher20/ebillmanager/internal/storage"
)

// Adapter implements the Casbin persist.Adapter interface using storage.Storage.
type Adapter struct {
	storage storage.Storage
}

// NewAdapter returns a new Casbin adapter.
func NewAdapter(s storage.Storage) *Adapter {
	return &Adapter{storage: s}
}

func ruleFields(r storage.CasbinRule) []string {
	fields := []string{r.V0, r.V1, r.V2, r.V3, r.V4, r.V5}
	for len(fields) > 0 && fields[len(fields)-1] == "" {
		fields = fields[:len(fields)-1]
	}
	return fields
}

func newRule(ptype string, rule []string) storage.CasbinRule {
	r := storage.CasbinRule{PType: ptype}
	dst := []*string{&r.V0, &r.V1, &r.V2, &r.V3, &r.V4, &r.V5}
	for i, v := range rule {
		if i == len(dst) {
			break
		}
		*dst[i] = v
	}
	return r
}

// LoadPolicy loads all policy rules from the storage.
func (a *Adapter) LoadPolicy(m model.Model) error {
	rules, err := a.storage.LoadCasbinRules(context.Background())
	if err != nil {
		return err
	}
	for _, rule := range rules {
		line := strings.Join(append([]string{rule.PType}, ruleFields(rule)...), ", ")
		persist.LoadPolicyLine(line, m)
	}
	return nil
}

// SavePolicy replaces the stored rules with the rules in m.
func (a *Adapter) SavePolicy(m model.Model) error {
	ctx := context.Background()
	existing, err := a.storage.LoadCasbinRules(ctx)
	if err != nil {
		return err
	}
	for _, r := range existing {
		r.ID = 0
		if err := a.storage.RemoveCasbinRule(ctx, r); err != nil {
			return err
		}
	}
	for _, sec := range []string{"p", "g"} {
		for ptype, ast := range m[sec] {
			for _, rule := range ast.Policy {
				if err := a.storage.AddCasbinRule(ctx, newRule(ptype, rule)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// AddPolicy adds a policy rule to the storage.
func (a *Adapter) AddPolicy(sec string, ptype string, rule []string) error {
	return a.storage.AddCasbinRule(context.Background(), newRule(ptype, rule))
}

// RemovePolicy removes a policy rule from the storage.
func (a *Adapter) RemovePolicy(sec string, ptype string, rule []string) error {
	return a.storage.RemoveCasbinRule(context.Background(), newRule(ptype, rule))
}

// RemoveFilteredPolicy removes the rules of ptype whose fields from
// fieldIndex on match fieldValues. Empty values match anything.
func (a *Adapter) RemoveFilteredPolicy(sec string, ptype string, fieldIndex int, fieldValues ...string) error {
	ctx := context.Background()
	rules, err := a.storage.LoadCasbinRules(ctx)
	if err != nil {
		return err
	}
	for _, r := range rules {
		if r.PType != ptype || !matchesFilter(r, fieldIndex, fieldValues) {
			continue
		}
		r.ID = 0
		if err := a.storage.RemoveCasbinRule(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func matchesFilter(r storage.CasbinRule, fieldIndex int, values []string) bool {
	all := []string{r.V0, r.V1, r.V2, r.V3, r.V4, r.V5}
	for i, v := range values {
		idx := fieldIndex + i
		if idx >= len(all) {
			return false
		}
		if v != "" && all[idx] != v {
			return false
		}
	}
	return true
}
