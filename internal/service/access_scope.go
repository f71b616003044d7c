package service

import (
	"sort"
	"strings"

	"github.com/noah-isme/civil-registry-api/internal/models"
	"github.com/noah-isme/civil-registry-api/internal/repository"
)

// RecordQuery is the list/search/filter request for one record type.
type RecordQuery struct {
	Search   string
	Filters  map[string]string
	DateFrom string
	DateTo   string
	Page     int
	PerPage  int
}

// AccessScope decides which records an actor may see and change.
type AccessScope struct{}

// NewAccessScope constructs an AccessScope.
func NewAccessScope() *AccessScope {
	return &AccessScope{}
}

// ScopeFilter returns the visibility filter for actor over desc's collection.
// A nil filter means unrestricted.
func (a *AccessScope) ScopeFilter(actor models.Actor, desc *RecordDescriptor) repository.Filter {
	own := repository.Eq{Field: models.FieldRegisteredBy, Value: actor.ID}
	switch actor.Role {
	case models.RoleAdmin, models.RoleStatistician:
		return nil
	case models.RoleVMSOfficer:
		if actor.Region == "" {
			return own
		}
		jurisdiction := repository.And{repository.Eq{Field: desc.Jurisdiction.Region, Value: actor.Region}}
		if desc.ScopeByWoreda && actor.Woreda != "" {
			jurisdiction = append(jurisdiction, repository.Eq{Field: desc.Jurisdiction.Woreda, Value: actor.Woreda})
		}
		return repository.Or{own, repository.AllOf(jurisdiction...)}
	case models.RoleClerk:
		if actor.Region == "" {
			return own
		}
		return repository.Or{own, repository.Eq{Field: desc.Jurisdiction.Region, Value: actor.Region}}
	}
	return repository.MatchNone{}
}

// CanAccess reports whether actor may read record.
func (a *AccessScope) CanAccess(actor models.Actor, desc *RecordDescriptor, record models.Document) bool {
	if record.String(models.FieldRegisteredBy) == actor.ID && actor.ID != "" {
		return true
	}
	return repository.Match(record, a.ScopeFilter(actor, desc))
}

// CanModify reports whether actor may update or transition record.
func (a *AccessScope) CanModify(actor models.Actor, desc *RecordDescriptor, record models.Document) bool {
	if !a.CanAccess(actor, desc, record) {
		return false
	}
	if actor.HasRole(models.RoleAdmin, models.RoleVMSOfficer) {
		return true
	}
	return actor.ID != "" && record.String(models.FieldRegisteredBy) == actor.ID
}

// CanDelete reports whether actor may delete records. Only admins may, for every type.
func (a *AccessScope) CanDelete(actor models.Actor) bool {
	return actor.HasRole(models.RoleAdmin)
}

// QueryFilter composes scope, free-text search, exact filters and the date range.
// Categories combine with AND; search terms match any search field.
func (a *AccessScope) QueryFilter(actor models.Actor, desc *RecordDescriptor, query RecordQuery) repository.Filter {
	conditions := []repository.Filter{a.ScopeFilter(actor, desc)}

	if search := strings.TrimSpace(query.Search); search != "" {
		terms := make(repository.Or, 0, len(desc.SearchFields))
		for _, field := range desc.SearchFields {
			terms = append(terms, repository.Contains{Field: field, Substring: search})
		}
		conditions = append(conditions, terms)
	}

	for _, param := range sortedKeys(desc.ExactFilters) {
		value := strings.TrimSpace(query.Filters[param])
		if value == "" {
			continue
		}
		conditions = append(conditions, repository.Eq{Field: desc.ExactFilters[param], Value: value})
	}

	if query.DateFrom != "" || query.DateTo != "" {
		rng := repository.Range{Field: desc.PrimaryDate}
		if query.DateFrom != "" {
			rng.Gte = query.DateFrom
		}
		if query.DateTo != "" {
			rng.Lte = query.DateTo
		}
		conditions = append(conditions, rng)
	}
	return repository.AllOf(conditions...)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
