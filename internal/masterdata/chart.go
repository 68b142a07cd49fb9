package masterdata

import (
	"context"
	"sort"

	"github.com/ledgerline/ledgerline/internal/shared"
)

// ChartGroupTemplate is a country-level account group blueprint.
type ChartGroupTemplate struct {
	ID              int64
	CountryID       int64
	CodePrefixStart string
	CodePrefixEnd   string
	Name            string
	ParentPrefix    string
}

// ChartAccountTemplate is a country-level account blueprint.
type ChartAccountTemplate struct {
	ID          int64
	CountryID   int64
	Code        string
	Name        string
	Type        AccountType
	GroupPrefix string
}

// ChartApplyStats reports what ApplyChartTemplate changed.
type ChartApplyStats struct {
	GroupsCreated   int `json:"groups_created"`
	GroupsUpdated   int `json:"groups_updated"`
	AccountsCreated int `json:"accounts_created"`
	AccountsUpdated int `json:"accounts_updated"`
}

// ChartStore is the persistence surface ApplyChartTemplate needs.
type ChartStore interface {
	ListChartGroupTemplates(ctx context.Context, countryID int64) ([]ChartGroupTemplate, error)
	ListChartAccountTemplates(ctx context.Context, countryID int64) ([]ChartAccountTemplate, error)
	// UpsertAccountGroup matches by (company, code_prefix_start) and reports
	// whether a new row was created.
	UpsertAccountGroup(ctx context.Context, group AccountGroup) (AccountGroup, bool, error)
	// UpsertAccount matches by (company, code) and reports whether a new row
	// was created. Existing accounts keep their type.
	UpsertAccount(ctx context.Context, account Account) (Account, bool, error)
}

// ApplyChartTemplate bulk-installs the country's account groups and accounts
// into a company. Re-running is idempotent: existing rows are updated by their
// natural keys. Parent groups are resolved over repeated passes; prefixes that
// never resolve (missing parents or a parent cycle) abort the whole operation.
func ApplyChartTemplate(ctx context.Context, store ChartStore, companyID, countryID int64) (ChartApplyStats, error) {
	var stats ChartApplyStats
	if companyID <= 0 {
		return stats, shared.Validationf("company_id", "company ID is required")
	}
	if countryID <= 0 {
		return stats, shared.Validationf("country_id", "country ID is required")
	}

	groupTemplates, err := store.ListChartGroupTemplates(ctx, countryID)
	if err != nil {
		return stats, err
	}
	accountTemplates, err := store.ListChartAccountTemplates(ctx, countryID)
	if err != nil {
		return stats, err
	}
	if len(groupTemplates) == 0 && len(accountTemplates) == 0 {
		return stats, shared.Validationf("country_id", "no chart template for country %d", countryID)
	}

	// Upsert groups in passes: a group can only be written once its parent
	// prefix has been written, so each pass materializes the next tree level.
	// A pass that makes no progress means an unresolvable parent or a cycle.
	groupIDByPrefix := make(map[string]int64, len(groupTemplates))
	pending := make([]ChartGroupTemplate, len(groupTemplates))
	copy(pending, groupTemplates)
	for len(pending) > 0 {
		var next []ChartGroupTemplate
		for _, tmpl := range pending {
			var parentID *int64
			if tmpl.ParentPrefix != "" {
				id, ok := groupIDByPrefix[tmpl.ParentPrefix]
				if !ok {
					next = append(next, tmpl)
					continue
				}
				parentID = &id
			}
			group, created, err := store.UpsertAccountGroup(ctx, AccountGroup{
				CompanyID:       companyID,
				CodePrefixStart: tmpl.CodePrefixStart,
				CodePrefixEnd:   tmpl.CodePrefixEnd,
				Name:            tmpl.Name,
				ParentID:        parentID,
			})
			if err != nil {
				return stats, err
			}
			groupIDByPrefix[tmpl.CodePrefixStart] = group.ID
			if created {
				stats.GroupsCreated++
			} else {
				stats.GroupsUpdated++
			}
		}
		if len(next) == len(pending) {
			prefixes := make([]string, 0, len(next))
			for _, tmpl := range next {
				prefixes = append(prefixes, tmpl.CodePrefixStart)
			}
			sort.Strings(prefixes)
			return ChartApplyStats{}, shared.Validationf("groups", "unresolvable parent chain (missing parent or cycle) for prefixes %v", prefixes)
		}
		pending = next
	}

	for _, tmpl := range accountTemplates {
		var groupID *int64
		if tmpl.GroupPrefix != "" {
			id, ok := groupIDByPrefix[tmpl.GroupPrefix]
			if !ok {
				return ChartApplyStats{}, shared.Validationf("accounts", "account %s references unknown group prefix %s", tmpl.Code, tmpl.GroupPrefix)
			}
			groupID = &id
		}
		_, created, err := store.UpsertAccount(ctx, Account{
			CompanyID: companyID,
			Code:      tmpl.Code,
			Name:      tmpl.Name,
			Type:      tmpl.Type,
			GroupID:   groupID,
		})
		if err != nil {
			return stats, err
		}
		if created {
			stats.AccountsCreated++
		} else {
			stats.AccountsUpdated++
		}
	}

	return stats, nil
}
