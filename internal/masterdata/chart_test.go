package masterdata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/shared"
)

type memoryChartStore struct {
	groupTemplates   []ChartGroupTemplate
	accountTemplates []ChartAccountTemplate
	groups           map[string]AccountGroup // keyed by code_prefix_start
	accounts         map[string]Account      // keyed by code
	nextID           int64
}

func newMemoryChartStore() *memoryChartStore {
	return &memoryChartStore{
		groups:   make(map[string]AccountGroup),
		accounts: make(map[string]Account),
	}
}

func (s *memoryChartStore) ListChartGroupTemplates(ctx context.Context, countryID int64) ([]ChartGroupTemplate, error) {
	return s.groupTemplates, nil
}

func (s *memoryChartStore) ListChartAccountTemplates(ctx context.Context, countryID int64) ([]ChartAccountTemplate, error) {
	return s.accountTemplates, nil
}

func (s *memoryChartStore) UpsertAccountGroup(ctx context.Context, group AccountGroup) (AccountGroup, bool, error) {
	if existing, ok := s.groups[group.CodePrefixStart]; ok {
		group.ID = existing.ID
		s.groups[group.CodePrefixStart] = group
		return group, false, nil
	}
	s.nextID++
	group.ID = s.nextID
	s.groups[group.CodePrefixStart] = group
	return group, true, nil
}

func (s *memoryChartStore) UpsertAccount(ctx context.Context, account Account) (Account, bool, error) {
	if existing, ok := s.accounts[account.Code]; ok {
		account.ID = existing.ID
		account.Type = existing.Type
		s.accounts[account.Code] = account
		return account, false, nil
	}
	s.nextID++
	account.ID = s.nextID
	s.accounts[account.Code] = account
	return account, true, nil
}

func TestApplyChartTemplateResolvesParentTree(t *testing.T) {
	store := newMemoryChartStore()
	store.groupTemplates = []ChartGroupTemplate{
		// Deliberately listed child-first to force a second pass.
		{CodePrefixStart: "101", CodePrefixEnd: "101", Name: "Bank", ParentPrefix: "10"},
		{CodePrefixStart: "10", CodePrefixEnd: "19", Name: "Current Assets", ParentPrefix: "1"},
		{CodePrefixStart: "1", CodePrefixEnd: "1", Name: "Assets"},
	}
	store.accountTemplates = []ChartAccountTemplate{
		{Code: "101000", Name: "Bank Account", Type: AccountTypeAsset, GroupPrefix: "101"},
		{Code: "400000", Name: "Revenue", Type: AccountTypeIncome},
	}

	stats, err := ApplyChartTemplate(context.Background(), store, 1, 1)
	require.NoError(t, err)
	require.Equal(t, ChartApplyStats{GroupsCreated: 3, AccountsCreated: 2}, stats)

	bank := store.groups["101"]
	require.NotNil(t, bank.ParentID)
	require.Equal(t, store.groups["10"].ID, *bank.ParentID)
	require.NotNil(t, store.accounts["101000"].GroupID)
}

func TestApplyChartTemplateIdempotent(t *testing.T) {
	store := newMemoryChartStore()
	store.groupTemplates = []ChartGroupTemplate{
		{CodePrefixStart: "1", CodePrefixEnd: "1", Name: "Assets"},
	}
	store.accountTemplates = []ChartAccountTemplate{
		{Code: "100000", Name: "Cash", Type: AccountTypeAsset, GroupPrefix: "1"},
	}

	_, err := ApplyChartTemplate(context.Background(), store, 1, 1)
	require.NoError(t, err)

	stats, err := ApplyChartTemplate(context.Background(), store, 1, 1)
	require.NoError(t, err)
	require.Equal(t, ChartApplyStats{GroupsUpdated: 1, AccountsUpdated: 1}, stats)
}

func TestApplyChartTemplateRejectsParentCycle(t *testing.T) {
	store := newMemoryChartStore()
	store.groupTemplates = []ChartGroupTemplate{
		{CodePrefixStart: "10", CodePrefixEnd: "19", Name: "A", ParentPrefix: "20"},
		{CodePrefixStart: "20", CodePrefixEnd: "29", Name: "B", ParentPrefix: "10"},
	}

	_, err := ApplyChartTemplate(context.Background(), store, 1, 1)
	require.Error(t, err)
	require.True(t, shared.IsValidation(err))
}

func TestApplyChartTemplateRejectsUnknownGroupPrefix(t *testing.T) {
	store := newMemoryChartStore()
	store.accountTemplates = []ChartAccountTemplate{
		{Code: "100000", Name: "Cash", Type: AccountTypeAsset, GroupPrefix: "99"},
	}

	_, err := ApplyChartTemplate(context.Background(), store, 1, 1)
	require.Error(t, err)
	require.True(t, shared.IsValidation(err))
}

func TestApplyChartTemplateRejectsEmptyTemplate(t *testing.T) {
	store := newMemoryChartStore()
	_, err := ApplyChartTemplate(context.Background(), store, 1, 1)
	require.Error(t, err)
	require.True(t, shared.IsValidation(err))
}
