package incident

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	catalog, err := Default()
	require.NoError(t, err)

	t.Run("Unique IDs", func(t *testing.T) {
		seen := make(map[string]bool)
		for _, d := range catalog.All() {
			assert.False(t, seen[d.ID], "duplicate id %s", d.ID)
			seen[d.ID] = true
		}
		assert.Len(t, seen, catalog.Len())
	})

	t.Run("Every Category Covered", func(t *testing.T) {
		for _, category := range Categories() {
			assert.NotEmpty(t, catalog.ByCategory(category), "no incidents for %s", category)
		}
	})

	t.Run("Every Incident Has Immediate Actions", func(t *testing.T) {
		for _, d := range catalog.All() {
			assert.NotEmpty(t, d.ImmediateActions, d.ID)
			assert.NotEmpty(t, d.OfficialPortal.URL, d.ID)
			assert.NotEmpty(t, d.SecondaryExploitationWarning, d.ID)
		}
	})

	t.Run("Fields Preserved", func(t *testing.T) {
		d, err := catalog.FindByID("loan-app-harassment")
		require.NoError(t, err)

		assert.Equal(t, CategoryFinancialFraud, d.Category)
		assert.Len(t, d.ImmediateActions, 3)
		assert.True(t, d.ImmediateActions[0].IsEmergency)
		assert.Equal(t, ActionTypeImmediate, d.ImmediateActions[0].Type)
		require.Len(t, d.AdditionalPortals, 1)
		assert.Equal(t, "https://sachet.rbi.org.in", d.AdditionalPortals[0].URL)
		require.Len(t, d.SectorOptions, 1)
		assert.Equal(t, "Report to RBI Sachet", d.SectorOptions[0].LinkText)
		assert.Len(t, d.EscalationLadder, 3)
		assert.Len(t, d.PreparedChecklist, 4)
	})
}

func TestCatalogFindByID(t *testing.T) {
	catalog, err := Default()
	require.NoError(t, err)

	t.Run("Known ID", func(t *testing.T) {
		d, err := catalog.FindByID("upi-card-fraud")
		require.NoError(t, err)
		assert.Equal(t, "UPI / Debit / Credit Card Fraud", d.Title)
	})

	t.Run("Unknown ID", func(t *testing.T) {
		d, err := catalog.FindByID("does-not-exist")
		assert.Nil(t, d)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("Category Of", func(t *testing.T) {
		category, err := catalog.CategoryOf("product-refund-dispute")
		require.NoError(t, err)
		assert.Equal(t, CategoryConsumerDispute, category)
	})
}

func TestCatalogSearch(t *testing.T) {
	catalog, err := Default()
	require.NoError(t, err)

	t.Run("Empty Query Returns Full Catalog In Order", func(t *testing.T) {
		assert.Equal(t, catalog.All(), catalog.Search(""))
	})

	t.Run("Case Insensitive Title Match", func(t *testing.T) {
		results := catalog.Search("sim SWAP")
		require.Len(t, results, 1)
		assert.Equal(t, "wallet-sim-swap", results[0].ID)
	})

	t.Run("Category Match Keeps Catalog Order", func(t *testing.T) {
		results := catalog.Search("consumer dispute")
		ids := make([]string, 0, len(results))
		for _, d := range results {
			ids = append(ids, d.ID)
		}
		assert.Equal(t, []string{"product-refund-dispute", "ecommerce-mis-selling", "travel-builder-service"}, ids)
	})

	t.Run("Summary Match", func(t *testing.T) {
		results := catalog.Search("extortion")
		require.NotEmpty(t, results)
		assert.Equal(t, "loan-app-harassment", results[0].ID)
	})

	t.Run("No Match", func(t *testing.T) {
		assert.Empty(t, catalog.Search("zzz-no-such-incident"))
	})
}

func TestSortedEscalation(t *testing.T) {
	catalog, err := Default()
	require.NoError(t, err)

	t.Run("Sorted By Level", func(t *testing.T) {
		d, err := catalog.FindByID("aadhaar-identity-misuse")
		require.NoError(t, err)

		steps := d.SortedEscalation()
		require.Len(t, steps, 3)
		for i := 1; i < len(steps); i++ {
			assert.LessOrEqual(t, steps[i-1].Level, steps[i].Level)
		}
		assert.Equal(t, 3, d.EscalationLadder[1].Level, "catalog order must not be mutated")
	})

	t.Run("Empty Ladder", func(t *testing.T) {
		d, err := catalog.FindByID("hacked-account")
		require.NoError(t, err)
		assert.Empty(t, d.EscalationLadder)

		steps := d.SortedEscalation()
		assert.NotNil(t, steps)
		assert.Empty(t, steps)
	})

	t.Run("Stable For Equal Levels", func(t *testing.T) {
		d := &Definition{EscalationLadder: []EscalationStep{
			{Level: 2, Authority: "B"},
			{Level: 1, Authority: "A"},
			{Level: 2, Authority: "C"},
		}}
		steps := d.SortedEscalation()
		assert.Equal(t, []string{"A", "B", "C"}, []string{steps[0].Authority, steps[1].Authority, steps[2].Authority})
	})
}

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{
			name:    "empty catalog",
			raw:     "version: x\nincidents: []\n",
			wantErr: "incidents is empty",
		},
		{
			name: "duplicate id",
			raw: `incidents:
  - {id: a, category: Cybercrime, immediate_actions: [{id: "1", title: t}]}
  - {id: a, category: Cybercrime, immediate_actions: [{id: "1", title: t}]}
`,
			wantErr: "duplicate incident id: a",
		},
		{
			name: "unknown category",
			raw: `incidents:
  - {id: a, category: Gardening, immediate_actions: [{id: "1", title: t}]}
`,
			wantErr: "unknown category",
		},
		{
			name: "no immediate actions",
			raw: `incidents:
  - {id: a, category: Cybercrime}
`,
			wantErr: "no immediate actions for a",
		},
		{
			name: "non-positive escalation level",
			raw: `incidents:
  - id: a
    category: Cybercrime
    immediate_actions: [{id: "1", title: t}]
    escalation_ladder: [{level: 0, authority: x}]
`,
			wantErr: "escalation level must be positive",
		},
		{
			name:    "malformed yaml",
			raw:     "incidents: [",
			wantErr: "parse incident catalog",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDefinitionHelpers(t *testing.T) {
	catalog, err := Default()
	require.NoError(t, err)

	d, err := catalog.FindByID("upi-card-fraud")
	require.NoError(t, err)

	assert.True(t, d.HasChecklistItem("Transaction ID / UTR Number"))
	assert.False(t, d.HasChecklistItem("Warranty Card"))
	assert.Len(t, d.EmergencyActions(), 1)
	assert.True(t, CategoryConsumerDispute.IsCivil())
	assert.False(t, CategoryFinancialFraud.IsCivil())
	assert.False(t, Category("Gardening").Valid())
}
