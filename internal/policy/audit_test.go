package policy

import (
	"context"
	"testing"
	"time"

	"github.com/josephgoksu/quill/internal/store"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAudit(t *testing.T) *AuditStore {
	t.Helper()
	s, err := store.NewSQLiteStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return NewAuditStore(s.DB())
}

func TestAuditStore_SaveAndList(t *testing.T) {
	audit := newAudit(t)

	first := &Decision{PolicyPath: DefaultPackage, Result: ResultAllow, TaskID: "story-1",
		Input: &Input{Kind: "story", Model: "gpt-4o"}, EvaluatedAt: time.Now().Add(-time.Minute)}
	second := &Decision{PolicyPath: DefaultPackage, Result: ResultDeny, TaskID: "report-1",
		Violations: []string{"no API key for provider openai"}, Warnings: []string{"w"}}
	require.NoError(t, audit.SaveDecision(first))
	require.NoError(t, audit.SaveDecision(second))
	assert.NotEmpty(t, second.DecisionID)

	all, err := audit.ListDecisions("", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "report-1", all[0].TaskID, "newest first")
	assert.Equal(t, []string{"no API key for provider openai"}, all[0].Violations)
	assert.Equal(t, []string{"w"}, all[0].Warnings)
	require.NotNil(t, all[1].Input)
	assert.Equal(t, "gpt-4o", all[1].Input.Model)

	one, err := audit.ListDecisions("story-1", 1)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, ResultAllow, one[0].Result)

	n, err := audit.CountDenied(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, audit.DeleteForTask("report-1"))
	all, err = audit.ListDecisions("", 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestAuditStore_SaveNil(t *testing.T) {
	assert.Error(t, newAudit(t).SaveDecision(nil))
}

func TestEngine_AdmitRecordsDecision(t *testing.T) {
	audit := newAudit(t)
	e := newEngine(t, EngineConfig{Fs: afero.NewMemMapFs(), Audit: audit})

	in := validInput()
	in.HasAPIKey = false
	d, err := e.Admit(context.Background(), "story-9", in)
	require.NoError(t, err)
	assert.False(t, d.IsAllowed())

	saved, err := audit.ListDecisions("story-9", 0)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, d.DecisionID, saved[0].DecisionID)
	assert.Equal(t, ResultDeny, saved[0].Result)
}
