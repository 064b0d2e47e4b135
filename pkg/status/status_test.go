package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizdesk/pkg/model"
)

func TestLookup(t *testing.T) {
	l, ok := Lookup(Approval, "APPROVED")
	require.True(t, ok)
	assert.Equal(t, "Approved", l.Label)
	assert.Equal(t, "success", l.Color)

	l, ok = Lookup(Invoice, "SHREDDED")
	assert.False(t, ok)
	assert.Equal(t, Label{Label: "SHREDDED", Color: FallbackColor}, l)

	_, ok = Lookup("payroll", "PAID")
	assert.False(t, ok)
}

func TestModelEnumsHaveLabels(t *testing.T) {
	for _, s := range []model.InstanceStatus{
		model.InstanceDraft, model.InstancePending, model.InstanceApproved,
		model.InstanceRejected, model.InstanceWithdrawn, model.InstanceTerminated,
	} {
		_, ok := Lookup(Approval, string(s))
		assert.True(t, ok, s)
	}
	for _, s := range []model.NodeStatus{
		model.NodeSubmitted, model.NodeCompleted, model.NodeRejected,
		model.NodeCurrent, model.NodePending, model.NodeWithdrawn,
	} {
		_, ok := Lookup(Timeline, string(s))
		assert.True(t, ok, s)
	}
	for _, s := range []model.Stage{
		model.StageDiscovery, model.StageQualified, model.StageProposal,
		model.StageNegotiation, model.StageWon, model.StageLost,
	} {
		_, ok := Lookup(Opportunity, string(s))
		assert.True(t, ok, s)
	}
}

func TestDomainsSorted(t *testing.T) {
	d := Domains()
	assert.Len(t, d, 10)
	assert.IsIncreasing(t, d)
	assert.Contains(t, d, Leave)
}

func TestTableIsCopy(t *testing.T) {
	tbl, ok := Table(Lead)
	require.True(t, ok)
	tbl["NEW"] = Label{Label: "changed"}

	l, _ := Lookup(Lead, "NEW")
	assert.Equal(t, "New", l.Label)

	_, ok = Table("nope")
	assert.False(t, ok)
	assert.Len(t, All(), len(Domains()))
}
