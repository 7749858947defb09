package domain

import (
	"testing"

	"github.com/stretchr/testify/require"

	m "vss2git.dev/pkg/vss2git/internal/model"
)

func TestReplayOrder_CreatesBeforeRemoves(t *testing.T) {
	revs := []m.Revision{
		{Item: "a", Action: m.Action{Kind: m.ActionDelete}, Path: "$/x/f.txt"},
		{Item: "b", Action: m.Action{Kind: m.ActionMoveTo, Other: "$/y"}, Path: "$/x"},
		{Item: "c", Action: m.Action{Kind: m.ActionEdit}, Path: "$/z.txt"},
	}

	ordered := replayOrder(revs)

	require.Equal(t, m.ActionMoveTo, ordered[0].Action.Kind)
	require.Equal(t, m.ActionEdit, ordered[1].Action.Kind)
	require.Equal(t, m.ActionDelete, ordered[2].Action.Kind)
}

func TestReplayOrder_NeverReordersOneItem(t *testing.T) {
	// An item's later revision with a lower rank must not jump ahead of its
	// earlier higher-ranked one: the rank is clamped to the item's running
	// maximum.
	revs := []m.Revision{
		{Item: "a", Version: 1, Action: m.Action{Kind: m.ActionDelete}, Path: "$/f.txt"},
		{Item: "a", Version: 2, Action: m.Action{Kind: m.ActionRecover}, Path: "$/f.txt"},
		{Item: "b", Version: 1, Action: m.Action{Kind: m.ActionAdd}, Path: "$/g.txt"},
	}

	ordered := replayOrder(revs)

	require.Equal(t, m.ActionAdd, ordered[0].Action.Kind)
	require.Equal(t, m.ActionDelete, ordered[1].Action.Kind)
	require.Equal(t, m.ActionRecover, ordered[2].Action.Kind)
}

func TestReplayOrder_StableWithinRank(t *testing.T) {
	revs := []m.Revision{
		{Item: "a", Seq: 0, Action: m.Action{Kind: m.ActionEdit}},
		{Item: "b", Seq: 1, Action: m.Action{Kind: m.ActionEdit}},
		{Item: "c", Seq: 2, Action: m.Action{Kind: m.ActionEdit}},
	}

	ordered := replayOrder(revs)

	require.Equal(t, []int{0, 1, 2}, []int{ordered[0].Seq, ordered[1].Seq, ordered[2].Seq})
}

func TestReplayOrder_LabelsLast(t *testing.T) {
	revs := []m.Revision{
		{Item: "a", Action: m.Action{Kind: m.ActionLabel, Name: "v1"}},
		{Item: "b", Action: m.Action{Kind: m.ActionAdd}, Path: "$/f.txt"},
		{Item: "c", Action: m.Action{Kind: m.ActionDestroy}, Path: "$/g.txt"},
	}

	ordered := replayOrder(revs)

	require.Equal(t, m.ActionLabel, ordered[2].Action.Kind)
}

func TestAuthorEmail(t *testing.T) {
	require.Equal(t, "john.doe@example.com", authorEmail("John Doe", "example.com"))
	require.Equal(t, "alice@localhost", authorEmail("alice", ""))
	require.Equal(t, "bob@localhost", authorEmail(" BOB ", "localhost"))
}

func TestFirstLine(t *testing.T) {
	require.Equal(t, "summary", firstLine("summary\ndetail"))
	require.Equal(t, "single", firstLine("single"))
}
