package session

import (
	"testing"

	"github.com/stretchr/testify/require"

	"pipedrive-agent/internal/domain"
)

func TestStore_LoadEmpty(t *testing.T) {
	s := NewStore()
	require.Nil(t, s.Load("u1"))
}

func TestStore_SaveOverwritesSingleSlot(t *testing.T) {
	s := NewStore()
	s.Save("u1", domain.AwaitingSingleNote{Deal: domain.Deal{ID: 1, Title: "A"}, StageName: "Prospect Qualified"})
	s.Save("u1", domain.AwaitingNoteForDeal{SelectedOrg: "Acme", StageName: "Prospect Qualified"})

	st := s.Load("u1")
	got, ok := st.(domain.AwaitingNoteForDeal)
	require.True(t, ok)
	require.Equal(t, "Acme", got.SelectedOrg)
	require.Equal(t, 1, s.cache.ItemCount())
}

func TestStore_UsersAreIsolated(t *testing.T) {
	s := NewStore()
	s.Save("u1", domain.AwaitingSingleNote{StageName: "Proposal Made"})
	require.Nil(t, s.Load("u2"))
}

func TestStore_SaveNilClears(t *testing.T) {
	s := NewStore()
	s.Save("u1", domain.AwaitingSingleNote{})
	s.Save("u1", nil)
	require.Nil(t, s.Load("u1"))
	require.Equal(t, 0, s.cache.ItemCount())
}

func TestStore_Clear(t *testing.T) {
	s := NewStore()
	s.Save("u1", domain.AwaitingOrgSelection{OrgList: []string{"Acme"}})
	s.Clear("u1")
	require.Nil(t, s.Load("u1"))
	s.Clear("missing")
}
