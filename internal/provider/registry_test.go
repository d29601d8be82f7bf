package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_AddGet(t *testing.T) {
	r := NewRegistry()
	r.Add(&Provider{Name: "balldontlie"})

	p, ok := r.Get("balldontlie")
	require.True(t, ok)
	assert.Equal(t, "balldontlie", p.Name)

	_, ok = r.Get("nope")
	assert.False(t, ok)
}

func TestRegistry_AddReplaces(t *testing.T) {
	r := NewRegistry()
	r.Add(&Provider{Name: "prov", Priority: 1})
	r.Add(&Provider{Name: "prov", Priority: 9})

	p, _ := r.Get("prov")
	assert.Equal(t, 9, p.Priority)
	assert.Len(t, r.Names(), 1)
}

func TestRegistry_NamesSorted(t *testing.T) {
	r := NewRegistry()
	r.Add(&Provider{Name: "odds-api"})
	r.Add(&Provider{Name: "balldontlie"})
	r.Add(&Provider{Name: "api-sports"})

	assert.Equal(t, []string{"api-sports", "balldontlie", "odds-api"}, r.Names())
}

func TestRegistry_CandidatesOrdering(t *testing.T) {
	r := NewRegistry()
	r.Add(&Provider{Name: "bbb", Priority: 2, Sports: []string{"nba"}, DataTypes: []DataType{DataTypeGames}})
	r.Add(&Provider{Name: "aaa", Priority: 2, Sports: []string{"nba"}, DataTypes: []DataType{DataTypeGames}})
	r.Add(&Provider{Name: "zzz", Priority: 1, Sports: []string{"nba"}, DataTypes: []DataType{DataTypeGames}})
	r.Add(&Provider{Name: "odds-only", Priority: 0, Sports: []string{"nba"}, DataTypes: []DataType{DataTypeOdds}})

	candidates := r.Candidates("nba", DataTypeGames)
	require.Len(t, candidates, 3)
	assert.Equal(t, "zzz", candidates[0].Name, "lowest priority value first")
	assert.Equal(t, "aaa", candidates[1].Name, "ties broken by name")
	assert.Equal(t, "bbb", candidates[2].Name)
}

func TestRegistry_CandidatesFiltersBySport(t *testing.T) {
	r := NewRegistry()
	r.Add(&Provider{Name: "nba-only", Sports: []string{"nba"}})
	r.Add(&Provider{Name: "all-sports"})

	candidates := r.Candidates("mlb", DataTypeScores)
	require.Len(t, candidates, 1)
	assert.Equal(t, "all-sports", candidates[0].Name)
}
