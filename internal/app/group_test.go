package app

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/MDM/internal/domain"
	"github.com/John-Robertt/MDM/internal/site"
)

func TestGroupTargets_MergeSameURL(t *testing.T) {
	targets := []domain.Target{
		{URL: "https://movie.douban.com/subject/3541415/?from=x", Source: "a.txt:1"},
		{URL: "https://en.rarbg-official.com/movies/inception/", Source: "a.txt:2"},
		{URL: "http://movie.douban.com/subject/3541415", MovieID: "cm1", Source: "b.txt:1"},
	}

	items, rejected := GroupTargets(targets, site.Router{})
	require.Empty(t, rejected)
	require.Equal(t, []domain.WorkItem{
		{URL: "https://en.rarbg-official.com/movies/inception", Kind: "rarbg", Sources: []string{"a.txt:2"}},
		{URL: "https://movie.douban.com/subject/3541415/", Kind: "douban", MovieID: "cm1", Sources: []string{"a.txt:1", "b.txt:1"}},
	}, items)
}

func TestGroupTargets_Rejects(t *testing.T) {
	targets := []domain.Target{
		{URL: "ftp://x/y", Source: "a.txt:1"},
		{URL: "https://example.com/movies/1", Source: "a.txt:2"},
		{URL: "https://ealon-movie.vercel.app/movie/1", Source: "a.txt:3"},
	}

	items, rejected := GroupTargets(targets, site.Router{Origins: []string{"https://ealon-movie.vercel.app"}})
	require.Empty(t, items)
	require.Len(t, rejected, 3)
	require.Equal(t, domain.RejectInvalidURL, rejected[0].Kind)
	require.Equal(t, domain.RejectUnsupported, rejected[1].Kind)
	require.Equal(t, domain.RejectUnsupported, rejected[2].Kind)
}
