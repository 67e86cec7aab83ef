package nfo

import (
	"encoding/xml"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/MDM/internal/domain"
)

type movieOut struct {
	Title         string   `xml:"title"`
	OriginalTitle string   `xml:"originaltitle"`
	SortTitle     string   `xml:"sorttitle"`
	Premiered     string   `xml:"premiered"`
	Year          int      `xml:"year"`
	Poster        string   `xml:"poster"`
	Thumb         string   `xml:"thumb"`
	Website       string   `xml:"website"`
	Cover         string   `xml:"cover"`
	Tags          []string `xml:"tag"`
	Ratings       []struct {
		Name  string  `xml:"name,attr"`
		Value float64 `xml:"value"`
	} `xml:"ratings>rating"`
	UniqueID struct {
		Type  string `xml:"type,attr"`
		Value string `xml:",chardata"`
	} `xml:"uniqueid"`
}

func record() domain.ExtractedRecord {
	return domain.ExtractedRecord{
		Title:      "Inception",
		URL:        "https://en.rarbg-official.com/movies/inception",
		CoverImage: &domain.CoverImage{Src: domain.StrPtr("https://img.example/inception.jpg")},
		Links: []domain.LinkInfo{
			{Quality: "2160p"}, {Quality: " 1080p "}, {Quality: "2160p"}, {Quality: ""},
		},
	}
}

func TestEncode_RecordOnly(t *testing.T) {
	rec := record()
	rec.Year = domain.IntPtr(2010)

	b, err := Encode(rec, nil, true)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(b), `<?xml version="1.0" encoding="UTF-8" standalone="yes" ?>`))

	var got movieOut
	require.NoError(t, xml.Unmarshal(b, &got))
	require.Equal(t, "Inception", got.Title)
	require.Empty(t, got.OriginalTitle)
	require.Equal(t, 2010, got.Year)
	require.Equal(t, PosterName, got.Poster)
	require.Equal(t, "https://img.example/inception.jpg", got.Cover)
	require.Equal(t, []string{"2160p", "1080p"}, got.Tags)
	require.Empty(t, got.Ratings)
}

func TestEncode_WithDouban(t *testing.T) {
	info := &domain.DoubanInfo{Title: "盗梦空间", DatePublished: "2010-09-01", Rating: 9.4, URL: "https://movie.douban.com/subject/3541415/"}

	b, err := Encode(record(), info, false)
	require.NoError(t, err)

	var got movieOut
	require.NoError(t, xml.Unmarshal(b, &got))
	require.Equal(t, "盗梦空间", got.Title)
	require.Equal(t, "Inception", got.OriginalTitle)
	require.Equal(t, 2010, got.Year)
	require.Equal(t, "2010-09-01", got.Premiered)
	require.Empty(t, got.Poster)
	require.Len(t, got.Ratings, 1)
	require.Equal(t, 9.4, got.Ratings[0].Value)
	require.Equal(t, "douban", got.UniqueID.Type)
	require.Equal(t, "3541415", got.UniqueID.Value)
}
