package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseContentType(t *testing.T) {
	tests := map[string]ContentType{
		"NEWS":     ContentTypeNews,
		"launch":   ContentTypeLaunch,
		"How-to":   ContentTypeHowTo,
		"how to":   ContentTypeHowTo,
		"HOW_TO":   ContentTypeHowTo,
		"specs":    ContentTypeSpecification,
		"rumour":   ContentTypeRumor,
		" review ": ContentTypeReview,
		"opinion":  "",
		"":         "",
	}

	for in, want := range tests {
		assert.Equal(t, want, ParseContentType(in), in)
	}
}

func TestParseSourceKind(t *testing.T) {
	assert.Equal(t, SourceKindYouTube, ParseSourceKind("youtube"))
	assert.Equal(t, SourceKindBlog, ParseSourceKind("Blog"))
	assert.Equal(t, SourceKindSpec, ParseSourceKind("spec"))
	assert.Equal(t, SourceKindNews, ParseSourceKind("whatever"))
}

func TestParseTopicStatus(t *testing.T) {
	st, ok := ParseTopicStatus("approved")
	require.True(t, ok)
	assert.Equal(t, TopicStatusApproved, st)

	_, ok = ParseTopicStatus("archived")
	assert.False(t, ok)
}

func TestAnnotations_Merge(t *testing.T) {
	base := Annotations{
		Outline:  &Outline{Sections: []OutlineSection{{Heading: "Intro"}}},
		QAIssues: []QAIssue{{Type: "fact", Message: "check price"}},
	}

	merged := base.Merge(Annotations{
		QAIssues: []QAIssue{
			{Type: "fact", Message: "check price"},
			{Type: "style", Message: "too long"},
		},
	})

	require.NotNil(t, merged.Outline)
	assert.Equal(t, "Intro", merged.Outline.Sections[0].Heading)
	assert.Len(t, merged.QAIssues, 2)
	assert.Len(t, base.QAIssues, 1, "merge must not mutate the receiver")

	id := uint(4)
	merged = merged.Merge(Annotations{CategorySuggestion: &CategorySuggestion{Label: "Phones", SubcategoryID: &id}})
	require.NotNil(t, merged.CategorySuggestion)
	assert.Equal(t, "Phones", merged.CategorySuggestion.Label)
	assert.Len(t, merged.QAIssues, 2)
	assert.NotNil(t, merged.Outline)
}

func TestAnnotations_ValueScan(t *testing.T) {
	in := Annotations{QAIssues: []QAIssue{{Type: "seo", Message: "missing meta"}}}
	v, err := in.Value()
	require.NoError(t, err)

	var out Annotations
	require.NoError(t, out.Scan(v))
	assert.Equal(t, in, out)

	require.NoError(t, out.Scan([]byte(`{"outline":{"sections":[{"heading":"H"}]}}`)))
	assert.Nil(t, out.QAIssues, "scan resets previous contents")
	require.NotNil(t, out.Outline)

	require.NoError(t, out.Scan(nil))
	assert.Equal(t, Annotations{}, out)
}

func TestStringSlice_ValueScan(t *testing.T) {
	var nilSlice StringSlice
	v, err := nilSlice.Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)

	var s StringSlice
	require.NoError(t, s.Scan(`["a","b"]`))
	assert.Equal(t, StringSlice{"a", "b"}, s)
	assert.Error(t, s.Scan(42))
}

func TestTopic_Helpers(t *testing.T) {
	topic := Topic{Sources: []Source{
		{URL: "https://a.example", Approved: true},
		{URL: "https://b.example"},
	}}

	assert.Len(t, topic.ApprovedSources(), 1)
	assert.Contains(t, topic.SourceURLs(), "https://b.example")
}

func TestPlaceholderDraft(t *testing.T) {
	var missing *Draft
	assert.True(t, missing.IsEmpty())
	assert.True(t, (&Draft{Title: "only a title"}).IsEmpty())

	d := PlaceholderDraft("GPUs <2025>", ContentTypeLaunch)
	assert.False(t, d.IsEmpty())
	assert.Equal(t, ContentTypeLaunch, d.ContentType)
	assert.Contains(t, d.BodyHTML, "GPUs &lt;2025&gt;")
	assert.NotNil(t, d.Keywords)
}
