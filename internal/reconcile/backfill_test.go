package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/job-agent/internal/classify"
	"github.com/jonathan/job-agent/internal/types"
)

func TestIsJobLinkedEntry(t *testing.T) {
	tests := []struct {
		name  string
		entry types.TimelineEntry
		want  bool
	}{
		{"linked action", types.TimelineEntry{Kind: types.EntryAction, Content: classify.PhraseJobLinked}, true},
		{"imported action", types.TimelineEntry{Kind: types.EntryAction, Content: classify.PhraseJobImported}, true},
		{"message with phrase", types.TimelineEntry{Kind: types.EntryMessage, Content: classify.PhraseJobLinked}, false},
		{"other action", types.TimelineEntry{Kind: types.EntryAction, Content: classify.PhraseResumeCreated}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsJobLinkedEntry(tt.entry))
		})
	}
}

func TestSelectDocument(t *testing.T) {
	docs := []types.Document{
		{ID: "cl", Type: "cover-letter"},
		{ID: "cv", Type: "CV"},
	}

	d, ok := SelectDocument(docs, classify.PhraseResumeCreated)
	require.True(t, ok)
	assert.Equal(t, "cv", d.ID)

	d, ok = SelectDocument(docs, classify.PhraseCoverLetterCreated)
	require.True(t, ok)
	assert.Equal(t, "cl", d.ID)

	d, ok = SelectDocument(docs, "Dokumente hochgeladen")
	require.True(t, ok)
	assert.Equal(t, "cl", d.ID)

	_, ok = SelectDocument(nil, classify.PhraseResumeCreated)
	assert.False(t, ok)
}

func TestJobMetadata_SkipsEmptyFields(t *testing.T) {
	md := JobMetadata(&types.JobSnapshot{Title: "SRE", URL: "https://jobs.example/7"})

	assert.Equal(t, map[string]any{MetaJobTitle: "SRE", MetaJobURL: "https://jobs.example/7"}, md)
	assert.Empty(t, JobMetadata(nil))
}

func TestMergeJob(t *testing.T) {
	record := &types.ApplicationRecord{Job: &types.JobSnapshot{Title: "Old", Company: "ACME"}}

	MergeJob(record, &types.JobSnapshot{Title: "New", Location: "Berlin"})

	assert.Equal(t, &types.JobSnapshot{Title: "New", Company: "ACME", Location: "Berlin"}, record.Job)

	empty := &types.ApplicationRecord{}
	MergeJob(empty, &types.JobSnapshot{Origin: "stepstone"})
	assert.Equal(t, "stepstone", empty.Job.Origin)

	assert.NotPanics(t, func() { MergeJob(nil, &types.JobSnapshot{}) })
}

func TestMergeDocuments(t *testing.T) {
	record := &types.ApplicationRecord{Documents: []types.Document{{ID: "a", Type: "resume"}}}

	MergeDocuments(record, []types.Document{
		{ID: "a", Type: "resume", URL: "https://files/a.pdf"},
		{ID: "b", Type: "cover_letter"},
	})

	require.Len(t, record.Documents, 2)
	assert.Equal(t, "https://files/a.pdf", record.Documents[0].URL)
	assert.Equal(t, "b", record.Documents[1].ID)
}
