package pipeline

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/harrison/collabgen/internal/models"
)

func TestBuildArtifact(t *testing.T) {
	created := time.Date(2026, 3, 1, 14, 5, 9, 0, time.UTC)
	req := testRequest()

	tests := []struct {
		name     string
		stages   []models.StageStatus
		sections []string
	}{
		{
			name:   "header only when nothing completed",
			stages: models.NewPipelineResult("id", created).Stages,
		},
		{
			name: "completed sections in order",
			stages: []models.StageStatus{
				models.Completed(models.StageResearch, "R"),
				models.Completed(models.StageProduct, "P"),
				models.Failed(models.StageMarketing, "stage timed out"),
			},
			sections: []string{"# Part 1: Research Analysis\n\nR", "# Part 2: Product Strategy\n\nP"},
		},
		{
			name: "all three",
			stages: []models.StageStatus{
				models.Completed(models.StageResearch, "R"),
				models.Completed(models.StageProduct, "P"),
				models.Completed(models.StageMarketing, "M"),
			},
			sections: []string{
				"# Part 1: Research Analysis\n\nR",
				"# Part 2: Product Strategy\n\nP",
				"# Part 3: Marketing Strategy\n\nM",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := &models.PipelineResult{ID: "run-1", Stages: tt.stages, CreatedAt: created}

			got := BuildArtifact(result, req)

			header := "# Collaboration Report: Acme & Globex\n\n" +
				"**Domain**: Robotics  \n" +
				"**Report ID**: run-1  \n" +
				"**Generated**: 2026-03-01 14:05:09 UTC\n\n" +
				"---\n\n"
			assert.True(t, strings.HasPrefix(got, header), got)
			assert.Equal(t, strings.Join(tt.sections, sectionSeparator), strings.TrimPrefix(got, header))
		})
	}
}
