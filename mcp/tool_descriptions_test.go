package mcp

import (
	"strings"
	"testing"

	"pkt.systems/mediad"
)

func TestBuildToolDescriptionsCoverage(t *testing.T) {
	t.Parallel()

	descriptions := buildToolDescriptions(mediad.Capabilities{Video: true, Image: true, Audio: true})
	if len(descriptions) != len(mcpToolNames) {
		t.Fatalf("descriptions = %d, tool names = %d", len(descriptions), len(mcpToolNames))
	}
	for _, name := range mcpToolNames {
		description, ok := descriptions[name]
		if !ok {
			t.Fatalf("missing description for %s", name)
		}
		for _, marker := range []string{"Purpose:", "Use when:", "Requires:", "Effects:", "Retry:", "Next:"} {
			if !strings.Contains(description, marker) {
				t.Fatalf("description for %s missing %q", name, marker)
			}
		}
	}
}

func TestToolDescriptionsCarryWorkflowWarnings(t *testing.T) {
	t.Parallel()

	descriptions := buildToolDescriptions(mediad.Capabilities{Video: true, Image: true})
	for _, name := range []string{toolVideoCreate, toolVideoRemix, toolImageCreate} {
		if !strings.Contains(descriptions[name], "ASYNC:") {
			t.Fatalf("%s should warn that creation is asynchronous", name)
		}
	}
	if !strings.Contains(descriptions[toolJobStatus], "TERMINAL:") {
		t.Fatalf("job status should state that terminal states are final")
	}
	if !strings.Contains(descriptions[toolMediaGetData], "CHUNKED:") {
		t.Fatalf("get_data should explain the chunk protocol")
	}
	for _, name := range []string{toolJobDownload, toolMediaView, toolMediaGetData, toolMediaPrepareReference} {
		if !strings.Contains(descriptions[name], "FILENAMES:") {
			t.Fatalf("%s should state the flat filename rule", name)
		}
	}
}

func TestFormatToolDescriptionSkipsBlankTopLines(t *testing.T) {
	t.Parallel()

	got := formatToolDescription(toolContract{
		Top:      []string{"", "  ", "WARNING: top"},
		Purpose:  "p",
		UseWhen:  "u",
		Requires: "r",
		Effects:  "e",
		Retry:    "t",
		Next:     "n",
	})
	lines := strings.Split(got, "\n")
	if len(lines) != 7 {
		t.Fatalf("lines = %d: %q", len(lines), got)
	}
	if lines[0] != "WARNING: top" {
		t.Fatalf("first line = %q", lines[0])
	}
}
