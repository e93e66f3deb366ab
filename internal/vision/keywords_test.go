package vision

import (
	"slices"
	"testing"
)

func TestExtractTags(t *testing.T) {
	tags := ExtractTags("The image shows a young woman with long hair sitting at a desk in the office, smiling.")

	for _, want := range []string{"young woman", "long hair", "sitting", "desk", "in the office", "smiling", "woman", "office"} {
		if !slices.Contains(tags, want) {
			t.Errorf("Expected tag %q in %v", want, tags)
		}
	}
	for _, unwanted := range []string{"the", "image", "shows", "a", "at", "man"} {
		if slices.Contains(tags, unwanted) {
			t.Errorf("Did not expect tag %q in %v", unwanted, tags)
		}
	}
	if !slices.IsSorted(tags) {
		t.Errorf("Expected sorted tags, got %v", tags)
	}
}

func TestExtractTagsDeduplicates(t *testing.T) {
	tags := ExtractTags("Dog. dog DOG dog!")
	if !slices.Equal(tags, []string{"dog"}) {
		t.Errorf("Expected [dog], got %v", tags)
	}
}

func TestExtractTagsEmpty(t *testing.T) {
	if tags := ExtractTags(""); len(tags) != 0 {
		t.Errorf("Expected no tags, got %v", tags)
	}
}
