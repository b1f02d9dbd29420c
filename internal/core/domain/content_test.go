package domain

import "testing"

func TestContentID_Stable(t *testing.T) {
	a := ContentID("https://www.abc.net.au/education/some-lesson")
	b := ContentID("https://www.abc.net.au/education/some-lesson")
	if a != b {
		t.Errorf("expected identical IDs for identical URLs, got %s and %s", a, b)
	}
}

func TestContentID_Canonicalises(t *testing.T) {
	a := ContentID("https://www.abc.net.au/education/some-lesson")
	b := ContentID("  HTTPS://www.abc.net.au/education/Some-Lesson/ ")
	if a != b {
		t.Errorf("expected canonicalised URLs to share an ID, got %s and %s", a, b)
	}
}

func TestContentID_DistinctURLs(t *testing.T) {
	a := ContentID("https://www.abc.net.au/education/lesson-one")
	b := ContentID("https://www.abc.net.au/education/lesson-two")
	if a == b {
		t.Error("expected distinct IDs for distinct URLs")
	}
}

func TestContentType_IsValid(t *testing.T) {
	for _, ct := range ValidContentTypes {
		if !ct.IsValid() {
			t.Errorf("expected %s to be valid", ct)
		}
	}
	if ContentType("podcast").IsValid() {
		t.Error("expected unknown content type to be invalid")
	}
}

func TestContentItem_MatchesGrade(t *testing.T) {
	item := &ContentItem{GradeLevel: []int{4, 5, 6}}
	if !item.MatchesGrade(5) {
		t.Error("expected grade 5 to match")
	}
	if item.MatchesGrade(9) {
		t.Error("expected grade 9 not to match")
	}
}

func TestContentItem_HasEmbedding(t *testing.T) {
	item := &ContentItem{}
	if item.HasEmbedding() {
		t.Error("expected no embedding")
	}
	item.Embedding = []float32{0.1, 0.2}
	if !item.HasEmbedding() {
		t.Error("expected embedding present")
	}
}
