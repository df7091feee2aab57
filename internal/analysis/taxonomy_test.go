package analysis

import "testing"

func TestMapCategory_KnownFineGrainedLabel(t *testing.T) {
	if got := MapCategory("Coding"); got != CategoryWork {
		t.Fatalf("expected work, got %s", got)
	}
}

func TestMapCategory_UnknownLabelFallsBackToOther(t *testing.T) {
	if got := MapCategory("something-never-seen"); got != CategoryOther {
		t.Fatalf("expected other, got %s", got)
	}
}

func TestMapCategory_AlreadyCoarseLabelRoundTrips(t *testing.T) {
	if got := MapCategory("idle"); got != CategoryIdle {
		t.Fatalf("expected idle, got %s", got)
	}
}

func TestValidCategory(t *testing.T) {
	if !ValidCategory(CategoryWork) {
		t.Fatal("work should be valid")
	}
	if ValidCategory(Category("bogus")) {
		t.Fatal("bogus should not be valid")
	}
}
