package jsonextract

import "testing"

func TestObjectFromFencedJSONBlock(t *testing.T) {
	text := "Here is the plan:\n```json\n{\"a\": 1, \"b\": [1,2]}\n```\nThanks."
	got, ok := Object(text)
	if !ok {
		t.Fatal("expected ok=true")
	}
	want := `{"a": 1, "b": [1,2]}`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestObjectFromFencedPlainBlock(t *testing.T) {
	text := "```\n{\"x\": \"y\"}\n```"
	got, ok := Object(text)
	if !ok || got != `{"x": "y"}` {
		t.Fatalf("got %q, ok=%v", got, ok)
	}
}

func TestObjectFallsBackToBraceScan(t *testing.T) {
	text := `Sure, the result is {"score": 80, "passed": true} and that's final.`
	got, ok := Object(text)
	if !ok {
		t.Fatal("expected ok=true")
	}
	want := `{"score": 80, "passed": true}`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestObjectHandlesNestedBraces(t *testing.T) {
	text := `{"outer": {"inner": {"deep": 1}}, "sibling": 2}`
	got, ok := Object(text)
	if !ok || got != text {
		t.Fatalf("got %q, ok=%v", got, ok)
	}
}

func TestObjectIgnoresBracesInsideStrings(t *testing.T) {
	text := `{"message": "a { weird } string"}`
	got, ok := Object(text)
	if !ok || got != text {
		t.Fatalf("got %q, ok=%v", got, ok)
	}
}

func TestObjectSkipsInvalidCandidateBeforeValidOne(t *testing.T) {
	text := `broken {not json} then {"valid": true}`
	got, ok := Object(text)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if got != `{"valid": true}` {
		t.Fatalf("got %q", got)
	}
}

func TestObjectNoJSONReturnsFalse(t *testing.T) {
	if _, ok := Object("just plain text, no braces at all"); ok {
		t.Fatal("expected ok=false")
	}
}

func TestUnmarshalDecodesIntoStruct(t *testing.T) {
	type result struct {
		Score int  `json:"score"`
		Ok    bool `json:"passed"`
	}
	var r result
	ok := Unmarshal("some preamble\n```json\n{\"score\": 42, \"passed\": true}\n```", &r)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if r.Score != 42 || !r.Ok {
		t.Fatalf("got %+v", r)
	}
}
