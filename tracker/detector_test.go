package tracker

import (
	"testing"
)

func TestMatchPattern(t *testing.T) {
	cases := []struct {
		name    string
		pattern string
		value   string
		want    bool
	}{
		{name: "substring", pattern: "tak", value: "https://vindstod.dk/tak-for-din-ordre", want: true},
		{name: "substring_case_insensitive", pattern: "TAK", value: "https://vindstod.dk/tak", want: true},
		{name: "substring_miss", pattern: "velkommen", value: "https://vindstod.dk/tak", want: false},
		{name: "wildcard", pattern: "*/thank-you*", value: "https://example.com/thank-you?id=1", want: true},
		{name: "wildcard_miss", pattern: "*/thank-you", value: "https://example.com/checkout", want: false},
		{name: "wildcard_escapes_meta", pattern: "/order.*done", value: "/orderXdone", want: false},
		{name: "empty_pattern", pattern: "", value: "anything", want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := matchPattern(tc.pattern, tc.value); got != tc.want {
				t.Fatalf("matchPattern(%q, %q) want %v got %v", tc.pattern, tc.value, tc.want, got)
			}
		})
	}
}

func TestCheckPageOrderFirstWins(t *testing.T) {
	d := newDetector(DetectorConfig{
		URLPatterns:      []string{"/tak"},
		TitlePatterns:    []string{"tak for"},
		ContentSelectors: []string{".confirmation"},
		ConversionType:   "signup",
	})

	page := Page{
		URL:       "https://vindstod.dk/tak",
		Title:     "Tak for din ordre",
		Selectors: []string{".confirmation"},
	}
	detection := d.checkPage(page)
	if detection == nil {
		t.Fatalf("expected a detection")
	}
	if detection.Method != DetectMethodURL {
		t.Fatalf("url match must win, got %s", detection.Method)
	}
	if detection.Type != "signup" || detection.Confidence != "high" {
		t.Fatalf("unexpected detection: %+v", detection)
	}

	// URL 不命中时退到标题
	page.URL = "https://vindstod.dk/step2"
	detection = d.checkPage(page)
	if detection == nil || detection.Method != DetectMethodTitle {
		t.Fatalf("title should match next, got %+v", detection)
	}

	// 标题也不命中时退到内容选择器
	page.Title = "Checkout"
	detection = d.checkPage(page)
	if detection == nil || detection.Method != DetectMethodContent {
		t.Fatalf("content selector should match next, got %+v", detection)
	}

	// 全部不命中
	page.Selectors = nil
	if detection = d.checkPage(page); detection != nil {
		t.Fatalf("no detector should fire, got %+v", detection)
	}
}

func TestPredicatesRunInOrderAndRecover(t *testing.T) {
	d := newDetector(DetectorConfig{})

	var calls []int
	d.addPredicate(func(Page) bool {
		calls = append(calls, 1)
		panic("broken predicate")
	})
	d.addPredicate(func(Page) bool {
		calls = append(calls, 2)
		return true
	})
	d.addPredicate(func(Page) bool {
		calls = append(calls, 3)
		return true
	})

	detection := d.checkPage(Page{URL: "https://vindstod.dk/"})
	if detection == nil || detection.Method != DetectMethodPredicate {
		t.Fatalf("predicate should fire despite earlier panic, got %+v", detection)
	}
	if len(calls) != 2 || calls[0] != 1 || calls[1] != 2 {
		t.Fatalf("predicates must run in order and stop at first hit, calls %v", calls)
	}
}

func TestDefaultConversionType(t *testing.T) {
	d := newDetector(DetectorConfig{URLPatterns: []string{"/tak"}})
	detection := d.checkPage(Page{URL: "https://vindstod.dk/tak"})
	if detection == nil || detection.Type != "signup" {
		t.Fatalf("default conversion type want signup, got %+v", detection)
	}
}
