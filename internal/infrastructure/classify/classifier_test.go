package classify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dmkorolev/imageflow/internal/core/domain"
)

func TestClassifyDefaultRules(t *testing.T) {
	classifier, err := New(DefaultRules())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name     string
		filename string
		wantKey  string
		wantView domain.Subtype
	}{
		{
			name:     "key and view",
			filename: "SKU123-front.jpg",
			wantKey:  "SKU123",
			wantView: domain.SubtypeFront,
		},
		{
			name:     "lowercase key canonicalized",
			filename: "sku123_back.cr2",
			wantKey:  "SKU123",
			wantView: domain.SubtypeBack,
		},
		{
			name:     "view synonym",
			filename: "AB-4501 closeup.png",
			wantKey:  "AB-4501",
			wantView: domain.SubtypeDetail,
		},
		{
			name:     "key without view",
			filename: "XY99.nef",
			wantKey:  "XY99",
			wantView: domain.SubtypeUnassigned,
		},
		{
			name:     "unknown view token",
			filename: "SKU123-sideways.jpg",
			wantKey:  "SKU123",
			wantView: domain.SubtypeUnassigned,
		},
		{
			name:     "unparseable name",
			filename: "IMG_20260829_113000.jpg",
			wantKey:  "",
			wantView: domain.SubtypeUnassigned,
		},
		{
			name:     "path stripped before matching",
			filename: "/uploads/batch7/SKU123-left.tif",
			wantKey:  "SKU123",
			wantView: domain.SubtypeLeft,
		},
		{
			name:     "empty name",
			filename: "",
			wantKey:  "",
			wantView: domain.SubtypeUnassigned,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifier.Classify(tt.filename)
			if got.GroupKey != tt.wantKey {
				t.Errorf("group key = %q, want %q", got.GroupKey, tt.wantKey)
			}
			if got.Subtype != tt.wantView {
				t.Errorf("subtype = %q, want %q", got.Subtype, tt.wantView)
			}
		})
	}
}

func TestNewRejectsPatternWithoutKeyGroup(t *testing.T) {
	_, err := New(Rules{KeyPatterns: []string{`^(?P<view>[a-z]+)$`}})
	if err == nil {
		t.Fatal("expected error for pattern without key group")
	}
}

func TestNewRejectsInvalidPattern(t *testing.T) {
	_, err := New(Rules{KeyPatterns: []string{`^(?P<key>[`}})
	if err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestLoadRulesPartialOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := []byte("views:\n  vorne: front\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write rules file: %v", err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rules.Views["vorne"] != "front" {
		t.Errorf("views not overridden: %v", rules.Views)
	}
	if len(rules.KeyPatterns) == 0 {
		t.Error("expected default key patterns to survive a partial file")
	}

	classifier, err := New(rules)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := classifier.Classify("SKU77-vorne.jpg")
	if got.Subtype != domain.SubtypeFront {
		t.Errorf("subtype = %q, want front", got.Subtype)
	}
}

func TestLoadRulesMissingFile(t *testing.T) {
	_, err := LoadRules("/nonexistent/rules.yaml")
	if err == nil {
		t.Fatal("expected error for missing rules file")
	}
}
