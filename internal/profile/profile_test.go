package profile

import (
	"testing"

	"github.com/arkologystudio/lumen/pkg/models"
)

func TestResolveApplicabilityActionManifests(t *testing.T) {
	for _, name := range []string{"mcp", "agent_json", "ai_agent_json"} {
		blog := ResolveApplicability(name, models.ProfileBlogContent)
		if blog.Status != models.ApplicabilityNotApplicable {
			t.Errorf("%s on blog_content: status = %s", name, blog.Status)
		}
		if blog.IncludedInCategoryMath {
			t.Errorf("%s on blog_content: not_applicable must not be counted", name)
		}

		for _, p := range []string{models.ProfileEcommerce, models.ProfileSaaS} {
			r := ResolveApplicability(name, p)
			if r.Status != models.ApplicabilityRequired || !r.IncludedInCategoryMath {
				t.Errorf("%s on %s: got %+v, want required and counted", name, p, r)
			}
		}
	}
}

func TestResolveApplicabilityDefaultsToOptionalCounted(t *testing.T) {
	r := ResolveApplicability("seo_basic", models.ProfileUnknown)
	if r.Status != models.ApplicabilityOptional || !r.IncludedInCategoryMath {
		t.Errorf("default rule: got %+v, want optional and counted", r)
	}
}

func TestResolveApplicabilityLLMSTxtAlwaysRequired(t *testing.T) {
	for _, p := range []string{models.ProfileEcommerce, models.ProfileBlogContent, models.ProfileSaaS, models.ProfileUnknown} {
		r := ResolveApplicability("llms_txt", p)
		if r.Status != models.ApplicabilityRequired {
			t.Errorf("llms_txt on %s: status = %s, want required", p, r.Status)
		}
	}
}

func TestDetectProfileDeclaredShortCircuits(t *testing.T) {
	got := DetectProfile(nil, nil, models.ProfileEcommerce)
	if got.Profile != models.ProfileEcommerce {
		t.Errorf("profile = %s", got.Profile)
	}
	if got.Confidence != 1.0 || got.Method != models.ProfileMethodDeclared {
		t.Errorf("declared profile should carry full confidence, got %+v", got)
	}
}

func TestDetectProfileFromJSONLDEvidence(t *testing.T) {
	indicators := []models.ScannerResult{
		{
			IndicatorName: "json_ld",
			Evidence:      map[string]interface{}{"types": []string{"Product", "Offer", "Organization"}},
		},
	}
	pages := []string{"https://shop.example/product/widget"}

	got := DetectProfile(indicators, pages, "")
	if got.Profile != models.ProfileEcommerce {
		t.Errorf("profile = %s, want ecommerce", got.Profile)
	}
	if got.Method != models.ProfileMethodHeuristic {
		t.Errorf("method = %s, want heuristic", got.Method)
	}
	// Product + Offer + /product path: three votes hits full confidence.
	if got.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0", got.Confidence)
	}
	if len(got.Signals) == 0 {
		t.Errorf("expected corroborating signals to be recorded")
	}
}

func TestDetectProfileUnknownWithoutSignals(t *testing.T) {
	got := DetectProfile(nil, []string{"https://example.com", "https://example.com/contact"}, "")
	if got.Profile != models.ProfileUnknown {
		t.Errorf("profile = %s, want unknown", got.Profile)
	}
	if got.Confidence != 0 {
		t.Errorf("confidence = %v, want 0", got.Confidence)
	}
}
