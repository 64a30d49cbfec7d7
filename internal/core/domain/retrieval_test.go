package domain

import (
	"encoding/json"
	"testing"
)

func TestRetrieveRequestCategoryFilterKeys(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"category_filter", `{"query":"q","category_filter":"token"}`, "token"},
		{"legacy category", `{"query":"q","category":"nft"}`, "nft"},
		{"both keys", `{"query":"q","category":"nft","category_filter":"token"}`, "token"},
		{"neither", `{"query":"q"}`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var req RetrieveRequest
			if err := json.Unmarshal([]byte(tc.body), &req); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if req.Query != "q" || req.CategoryFilter != tc.want {
				t.Fatalf("got %+v, want category filter %q", req, tc.want)
			}
		})
	}
}

func TestRetrieveRequestKeepsOtherFields(t *testing.T) {
	var req RetrieveRequest
	body := `{"query":"q","mode":"fast","final_k":4,"fusion":"weighted","overrides":{"use_hypothetical_document":true}}`
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.Mode != ModeFast || req.FinalK != 4 || req.Fusion != FusionWeighted {
		t.Fatalf("unexpected request %+v", req)
	}
	if req.Overrides == nil || req.Overrides.UseHypotheticalDocument == nil || !*req.Overrides.UseHypotheticalDocument {
		t.Fatalf("expected overrides decoded, got %+v", req.Overrides)
	}

	out, err := json.Marshal(RetrieveRequest{Query: "q", CategoryFilter: "token"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"query":"q","category_filter":"token"}` {
		t.Fatalf("unexpected encoding %s", out)
	}
	if err := json.Unmarshal([]byte(`{"query":`), &req); err == nil {
		t.Fatalf("expected error for truncated json")
	}
}
