package connectors

import "testing"

func TestExtractRecordsUnwrapsFHIRBundleEntries(t *testing.T) {
	envelope := map[string]interface{}{
		"entry": []interface{}{
			map[string]interface{}{"resource": map[string]interface{}{"resourceType": "Patient", "id": "1"}},
			map[string]interface{}{"resource": map[string]interface{}{"resourceType": "Patient", "id": "2"}},
		},
	}
	records := extractRecords(envelope, "entry")
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0]["id"] != "1" {
		t.Fatalf("unexpected first record: %+v", records[0])
	}
}

func TestExtractRecordsDefaultsToDataField(t *testing.T) {
	envelope := map[string]interface{}{
		"data": []interface{}{
			map[string]interface{}{"name": "Alice"},
		},
	}
	records := extractRecords(envelope, "")
	if len(records) != 1 || records[0]["name"] != "Alice" {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestExtractNextLinkFollowsFHIRBundleLinkRelation(t *testing.T) {
	envelope := map[string]interface{}{
		"link": []interface{}{
			map[string]interface{}{"relation": "self", "url": "https://example.com/Patient?page=1"},
			map[string]interface{}{"relation": "next", "url": "https://example.com/Patient?page=2"},
		},
	}
	next := extractNextLink(envelope)
	if next != "https://example.com/Patient?page=2" {
		t.Fatalf("expected next link, got %q", next)
	}
}

func TestExtractNextLinkEndsSequenceWhenAbsent(t *testing.T) {
	if next := extractNextLink(map[string]interface{}{}); next != "" {
		t.Fatalf("expected empty next link, got %q", next)
	}
}
