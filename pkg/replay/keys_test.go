package replay

import (
	"strings"
	"testing"
)

func TestScope_KeysAreStable(t *testing.T) {
	s := Scope{Org: "acme", Project: "frontend", ReplayID: "r-123"}

	if s.RecordKey() != s.RecordKey() {
		t.Error("RecordKey is not stable")
	}
	if s.RecordKey() != "/organizations/acme/replays/r-123/" {
		t.Errorf("RecordKey = %q", s.RecordKey())
	}
	if s.SegmentsKey() != "/projects/acme/frontend/replays/r-123/recording-segments/" {
		t.Errorf("SegmentsKey = %q", s.SegmentsKey())
	}
}

func TestScope_ErrorsKeyVariantsDiffer(t *testing.T) {
	s := Scope{Org: "acme", Project: "frontend", ReplayID: "r-123"}

	initial := s.ErrorsKey(DatasetDiscover, "initial")
	overflow := s.ErrorsKey(DatasetDiscover, "overflow")
	platform := s.ErrorsKey(DatasetIssuePlatform, "all")

	if initial == overflow {
		t.Error("Dataset variants must produce distinct keys")
	}
	if initial == platform || overflow == platform {
		t.Error("Datasets must produce distinct keys")
	}
}

func TestScope_DifferentReplaysMiss(t *testing.T) {
	a := Scope{Org: "acme", Project: "frontend", ReplayID: "r-1"}
	b := Scope{Org: "acme", Project: "frontend", ReplayID: "r-2"}

	if a.RecordKey() == b.RecordKey() {
		t.Error("Different replays must not share a record key")
	}
	if a.SegmentsKey() == b.SegmentsKey() {
		t.Error("Different replays must not share a segments key")
	}
}

func TestScope_FeedbackKeyByCount(t *testing.T) {
	s := Scope{Org: "acme", Project: "frontend", ReplayID: "r-123"}

	if s.FeedbackKey(2) != s.FeedbackKey(2) {
		t.Error("Same count must yield the same key")
	}
	if s.FeedbackKey(2) == s.FeedbackKey(3) {
		t.Error("Different counts must yield different keys")
	}
}

func TestScope_FeedbackEndpointOrderIndependent(t *testing.T) {
	s := Scope{Org: "acme", Project: "frontend", ReplayID: "r-123"}

	forward := s.FeedbackEndpoint([]string{"e-1", "e-2"})
	reversed := s.FeedbackEndpoint([]string{"e-2", "e-1"})

	if forward != reversed {
		t.Errorf("Endpoint differs by id order:\n%s\n%s", forward, reversed)
	}
}

func TestScope_PageKeysEncodeCursor(t *testing.T) {
	s := Scope{Org: "acme", Project: "frontend", ReplayID: "r-123"}

	key := s.SegmentPageKey("0:100:0", 100)
	if !strings.Contains(key, "per_page=100") {
		t.Errorf("Page key missing per_page: %q", key)
	}
	if strings.Contains(key, "0:100:0") {
		t.Errorf("Cursor should be query-escaped: %q", key)
	}

	errKey := s.ErrorPageKey(DatasetDiscover)("", 50)
	if !strings.Contains(errKey, "dataset=discover") {
		t.Errorf("Error page key missing dataset: %q", errKey)
	}
	if !strings.Contains(errKey, "per_page=50") {
		t.Errorf("Error page key missing per_page: %q", errKey)
	}
}
