package domain

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestAnswerWireForms(t *testing.T) {
	var m AnswerMap
	payload := []byte(`{"q1":"4","q2":["2","4"]}`)
	if err := json.Unmarshal(payload, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["q1"].Multi() || m["q1"].Value != "4" {
		t.Fatalf("scalar answer decoded wrong: %+v", m["q1"])
	}
	if !m["q2"].Multi() || !reflect.DeepEqual(m["q2"].Values, []string{"2", "4"}) {
		t.Fatalf("multi answer decoded wrong: %+v", m["q2"])
	}

	out, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back AnswerMap
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("re-unmarshal: %v", err)
	}
	if !reflect.DeepEqual(m, back) {
		t.Fatalf("round trip changed answers: %+v vs %+v", m, back)
	}

	if err := json.Unmarshal([]byte(`{"q1":42}`), &m); err == nil {
		t.Fatalf("expected rejection of non-string answer")
	}
}

func TestAnswerMapCloneDoesNotAlias(t *testing.T) {
	orig := AnswerMap{"q1": MultiAnswer("a", "b")}
	clone := orig.Clone()
	clone["q1"].Values[0] = "mutated"
	if orig["q1"].Values[0] != "a" {
		t.Fatalf("clone aliases original slice")
	}
}
