package ledger

import (
	"errors"
	"testing"
)

func TestRequestValidationAssignsSequentialIDs(t *testing.T) {
	ident, _, val, _, _ := testLedgers(t)
	id := seedAgent(t, ident, "alice")

	for i := 1; i <= 3; i++ {
		vid, err := val.RequestValidation(id, "hash", "ipfs://task", "bob", t0)
		if err != nil {
			t.Fatalf("RequestValidation[%d]: %v", i, err)
		}
		if vid != uint64(i) {
			t.Errorf("vid = %d, want %d", vid, i)
		}
	}
	if got := val.ValidationIDsFor(id); len(got) != 3 {
		t.Errorf("ValidationIDsFor len = %d, want 3", len(got))
	}
}

func TestRequestValidationUnknownAgent(t *testing.T) {
	_, _, val, _, _ := testLedgers(t)

	if _, err := val.RequestValidation(9, "h", "", "bob", t0); !errors.Is(err, ErrAgentNotFound) {
		t.Errorf("err = %v, want ErrAgentNotFound", err)
	}
}

func TestSubmitValidationCompletesRequest(t *testing.T) {
	ident, _, val, _, _ := testLedgers(t)
	id := seedAgent(t, ident, "alice")
	vid, err := val.RequestValidation(id, "h", "", "bob", t0)
	if err != nil {
		t.Fatalf("RequestValidation: %v", err)
	}

	if err := val.SubmitValidation(vid, true, "ipfs://proof", "carol", t0); err != nil {
		t.Fatalf("SubmitValidation: %v", err)
	}

	req, err := val.RequestByID(vid)
	if err != nil {
		t.Fatalf("RequestByID: %v", err)
	}
	if !req.Completed {
		t.Errorf("request not marked completed")
	}
	resp, err := val.ResponseByID(vid)
	if err != nil {
		t.Fatalf("ResponseByID: %v", err)
	}
	if resp.Validator != "carol" || !resp.IsValid || resp.ProofURI != "ipfs://proof" {
		t.Errorf("response = %+v", resp)
	}
}

func TestSubmitValidationSingleResponse(t *testing.T) {
	ident, _, val, _, _ := testLedgers(t)
	id := seedAgent(t, ident, "alice")
	vid, _ := val.RequestValidation(id, "h", "", "bob", t0)

	if err := val.SubmitValidation(vid, true, "", "carol", t0); err != nil {
		t.Fatalf("SubmitValidation: %v", err)
	}
	if err := val.SubmitValidation(vid, false, "", "dave", t0); !errors.Is(err, ErrAlreadyValidated) {
		t.Errorf("err = %v, want ErrAlreadyValidated", err)
	}
	// The first response stands.
	resp, err := val.ResponseByID(vid)
	if err != nil {
		t.Fatalf("ResponseByID: %v", err)
	}
	if resp.Validator != "carol" {
		t.Errorf("Validator = %q, want carol", resp.Validator)
	}
}

func TestSubmitValidationRejectsRequester(t *testing.T) {
	ident, _, val, _, _ := testLedgers(t)
	id := seedAgent(t, ident, "alice")
	vid, _ := val.RequestValidation(id, "h", "", "bob", t0)

	if err := val.SubmitValidation(vid, true, "", "bob", t0); !errors.Is(err, ErrSelfValidation) {
		t.Errorf("err = %v, want ErrSelfValidation", err)
	}
}

func TestSubmitValidationUnknownRequest(t *testing.T) {
	_, _, val, _, _ := testLedgers(t)

	if err := val.SubmitValidation(0, true, "", "carol", t0); !errors.Is(err, ErrValidationNotFound) {
		t.Errorf("id 0: err = %v, want ErrValidationNotFound", err)
	}
	if err := val.SubmitValidation(5, true, "", "carol", t0); !errors.Is(err, ErrValidationNotFound) {
		t.Errorf("id 5: err = %v, want ErrValidationNotFound", err)
	}
}

func TestCountsAndSuccessRate(t *testing.T) {
	ident, _, val, _, _ := testLedgers(t)
	id := seedAgent(t, ident, "alice")

	// Three completed (two valid, one not) plus one still pending.
	outcomes := []bool{true, true, false}
	for _, ok := range outcomes {
		vid, err := val.RequestValidation(id, "h", "", "bob", t0)
		if err != nil {
			t.Fatalf("RequestValidation: %v", err)
		}
		if err := val.SubmitValidation(vid, ok, "", "carol", t0); err != nil {
			t.Fatalf("SubmitValidation: %v", err)
		}
	}
	if _, err := val.RequestValidation(id, "h", "", "bob", t0); err != nil {
		t.Fatalf("RequestValidation(pending): %v", err)
	}

	total, completed, successful := val.CountsFor(id)
	if total != 4 || completed != 3 || successful != 2 {
		t.Errorf("counts = (%d,%d,%d), want (4,3,2)", total, completed, successful)
	}

	// 2*100/3 truncates to 66, never rounds to 67.
	if got := val.SuccessRate(id); got != 66 {
		t.Errorf("SuccessRate = %d, want 66", got)
	}
}

func TestSuccessRateNothingCompleted(t *testing.T) {
	ident, _, val, _, _ := testLedgers(t)
	id := seedAgent(t, ident, "alice")
	if _, err := val.RequestValidation(id, "h", "", "bob", t0); err != nil {
		t.Fatalf("RequestValidation: %v", err)
	}

	if got := val.SuccessRate(id); got != 0 {
		t.Errorf("SuccessRate = %d, want 0 with no completed validations", got)
	}
}

func TestValidationRestore(t *testing.T) {
	ident, _, val, _, _ := testLedgers(t)
	id := seedAgent(t, ident, "alice")
	v1, _ := val.RequestValidation(id, "h1", "", "bob", t0)
	v2, _ := val.RequestValidation(id, "h2", "", "bob", t0)
	if err := val.SubmitValidation(v1, true, "", "carol", t0); err != nil {
		t.Fatalf("SubmitValidation: %v", err)
	}

	var requests []ValidationRequest
	for _, vid := range []uint64{v1, v2} {
		req, err := val.RequestByID(vid)
		if err != nil {
			t.Fatalf("RequestByID(%d): %v", vid, err)
		}
		requests = append(requests, req)
	}
	resp, err := val.ResponseByID(v1)
	if err != nil {
		t.Fatalf("ResponseByID: %v", err)
	}

	fresh := NewValidation(ident, NewJournal())
	fresh.Restore(requests, []ValidationResponse{resp})

	total, completed, successful := fresh.CountsFor(id)
	if total != 2 || completed != 1 || successful != 1 {
		t.Errorf("counts after restore = (%d,%d,%d), want (2,1,1)", total, completed, successful)
	}
	if err := fresh.SubmitValidation(v1, false, "", "dave", t0); !errors.Is(err, ErrAlreadyValidated) {
		t.Errorf("err = %v, want ErrAlreadyValidated after restore", err)
	}
}
