package submit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSubmitPostsForm(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded; charset=UTF-8" {
			t.Errorf("unexpected content type %q", ct)
		}
		if got := r.Header.Get("X-CSRFToken"); got != "tok" {
			t.Errorf("missing csrf header, got %q", got)
		}
		if ck, err := r.Cookie("sessionid"); err != nil || ck.Value != "sess" {
			t.Errorf("missing session cookie")
		}
		if got := r.PostFormValue("answer"); got != "a & b" {
			t.Errorf("unexpected answer %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"wrong","guess":"a & b","timeout_length":5000.0,"timeout_end":"2021-05-04 22:08:18.000000+00:00"}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL + "/puzzle/p1/")
	c.SetCSRFToken("tok")
	c.SetSessionCookie("sess")
	resp, err := c.Submit(context.Background(), "a & b")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != StatusWrong || resp.Guess != "a & b" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Cooldown().Milliseconds() != 5000 {
		t.Fatalf("unexpected cooldown %v", resp.Cooldown())
	}
}

func TestSubmitErrors(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		body      string
		tooFast   bool
		answered  bool
		wantError string
	}{
		{"too fast", http.StatusTooManyRequests, `{"error":"too fast"}`, true, false, "api error (status 429): too fast"},
		{"already answered", http.StatusBadRequest, `{"error":"already answered"}`, false, true, "api error (status 400): already answered"},
		{"error in ok body", http.StatusOK, `{"error":"fail"}`, false, false, "api error (status 200): fail"},
		{"html error page", http.StatusInternalServerError, `<h1>oops</h1>`, false, false, "http error: <h1>oops</h1> (status 500)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer ts.Close()

			_, err := NewClient(ts.URL).Submit(context.Background(), "x")
			if err == nil {
				t.Fatalf("expected error")
			}
			if IsTooFast(err) != tc.tooFast || IsAlreadyAnswered(err) != tc.answered {
				t.Fatalf("misclassified %v", err)
			}
			if err.Error() != tc.wantError {
				t.Fatalf("got %q want %q", err.Error(), tc.wantError)
			}
		})
	}
}
