package testutil

import (
	"net/http"
	"testing"
)

func TestServeRecordsHandlerResponse(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(r.URL.Query().Get("name")))
	})

	rec := Serve(h, http.MethodPost, "/things?name=probe")
	AssertStatusCode(t, rec.Code, http.StatusCreated)
	if rec.Body.String() != "probe" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "probe")
	}

	rec = Serve(h, http.MethodGet, "/things")
	AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}
