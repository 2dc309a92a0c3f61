package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"hirejudge/pkg/testutil"
)

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestCreateAndGetSubmission(t *testing.T) {
	var gotBody createBody
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Auth-Token") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/submissions":
			if r.URL.Query().Get("base64_encoded") != "true" || r.URL.Query().Get("wait") != "false" {
				t.Errorf("unexpected query %q", r.URL.RawQuery)
			}
			if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
				t.Errorf("decode body: %v", err)
			}
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"token":"tok-1"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/submissions/tok-1":
			// Judge0 wraps base64 output at 60 columns.
			stdout := b64("3\n")
			_, _ = w.Write([]byte(`{"status":{"id":3,"description":"Accepted"},"stdout":"` + stdout + `\n","stderr":null,"compile_output":null,"time":"0.012","memory":2048}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	c, err := New(Config{BaseURL: server.URL + "/", AuthToken: "secret", Timeout: time.Second})
	testutil.AssertNoError(t, err)

	token, err := c.CreateSubmission(context.Background(), SubmitRequest{SourceCode: "print(3)", LanguageID: 71, Stdin: "1 2"})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, token, "tok-1")
	testutil.AssertEqual(t, gotBody.LanguageID, 71)
	testutil.AssertEqual(t, gotBody.SourceCode, b64("print(3)"))
	testutil.AssertEqual(t, gotBody.Stdin, b64("1 2"))

	res, err := c.GetSubmission(context.Background(), token)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, res.Status.ID, StatusAccepted)
	testutil.AssertEqual(t, res.Stdout, "3\n")
	testutil.AssertEqual(t, res.Stderr, "")
	testutil.AssertEqual(t, res.TimeMs, 12.0)
	testutil.AssertEqual(t, res.MemoryKB, 2048.0)
	testutil.AssertTrue(t, !res.Pending(), "accepted result is not pending")
}

func TestClientSurfacesHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("queue is full"))
	}))
	defer server.Close()

	c, err := New(Config{BaseURL: server.URL})
	testutil.AssertNoError(t, err)
	_, err = c.CreateSubmission(context.Background(), SubmitRequest{SourceCode: "x", LanguageID: 63})
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("err = %v, want HTTPError", err)
	}
	testutil.AssertEqual(t, httpErr.StatusCode, http.StatusServiceUnavailable)
	testutil.AssertTrue(t, strings.Contains(httpErr.Error(), "queue is full"), "body should be included")
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty base url")
	}
}

func TestFlexFloat(t *testing.T) {
	var v struct {
		A flexFloat `json:"a"`
		B flexFloat `json:"b"`
		C flexFloat `json:"c"`
	}
	testutil.MustUnmarshalJSON(t, []byte(`{"a":"0.5","b":12,"c":null}`), &v)
	testutil.AssertEqual(t, float64(v.A), 0.5)
	testutil.AssertEqual(t, float64(v.B), 12.0)
	testutil.AssertEqual(t, float64(v.C), 0.0)
}

func TestDecodeFieldReplacesInvalidUTF8(t *testing.T) {
	raw := base64.StdEncoding.EncodeToString([]byte("out\xff\xfe"))
	testutil.AssertEqual(t, decodeField(&raw), "out�")

	plain := "not base64 \xff"
	testutil.AssertEqual(t, decodeField(&plain), "not base64 �")
	testutil.AssertEqual(t, decodeField(nil), "")
}
