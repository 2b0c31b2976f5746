package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestServer(t *testing.T, cfg config) (*httptest.Server, *fakeAdmin) {
	t.Helper()
	admin := newFakeAdmin(cfg, zerolog.Nop())
	srv := httptest.NewServer(admin.routes())
	t.Cleanup(srv.Close)
	return srv, admin
}

func put(t *testing.T, url, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPut, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("X-Shopify-Access-Token", "shpat_test1234")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(raw)
}

func TestFakeAdmin_StoresPriceWithTwoDecimals(t *testing.T) {
	srv, admin := newTestServer(t, config{})

	code, body := put(t, srv.URL+"/admin/api/2024-01/variants/123.json", `{"variant":{"id":123,"price":"4.5"}}`)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", code, body)
	}

	var out struct {
		Variant struct {
			ID    json.Number `json:"id"`
			Price string      `json:"price"`
		} `json:"variant"`
	}
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		t.Fatalf("invalid response %q: %v", body, err)
	}
	if out.Variant.ID.String() != "123" || out.Variant.Price != "4.50" {
		t.Fatalf("unexpected variant %+v", out.Variant)
	}
	if admin.prices["123"] != "4.50" {
		t.Fatalf("expected stored price 4.50, got %q", admin.prices["123"])
	}
}

func TestFakeAdmin_RejectsNonNumericPrice(t *testing.T) {
	srv, admin := newTestServer(t, config{})

	code, body := put(t, srv.URL+"/admin/api/2024-01/variants/123.json", `{"variant":{"id":123,"price":"abc"}}`)
	if code != http.StatusUnprocessableEntity || !strings.Contains(body, "must be a number") {
		t.Fatalf("expected 422, got %d %s", code, body)
	}
	if len(admin.prices) != 0 {
		t.Fatalf("expected nothing stored, got %v", admin.prices)
	}

	code, _ = put(t, srv.URL+"/admin/api/2024-01/variants/123.json", `not json`)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid json, got %d", code)
	}
}

func TestFakeAdmin_UnknownPathIs404(t *testing.T) {
	srv, _ := newTestServer(t, config{})

	for _, path := range []string{"/admin/api/2024-01/variants/123", "/admin/api/2024-01/variants/abc.json", "/admin/api/2024-01/variants/.json"} {
		code, _ := put(t, srv.URL+path, `{"variant":{"price":"1.00"}}`)
		if code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, code)
		}
	}
}

func TestFakeAdmin_ForcedStatus(t *testing.T) {
	srv, admin := newTestServer(t, config{forcedStatus: http.StatusTooManyRequests})

	code, body := put(t, srv.URL+"/admin/api/2024-01/variants/1.json", `{"variant":{"id":1,"price":"2.17"}}`)
	if code != http.StatusTooManyRequests || !strings.Contains(body, "FAKE_STATUS") {
		t.Fatalf("expected forced 429, got %d %s", code, body)
	}
	if len(admin.prices) != 0 {
		t.Fatalf("expected nothing stored, got %v", admin.prices)
	}
}

func TestFakeAdmin_Delay(t *testing.T) {
	srv, _ := newTestServer(t, config{delay: 50 * time.Millisecond})

	start := time.Now()
	code, _ := put(t, srv.URL+"/admin/api/2024-01/variants/1.json", `{"variant":{"id":1,"price":"2.17"}}`)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("expected delayed response, took %s", elapsed)
	}
}

func TestFakeAdmin_ListPrices(t *testing.T) {
	srv, _ := newTestServer(t, config{})
	put(t, srv.URL+"/admin/api/2024-01/variants/7.json", `{"variant":{"id":7,"price":"1.005"}}`)

	resp, err := http.Get(srv.URL + "/variants")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var prices map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&prices); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if prices["7"] != "1.01" {
		t.Fatalf("expected 1.01, got %v", prices)
	}
}

func TestReadConfig(t *testing.T) {
	env := func(m map[string]string) func(string) string {
		return func(k string) string { return m[k] }
	}

	cfg, err := readConfig(env(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.listenAddr != ":8081" || cfg.delay != 0 || cfg.forcedStatus != 0 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}

	cfg, err = readConfig(env(map[string]string{"FAKE_DELAY": "250ms", "FAKE_STATUS": "503", "LISTEN_ADDR": ":9999"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.delay != 250*time.Millisecond || cfg.forcedStatus != 503 || cfg.listenAddr != ":9999" {
		t.Fatalf("unexpected config %+v", cfg)
	}

	for _, bad := range []map[string]string{
		{"FAKE_STATUS": "abc"},
		{"FAKE_STATUS": "42"},
		{"FAKE_STATUS": "\"500\""},
		{"FAKE_DELAY": "soon"},
		{"FAKE_DELAY": "-1s"},
	} {
		if _, err := readConfig(env(bad)); err == nil {
			t.Fatalf("expected error for %v", bad)
		}
	}
}

func TestMask(t *testing.T) {
	if got := mask("shpat_test1234"); got != "****1234" {
		t.Fatalf("unexpected mask %q", got)
	}
	if got := mask("abc"); got != "****" {
		t.Fatalf("short token must be fully masked, got %q", got)
	}
}
