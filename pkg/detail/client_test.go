package detail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientTransactions(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/transactions" {
			t.Errorf("path = %q; want /api/transactions", r.URL.Path)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("missing X-Request-ID header")
		}
		gotQuery = map[string]string{
			"month": r.URL.Query().Get("month"),
			"mode":  r.URL.Query().Get("mode"),
			"code":  r.URL.Query().Get("code"),
			"limit": r.URL.Query().Get("limit"),
		}
		json.NewEncoder(w).Encode(TransactionPage{
			Total: 1,
			Shown: 1,
			Transactions: []Transaction{
				{Price: 425000, Date: "2024-01-12", Postcode: "SW1A 1AA", PropertyType: "F"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/api", nil)
	page, err := c.Transactions(context.Background(), TransactionQuery{
		Month: "2024-01", Mode: QueryModeDistrict, Code: "SW1", Limit: 100,
	})
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}

	want := map[string]string{"month": "2024-01", "mode": "district", "code": "SW1", "limit": "100"}
	for k, v := range want {
		if gotQuery[k] != v {
			t.Errorf("query %s = %q; want %q", k, gotQuery[k], v)
		}
	}
	if page.Total != 1 || len(page.Transactions) != 1 || page.Transactions[0].Price != 425000 {
		t.Errorf("page = %+v; want one 425000 transaction", page)
	}
}

func TestClientListings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("kind"); got != "rent" {
			t.Errorf("kind = %q; want rent", got)
		}
		json.NewEncoder(w).Encode(ListingPage{Total: 3})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	page, err := c.Listings(context.Background(), ListingQuery{Mode: QueryModeDistrict, Code: "SW1", Kind: "rent"})
	if err != nil {
		t.Fatalf("Listings: %v", err)
	}
	if page.Total != 3 {
		t.Errorf("Total = %d; want 3", page.Total)
	}
}

func TestClientBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no store configured", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	if _, err := c.Transactions(context.Background(), TransactionQuery{Month: "2024-01", Mode: "district", Code: "SW1"}); err == nil {
		t.Fatal("want error on 503 response")
	}
}

func TestClientMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	if _, err := c.Listings(context.Background(), ListingQuery{Mode: "district", Code: "SW1"}); err == nil {
		t.Fatal("want decode error")
	}
}
