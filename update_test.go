package debloat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestUpdateCatalogFetchesAndCaches(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"com.a.one": {"list": "google", "removal": "Recommended"}}`))
	}))
	defer server.Close()

	catalog, err := UpdateCatalog(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if catalog.Len() != 1 {
		t.Fatalf("expected 1 package, got %d", catalog.Len())
	}

	cached, _, err := LoadCachedCatalog()
	if err != nil {
		t.Fatalf("load cached failed: %v", err)
	}
	if cached.Len() != 1 {
		t.Fatalf("cache mismatch: %d packages", cached.Len())
	}
}

func TestUpdateCatalogBadDocumentLeavesCacheAlone(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"com.a.one": {"list": "google", "removal": "Recommended"}}`))
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not a catalog`))
	}))
	defer bad.Close()

	if _, err := UpdateCatalog(context.Background(), good.URL); err != nil {
		t.Fatalf("initial update failed: %v", err)
	}
	if _, err := UpdateCatalog(context.Background(), bad.URL); err == nil {
		t.Fatal("expected error for malformed document")
	}

	cached, _, err := LoadCachedCatalog()
	if err != nil {
		t.Fatalf("cache should survive a bad update: %v", err)
	}
	if cached.Len() != 1 {
		t.Fatalf("cache corrupted: %d packages", cached.Len())
	}
}

func TestFetchListRejectsNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()
	if _, err := FetchList(context.Background(), server.URL); err == nil {
		t.Fatal("expected error for 404")
	}
}
