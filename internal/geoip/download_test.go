package geoip

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(dir, name string, data []byte) error {
	return os.WriteFile(filepath.Join(dir, name), data, 0o644)
}

func buildArchive(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, data := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(data)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestDownload_ExtractsDatabase(t *testing.T) {
	archive := buildArchive(t, map[string][]byte{
		"GeoLite2-City_20240101/LICENSE.txt":        []byte("license"),
		"GeoLite2-City_20240101/GeoLite2-City.mmdb": []byte("mmdb-bytes"),
	})

	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"edition_id":  r.URL.Query().Get("edition_id"),
			"license_key": r.URL.Query().Get("license_key"),
			"suffix":      r.URL.Query().Get("suffix"),
		}
		_, _ = w.Write(archive)
	}))
	defer srv.Close()

	dir := t.TempDir()
	d := NewDownloader(dir, "secret", srv.URL)

	path, err := d.Download(context.Background(), CityEdition)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "GeoLite2-City.mmdb"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "mmdb-bytes", string(data))

	assert.Equal(t, CityEdition, gotQuery["edition_id"])
	assert.Equal(t, "secret", gotQuery["license_key"])
	assert.Equal(t, "tar.gz", gotQuery["suffix"])
}

func TestDownload_NoDatabaseInArchive(t *testing.T) {
	archive := buildArchive(t, map[string][]byte{"README": []byte("x")})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	}))
	defer srv.Close()

	d := NewDownloader(t.TempDir(), "secret", srv.URL)
	_, err := d.Download(context.Background(), ASNEdition)
	assert.ErrorIs(t, err, ErrDatabaseAbsent)
}

func TestDownload_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	dir := t.TempDir()
	d := NewDownloader(dir, "bad", srv.URL)
	_, err := d.Download(context.Background(), CityEdition)
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(dir, "GeoLite2-City.mmdb"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestDownload_RequiresLicenseKey(t *testing.T) {
	d := NewDownloader(t.TempDir(), "", "http://127.0.0.1:1")
	_, err := d.Download(context.Background(), CityEdition)
	assert.ErrorIs(t, err, ErrNoLicenseKey)
	assert.ErrorIs(t, d.Update(context.Background(), nil), ErrNoLicenseKey)
}
