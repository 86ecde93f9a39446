package geoip

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Wikid82/gatewatch/internal/logger"
	"github.com/Wikid82/gatewatch/internal/version"
)

const maxDatabaseSize = 512 << 20

var (
	ErrNoLicenseKey   = errors.New("maxmind license key not configured")
	ErrDatabaseAbsent = errors.New("archive does not contain a .mmdb file")
)

// Downloader fetches GeoLite2 databases from MaxMind into a directory.
type Downloader struct {
	Dir        string
	LicenseKey string
	BaseURL    string
	HTTPClient *http.Client
}

// NewDownloader creates a downloader with a bounded HTTP client.
func NewDownloader(dir, licenseKey, baseURL string) *Downloader {
	return &Downloader{
		Dir:        dir,
		LicenseKey: licenseKey,
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Download fetches edition as tar.gz and installs <edition>.mmdb in Dir.
// The file is written to a temporary name and renamed so readers never
// observe a partial database.
func (d *Downloader) Download(ctx context.Context, edition string) (string, error) {
	if d.LicenseKey == "" {
		return "", ErrNoLicenseKey
	}

	u, err := url.Parse(d.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse download url: %w", err)
	}
	q := u.Query()
	q.Set("edition_id", edition)
	q.Set("license_key", d.LicenseKey)
	q.Set("suffix", "tar.gz")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", edition, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: unexpected status %d", edition, resp.StatusCode)
	}

	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create geoip dir: %w", err)
	}

	dest := filepath.Join(d.Dir, edition+".mmdb")
	if err := extractDatabase(resp.Body, dest); err != nil {
		return "", fmt.Errorf("install %s: %w", edition, err)
	}

	logger.Log().WithField("edition", edition).WithField("path", dest).Info("geoip: database updated")
	return dest, nil
}

func extractDatabase(r io.Reader, dest string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("gzip: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return ErrDatabaseAbsent
		}
		if err != nil {
			return fmt.Errorf("tar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg || !strings.HasSuffix(hdr.Name, ".mmdb") {
			continue
		}
		return writeAtomic(io.LimitReader(tr, maxDatabaseSize), dest)
	}
}

func writeAtomic(r io.Reader, dest string) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".mmdb-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Update downloads both editions and reloads svc. A failure for one edition
// does not prevent the other from being installed.
func (d *Downloader) Update(ctx context.Context, svc *Service) error {
	if d.LicenseKey == "" {
		return ErrNoLicenseKey
	}
	var errs []error
	for _, edition := range []string{CityEdition, ASNEdition} {
		if _, err := d.Download(ctx, edition); err != nil {
			errs = append(errs, err)
		}
	}
	if svc != nil {
		if err := svc.Reload(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
