// Package geolite annotates ban notes with GeoLite2 country and ASN data.
package geolite

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/oschwald/geoip2-golang"

	"failguard/internal/config"
)

// Annotator looks addresses up in the configured MaxMind databases. A zero
// Annotator, or one opened with no paths, annotates nothing.
type Annotator struct {
	countryDB *geoip2.Reader
	asnDB     *geoip2.Reader
}

func Open(cfg config.GeoLiteConfig) (*Annotator, error) {
	var (
		a         Annotator
		errorList []error
	)

	if path := strings.TrimSpace(cfg.CountryDB); path != "" {
		reader, err := readerFromDisk(path)
		if err != nil {
			errorList = append(errorList, fmt.Errorf("country: %w", err))
		}
		a.countryDB = reader
	}
	if path := strings.TrimSpace(cfg.ASNDB); path != "" {
		reader, err := readerFromDisk(path)
		if err != nil {
			errorList = append(errorList, fmt.Errorf("asn: %w", err))
		}
		a.asnDB = reader
	}

	if len(errorList) > 0 {
		a.Close()
		return nil, fmt.Errorf("geolite: %w", errors.Join(errorList...))
	}
	if a.Enabled() {
		log.Info("GeoLite databases loaded", "country", a.countryDB != nil, "asn", a.asnDB != nil)
	}
	return &a, nil
}

func readerFromDisk(path string) (*geoip2.Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return geoip2.FromBytes(data)
}

func (a *Annotator) Enabled() bool {
	return a != nil && (a.countryDB != nil || a.asnDB != nil)
}

// Annotate returns "country=XX asn=AS123 Org" for address, omitting parts
// that are unknown. Lookup failures yield an empty string.
func (a *Annotator) Annotate(address string) string {
	if !a.Enabled() {
		return ""
	}
	ip := net.ParseIP(address)
	if ip == nil {
		return ""
	}

	var parts []string
	if a.countryDB != nil {
		if record, err := a.countryDB.Country(ip); err == nil && record.Country.IsoCode != "" {
			parts = append(parts, "country="+record.Country.IsoCode)
		}
	}
	if a.asnDB != nil {
		if record, err := a.asnDB.ASN(ip); err == nil && record.AutonomousSystemNumber != 0 {
			asn := fmt.Sprintf("asn=AS%d", record.AutonomousSystemNumber)
			if org := strings.TrimSpace(record.AutonomousSystemOrganization); org != "" {
				asn += " " + org
			}
			parts = append(parts, asn)
		}
	}
	return strings.Join(parts, " ")
}

func (a *Annotator) Close() {
	if a == nil {
		return
	}
	if a.countryDB != nil {
		_ = a.countryDB.Close()
		a.countryDB = nil
	}
	if a.asnDB != nil {
		_ = a.asnDB.Close()
		a.asnDB = nil
	}
}
