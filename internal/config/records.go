package config

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	ldapclient "github.com/isometry/replicad/internal/ldap"
	"github.com/isometry/replicad/internal/replication"
)

// RecordFile is a batch of change records to replay.
type RecordFile struct {
	Records []RecordEntry `yaml:"records"`
}

// RecordEntry is the YAML form of one change record.
type RecordEntry struct {
	DN         string      `yaml:"dn"`
	ChangeType string      `yaml:"changetype"`
	Mods       []ItemEntry `yaml:"mods"`
}

// ItemEntry is the YAML form of one type/value pair. Base64 values are
// decoded before use so records can carry binary attribute values.
type ItemEntry struct {
	Type   string `yaml:"type"`
	Value  string `yaml:"value"`
	Base64 bool   `yaml:"base64"`
}

// LoadRecords reads a record batch file.
func LoadRecords(path string) ([]replication.ChangeRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	records, err := ParseRecords(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// ParseRecords decodes a record batch document.
//
// Only DN syntax and value encoding are checked here. An unrecognised change
// type and the order and meaning of mod items are left to the dispatcher,
// which rejects a malformed record at apply time.
func ParseRecords(data []byte) ([]replication.ChangeRecord, error) {
	var file RecordFile

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}

	var errs []error
	records := make([]replication.ChangeRecord, 0, len(file.Records))
	for i, entry := range file.Records {
		rec, err := entry.Record()
		if err != nil {
			errs = append(errs, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		records = append(records, rec)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return records, nil
}

// Record converts s into a change record.
func (s *RecordEntry) Record() (replication.ChangeRecord, error) {
	if s.DN == "" {
		return replication.ChangeRecord{}, errors.New("dn is required")
	}
	if err := ldapclient.ValidateDNSyntax(s.DN); err != nil {
		return replication.ChangeRecord{}, fmt.Errorf("dn: %w", err)
	}

	// Unrecognised types load as ChangeUnknown and fail when applied.
	ct, _ := replication.ParseChangeType(s.ChangeType)

	mods := make([]replication.ModItem, 0, len(s.Mods))
	for j, item := range s.Mods {
		value := []byte(item.Value)
		if item.Base64 {
			var err error
			value, err = base64.StdEncoding.DecodeString(item.Value)
			if err != nil {
				return replication.ChangeRecord{}, fmt.Errorf("mod %d (%s): decode base64: %w", j, item.Type, err)
			}
		}
		mods = append(mods, replication.ModItem{Type: item.Type, Value: value})
	}

	return replication.ChangeRecord{DN: s.DN, ChangeType: ct, Mods: mods}, nil
}
