package store

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/undergis/spatialid/internal/model"
	"github.com/undergis/spatialid/internal/sid"
)

// Coverage sets are persisted as JSON arrays of canonical tokens rather
// than struct blobs, so rows stay readable and queryable from SQL.

func encodeCoverage(cs *model.CoverageSet) (string, error) {
	if cs == nil {
		return "", nil
	}
	b, err := json.Marshal(cs.Tokens())
	if err != nil {
		return "", eris.Wrap(err, "store: marshal coverage")
	}
	return string(b), nil
}

func decodeCoverage(s string) (*model.CoverageSet, error) {
	if s == "" {
		return nil, nil
	}
	var tokens []string
	if err := json.Unmarshal([]byte(s), &tokens); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal coverage")
	}
	cs := &model.CoverageSet{IDs: make([]sid.ID, len(tokens))}
	for i, tok := range tokens {
		id, err := sid.Parse(tok)
		if err != nil {
			return nil, eris.Wrapf(err, "store: coverage token %d", i)
		}
		cs.IDs[i] = id
	}
	return cs, nil
}

func encodeAttrs(attrs map[string]string) (string, error) {
	if len(attrs) == 0 {
		return "", nil
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return "", eris.Wrap(err, "store: marshal attrs")
	}
	return string(b), nil
}

func decodeAttrs(s string) (map[string]string, error) {
	if s == "" {
		return nil, nil
	}
	var attrs map[string]string
	if err := json.Unmarshal([]byte(s), &attrs); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal attrs")
	}
	return attrs, nil
}
