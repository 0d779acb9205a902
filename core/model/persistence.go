package model

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/neutronics-workshop/gptools/pkg/errors"
)

// SaveJSON writes v to filename as indented JSON, creating parent directories.
//
// 使用例:
//
//	snap := reg.Snapshot()
//	err := model.SaveJSON(&snap, "surrogate.json")
func SaveJSON(v interface{}, filename string) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "failed to create directory %s", dir)
		}
	}
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "failed to create file")
	}
	defer file.Close()

	return SaveJSONToWriter(v, file)
}

// LoadJSON reads filename into v.
func LoadJSON(v interface{}, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return errors.Wrap(err, "failed to open file")
	}
	defer file.Close()

	return LoadJSONFromReader(v, file)
}

// SaveJSONToWriter encodes v to w as indented JSON.
func SaveJSONToWriter(v interface{}, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "    ")
	if err := encoder.Encode(v); err != nil {
		return errors.Wrap(err, "failed to encode")
	}
	return nil
}

// LoadJSONFromReader decodes a JSON document from r into v.
func LoadJSONFromReader(v interface{}, r io.Reader) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return errors.Wrap(err, "failed to decode")
	}
	return nil
}
