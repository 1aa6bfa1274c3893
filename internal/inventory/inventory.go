// Package inventory persists the device registry and the schedule
// descriptors as YAML files.
//
// Every mutation is a read-modify-write of the whole file performed while
// holding the owning store's mutex, so concurrent callers inside one
// process never lose updates.
package inventory

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/tastythames/switch-backup/internal/model"
)

var utf8BOM = []byte("\xef\xbb\xbf")

// readYAML decodes path into out. A missing or empty file leaves out untouched.
//
// JSON is a subset of the YAML accepted here, so files written by earlier
// JSON based releases load as well.
func readYAML(path string, out interface{}) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return errors.Wrap(model.ErrStorage, "read "+path+": "+err.Error())
	}

	b = bytes.TrimPrefix(b, utf8BOM)
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}

	if err := yaml.Unmarshal(b, out); err != nil {
		return errors.Wrap(model.ErrStorage, "yaml unmarshal "+path+": "+err.Error())
	}

	return nil
}

// writeYAML replaces path with the encoding of in, going through a temp
// file in the same directory so readers never observe a partial write.
func writeYAML(path string, in interface{}) error {
	b, err := yaml.Marshal(in)
	if err != nil {
		return errors.Wrap(model.ErrStorage, "yaml marshal: "+err.Error())
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return errors.Wrap(model.ErrStorage, "create "+dir+": "+err.Error())
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrap(model.ErrStorage, "create temp file: "+err.Error())
	}

	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return errors.Wrap(model.ErrStorage, "write "+tmp.Name()+": "+err.Error())
	}

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return errors.Wrap(model.ErrStorage, "chmod "+tmp.Name()+": "+err.Error())
	}

	if err := tmp.Close(); err != nil {
		return errors.Wrap(model.ErrStorage, "close "+tmp.Name()+": "+err.Error())
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(model.ErrStorage, "rename to "+path+": "+err.Error())
	}

	return nil
}
