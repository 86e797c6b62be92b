package emuplug

import (
	"github.com/go-lynx/emuplug/log"
	"github.com/go-lynx/emuplug/plugins"
)

// InstallAll installs the modules named by "path,arg,arg" descriptors in
// order and stops at the first failure. Ids of the modules installed before
// the failure are returned along with the error.
func (r *Registry) InstallAll(descs []string) ([]plugins.ID, error) {
	ids := make([]plugins.ID, 0, len(descs))
	for _, s := range descs {
		d, err := plugins.ParseDescriptor(s)
		if err != nil {
			return ids, err
		}
		id, err := r.Install(d)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	log.Infof("installed %d plugin(s)", len(ids))
	return ids, nil
}
