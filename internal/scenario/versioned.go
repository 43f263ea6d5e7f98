package scenario

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var versionFileRegex = regexp.MustCompile(`^(\d+)_.*\.(ya?ml)$`)

type vfile struct {
	version int
	name    string
	path    string
}

// label is the file name without its numeric prefix and extension.
func (f vfile) label() string {
	base := strings.TrimSuffix(f.name, filepath.Ext(f.name))
	if _, rest, ok := strings.Cut(base, "_"); ok && rest != "" {
		return rest
	}
	return base
}

// listScenarioFiles returns the NNN_name.yaml files of dir sorted by version.
// Other entries are ignored.
func listScenarioFiles(dir string) ([]vfile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []vfile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := versionFileRegex.FindStringSubmatch(e.Name())
		if len(m) == 0 {
			continue
		}
		v, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		files = append(files, vfile{version: v, name: e.Name(), path: filepath.Join(dir, e.Name())})
	}
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].version != files[j].version {
			return files[i].version < files[j].version
		}
		return files[i].name < files[j].name
	})
	return files, nil
}

// planRange keeps the files with from <= version <= to. to <= 0 means no
// upper bound.
func planRange(files []vfile, from, to int) []vfile {
	plan := make([]vfile, 0, len(files))
	for _, f := range files {
		if f.version < from {
			continue
		}
		if to > 0 && f.version > to {
			continue
		}
		plan = append(plan, f)
	}
	return plan
}
