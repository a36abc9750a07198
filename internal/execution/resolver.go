package execution

import (
	"os"
	"path/filepath"

	"fms/pkg/errors"
)

// Resolver turns a user-supplied target into the executable to run.
type Resolver interface {
	Resolve(path string) (string, error)
}

// SymlinkResolver follows symbolic links to the final target.
type SymlinkResolver struct{}

func (SymlinkResolver) Resolve(path string) (string, error) {
	if path == "" {
		return "", errors.ValidationError("path", "target path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrapf(err, errors.TargetResolveFailed, "resolve %s", path)
	}
	target, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.Newf(errors.TargetNotFound, "target %s does not exist", path)
		}
		return "", errors.Wrapf(err, errors.TargetResolveFailed, "resolve %s", path)
	}
	info, err := os.Stat(target)
	if err != nil {
		return "", errors.Wrapf(err, errors.TargetResolveFailed, "stat %s", target)
	}
	if info.IsDir() {
		return "", errors.Newf(errors.TargetResolveFailed, "target %s is a directory", path)
	}
	return target, nil
}
