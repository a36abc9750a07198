package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore keeps fms_credits_<user>.json and fms_usage_<user>.json in one directory.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir; "" means the working directory.
func NewFileStore(dir string) *FileStore {
	if dir == "" {
		dir = "."
	}
	return &FileStore{dir: dir}
}

// CreditsPath returns the credits file of user.
func (s *FileStore) CreditsPath(user string) string {
	return filepath.Join(s.dir, fmt.Sprintf("fms_credits_%s.json", user))
}

// UsagePath returns the usage file of user.
func (s *FileStore) UsagePath(user string) string {
	return filepath.Join(s.dir, fmt.Sprintf("fms_usage_%s.json", user))
}

func (s *FileStore) LoadAccount(_ context.Context, user string) (Account, bool, error) {
	acct := Account{User: user}
	data, err := os.ReadFile(s.CreditsPath(user))
	if err != nil {
		if os.IsNotExist(err) {
			return acct, false, nil
		}
		return acct, false, fmt.Errorf("read credits failed: %w", err)
	}
	if err := json.Unmarshal(data, &acct); err != nil {
		return Account{User: user}, false, fmt.Errorf("parse credits failed: %w", err)
	}
	acct.User = user
	return acct, true, nil
}

func (s *FileStore) SaveAccount(_ context.Context, acct Account) error {
	data, err := json.Marshal(acct)
	if err != nil {
		return fmt.Errorf("marshal credits failed: %w", err)
	}
	if err := writeFileAtomic(s.CreditsPath(acct.User), data, 0o600); err != nil {
		return fmt.Errorf("write credits failed: %w", err)
	}
	return nil
}

func (s *FileStore) LoadUsage(_ context.Context, user string) ([]UsageRecord, error) {
	data, err := os.ReadFile(s.UsagePath(user))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read usage failed: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var records []UsageRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse usage failed: %w", err)
	}
	return records, nil
}

func (s *FileStore) SaveUsage(_ context.Context, user string, records []UsageRecord) error {
	if records == nil {
		records = []UsageRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal usage failed: %w", err)
	}
	if err := writeFileAtomic(s.UsagePath(user), data, 0o600); err != nil {
		return fmt.Errorf("write usage failed: %w", err)
	}
	return nil
}

func (s *FileStore) DeleteUsage(_ context.Context, user string) error {
	if err := os.Remove(s.UsagePath(user)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove usage failed: %w", err)
	}
	return nil
}

// writeFileAtomic writes data to a temp file in the target directory,
// syncs it and renames it over path.
func writeFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		if f != nil {
			_ = f.Close()
		}
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if _, err = f.Write(data); err != nil {
		return err
	}
	if err = f.Sync(); err != nil {
		return err
	}
	if err = f.Chmod(perm); err != nil {
		return err
	}
	err = f.Close()
	f = nil
	if err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
