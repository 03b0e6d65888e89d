package types

import (
	"fmt"
	"strings"
)

// RepositoryInfo identifies the repository issues are filed against
type RepositoryInfo struct {
	Owner string
	Name  string
}

// ParseRepository parses an "owner/name" or "https://github.com/owner/name" reference
func ParseRepository(ref string) (RepositoryInfo, error) {
	ref = strings.TrimSpace(ref)
	ref = strings.TrimPrefix(ref, "https://github.com/")
	ref = strings.TrimSuffix(ref, ".git")
	ref = strings.Trim(ref, "/")

	parts := strings.Split(ref, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return RepositoryInfo{}, fmt.Errorf("invalid repository reference %q, expected owner/name", ref)
	}

	return RepositoryInfo{Owner: parts[0], Name: parts[1]}, nil
}

// String returns the owner/name form
func (r RepositoryInfo) String() string {
	return r.Owner + "/" + r.Name
}
