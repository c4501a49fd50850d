package fabric

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"regfabric/common"
)

// Parse decodes one fabric description document from r and validates it.
// Unknown keys are rejected, so a typo in a description fails loudly
// instead of silently dropping the field.
func Parse(r io.Reader) (*Space, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var sp Space
	if err := dec.Decode(&sp); err != nil {
		return nil, common.NewErrorMsg(common.ErrSevError, common.ErrConfig,
			fmt.Sprintf("cannot decode fabric description: %v", err))
	}
	if err := sp.Validate(); err != nil {
		return nil, err
	}
	return &sp, nil
}

// ParseFile reads and parses the fabric description at path.
func ParseFile(path string) (*Space, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, common.NewErrorMsg(common.ErrSevError, common.ErrConfig,
			fmt.Sprintf("cannot open fabric description: %v", err))
	}
	defer f.Close()
	return Parse(f)
}
