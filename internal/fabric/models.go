package fabric

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"regfabric/common"
)

// Space describes one address space of a fabric: its geometry plus the
// registers it holds and the windows to its subordinate spaces. The
// top-level document of a fabric file is a Space. At implicit addresses,
// registers are placed before windows.
type Space struct {
	// Name of the address space. Optional; an unnamed window space
	// donates its inner names to the parent instead of prefixing them.
	Name string `yaml:"name" validate:"omitempty,pathatom"`
	// AddrWidth is the number of address bits, 1 to 63.
	AddrWidth uint `yaml:"addr_width" validate:"min=1,max=63"`
	// DataWidth is the number of data bits per address, 1 to 64.
	DataWidth uint `yaml:"data_width" validate:"min=1,max=64"`
	// Alignment is the default range alignment, a power-of-2 exponent.
	Alignment uint `yaml:"alignment" validate:"max=63"`
	// Registers placed in this space. A live bus node drives either
	// registers or windows; mixing both is rejected when building a bus
	// but allowed in a bare layout.
	Registers []Register `yaml:"registers" validate:"dive"`
	// Windows to subordinate spaces.
	Windows []Window `yaml:"windows" validate:"dive"`
}

// Register describes one CSR register.
type Register struct {
	// Name of the register, one element of its slash-joined path.
	Name string `yaml:"name" validate:"required,pathatom"`
	// Width in bits, 1 to 64. A register wider than the bus data width
	// occupies several consecutive addresses.
	Width uint `yaml:"width" validate:"min=1,max=64"`
	// Access is the bus access mode: "r", "w" or "rw".
	Access string `yaml:"access" validate:"required,oneof=r w rw"`
	// Addr places the register explicitly. Absent means the implicit
	// next address.
	Addr *uint64 `yaml:"addr"`
	// Alignment overrides the space alignment when larger.
	Alignment *uint `yaml:"alignment" validate:"omitempty,max=63"`
	// Init is the initial register value. Must fit in Width bits.
	Init uint64 `yaml:"init"`
}

// Window describes a subordinate space and its placement in the parent.
type Window struct {
	Space `yaml:",inline"`
	// Addr places the window explicitly. Absent means the implicit next
	// address, aligned to the window size.
	Addr *uint64 `yaml:"addr"`
	// Sparse selects the address translation mode when the subordinate
	// data width is narrower than the parent's. It must be set in that
	// case and is ignored otherwise.
	Sparse *bool `yaml:"sparse"`
}

// fabricValidate checks description models against their struct tags.
// Initialized in init() with the custom path-atom rule.
var fabricValidate *validator.Validate

func init() {
	fabricValidate = validator.New()
	_ = fabricValidate.RegisterValidation("pathatom", validatePathAtom)
}

// validatePathAtom accepts names usable as one element of a slash-joined
// resource path.
func validatePathAtom(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if name == "" {
		return false
	}
	return !strings.ContainsAny(name, "/ \t\r\n")
}

// describeFieldError renders one struct-tag violation.
func describeFieldError(fe validator.FieldError) string {
	if fe.Param() != "" {
		return fmt.Sprintf("%s: value %v fails constraint %s=%s",
			fe.Namespace(), fe.Value(), fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("%s: value %v fails constraint %s",
		fe.Namespace(), fe.Value(), fe.Tag())
}

// Validate checks the description: struct tags first, then the value
// rules the tags cannot express.
func (s *Space) Validate() error {
	if err := fabricValidate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return common.NewErrorMsg(common.ErrSevError, common.ErrConfig,
				fmt.Sprintf("cannot validate fabric description: %v", err))
		}
		lines := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			lines = append(lines, describeFieldError(fe))
		}
		return common.NewErrorMsg(common.ErrSevError, common.ErrConfig,
			fmt.Sprintf("invalid fabric description:\n- %s", strings.Join(lines, "\n- ")))
	}
	return s.checkValues("")
}

// checkValues walks the description for rules that span fields.
func (s *Space) checkValues(prefix string) error {
	for i := range s.Registers {
		r := &s.Registers[i]
		if r.Width < 64 && r.Init>>r.Width != 0 {
			return common.NewErrorMsg(common.ErrSevError, common.ErrConfig,
				fmt.Sprintf("register %q: initial value %#x does not fit in %d bits",
					joinPath(prefix, r.Name), r.Init, r.Width))
		}
	}
	for i := range s.Windows {
		w := &s.Windows[i]
		if err := w.checkValues(joinPath(prefix, w.Name)); err != nil {
			return err
		}
	}
	return nil
}

// joinPath appends one path element, skipping empty names.
func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	if name == "" {
		return prefix
	}
	return prefix + "/" + name
}
