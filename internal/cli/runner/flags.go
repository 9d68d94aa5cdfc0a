package runner

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lcrostarosa/lifeboat/internal/store"
)

// AllClasses is accepted by class flags to mean every backup class.
const AllClasses = "all"

// FlagSet reads a command's flags and collects lookup and parse failures,
// so a handler reads everything first and checks Err once.
type FlagSet struct {
	flags *pflag.FlagSet
	errs  []error
}

// Flags wraps cmd's merged flag set.
func Flags(cmd *cobra.Command) *FlagSet {
	return &FlagSet{flags: cmd.Flags()}
}

func (f *FlagSet) fail(name string, err error) {
	f.errs = append(f.errs, fmt.Errorf("flag --%s: %w", name, err))
}

// String returns a string flag.
func (f *FlagSet) String(name string) string {
	val, err := f.flags.GetString(name)
	if err != nil {
		f.fail(name, err)
	}
	return val
}

// Bool returns a bool flag.
func (f *FlagSet) Bool(name string) bool {
	val, err := f.flags.GetBool(name)
	if err != nil {
		f.fail(name, err)
	}
	return val
}

// Class parses a backup class flag. AllClasses yields the empty class,
// which archive listings treat as every class.
func (f *FlagSet) Class(name string) store.Class {
	val := f.String(name)
	if val == AllClasses {
		return ""
	}
	class, err := store.ParseClass(val)
	if err != nil {
		f.fail(name, err)
	}
	return class
}

// Changed reports whether the flag was given on the command line.
func (f *FlagSet) Changed(name string) bool {
	return f.flags.Changed(name)
}

// Err joins everything collected so far, or returns nil.
func (f *FlagSet) Err() error {
	return errors.Join(f.errs...)
}

// HasErrors reports whether any flag failed.
func (f *FlagSet) HasErrors() bool {
	return len(f.errs) > 0
}
