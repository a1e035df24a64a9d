package extract

import "github.com/talismancer/gowim/internal/wimerr"

// Flags controls extraction behaviour (spec §6).
type Flags uint32

const (
	FlagNTFS Flags = 1 << iota
	FlagSymlink
	FlagHardlink
	FlagSequential
	FlagVerbose
	FlagUnixData
	FlagRPFix
	FlagNoRPFix
	FlagToStdout

	// FlagNoStreams is engine-internal. Apply neither sets nor reads it:
	// Phase A skips payloads because Backend.ApplyStructure never receives
	// stream content.
	FlagNoStreams
	// FlagMultiImage is engine-internal. No code in this module sets or
	// reads it, and there is no all-images extraction path.
	FlagMultiImage
)

// Validate enforces the mutual-exclusion rules spec §6 names, returning
// InvalidParam if flags combine incompatibly.
func (f Flags) Validate() error {
	if f&FlagSymlink != 0 && f&FlagHardlink != 0 {
		return wimerr.New(wimerr.InvalidParam, "Flags.Validate", nil)
	}
	if f&FlagRPFix != 0 && f&FlagNoRPFix != 0 {
		return wimerr.New(wimerr.InvalidParam, "Flags.Validate", nil)
	}
	if f&FlagNTFS != 0 && (f&FlagSymlink != 0 || f&FlagHardlink != 0) {
		// Raw-NTFS is mutually exclusive with link modes (spec §4.5).
		return wimerr.New(wimerr.InvalidParam, "Flags.Validate", nil)
	}
	return nil
}

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }
