// Package graph implements §3's data model (Node, Role, Graph) and §4.3's
// node factory, §4.4's graph. Role is modeled as a closed sum type with
// one struct per variant and a RoleKind discriminator, the idiomatic Go
// stand-in for the source's tagged union (§9 "Role polymorphism": "do not
// use open inheritance").
package graph

// RoleKind discriminates the exhaustive set of node roles (§3).
type RoleKind int

const (
	RoleExecutable RoleKind = iota
	RoleBinary
	RoleBinaryInLDPath
	RoleBinaryInPath
	RolePrefixPlain
	RolePrefixBinary
	RoleExecPrefixPlain
	RoleExecPrefixBinary
	RoleSitePackagesPlain
	RoleSitePackagesBinary
	RolePlainPyBinaryFile
	RoleMainPyScript
)

func (k RoleKind) String() string {
	switch k {
	case RoleExecutable:
		return "Executable"
	case RoleBinary:
		return "Binary"
	case RoleBinaryInLDPath:
		return "BinaryInLDPath"
	case RoleBinaryInPath:
		return "BinaryInPath"
	case RolePrefixPlain:
		return "PrefixPlain"
	case RolePrefixBinary:
		return "PrefixBinary"
	case RoleExecPrefixPlain:
		return "ExecPrefixPlain"
	case RoleExecPrefixBinary:
		return "ExecPrefixBinary"
	case RoleSitePackagesPlain:
		return "SitePackagesPlain"
	case RoleSitePackagesBinary:
		return "SitePackagesBinary"
	case RolePlainPyBinaryFile:
		return "PlainPyBinaryFile"
	case RoleMainPyScript:
		return "MainPyScript"
	default:
		return "Unknown"
	}
}

// Role carries exactly the fields the variant named by Kind needs; the
// layout planner (internal/layout) switches on Kind and reads only the
// fields that variant defined in §3.
type Role struct {
	Kind RoleKind

	// Binary / BinaryInLDPath / BinaryInPath / PrefixBinary /
	// ExecPrefixBinary / SitePackagesBinary / Executable.
	SHA string

	// BinaryInLDPath only: additional user-declared symlink names.
	Symlinks []string

	// PrefixPlain/PrefixBinary/ExecPrefixPlain/ExecPrefixBinary.
	// RelPath is also set for SitePackagesPlain/SitePackagesBinary,
	// relative to OriginalRoot.
	OriginalPrefix string
	RelPath        string
	Version        string

	// SitePackagesPlain/SitePackagesBinary.
	OriginalRoot string
	Alias        string
}

// Binary reports whether this role's node carries a parsed object-file
// analysis (vs. a Plain data file that was never analyzed).
func (r Role) Binary() bool {
	switch r.Kind {
	case RoleExecutable, RoleBinary, RoleBinaryInLDPath, RoleBinaryInPath,
		RolePrefixBinary, RoleExecPrefixBinary, RoleSitePackagesBinary:
		return true
	default:
		return false
	}
}
