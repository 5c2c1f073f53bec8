package testenv

import (
	"fmt"

	"github.com/bft-labs/flowrig/pkg/flowengine"
	"github.com/bft-labs/flowrig/pkg/flowtest"
	"github.com/bft-labs/flowrig/pkg/lifecycle"
	"github.com/bft-labs/flowrig/pkg/log"
	"github.com/bft-labs/flowrig/pkg/probe"
	"github.com/bft-labs/flowrig/pkg/resource"
)

// Version information for the testenv module.
const (
	// Version is the current version of the testenv module.
	Version = "1.0.0"

	// MinCompatibleVersion is the minimum version that is compatible with this version.
	MinCompatibleVersion = "1.0.0"
)

type moduleVersion struct {
	// required is the module API version testenv is written against.
	required   string
	version    string
	minVersion string
}

var modules = map[string]moduleVersion{
	"probe":      {"1.0.0", probe.Version, probe.MinCompatibleVersion},
	"lifecycle":  {"1.1.0", lifecycle.Version, lifecycle.MinCompatibleVersion},
	"resource":   {"1.0.0", resource.Version, resource.MinCompatibleVersion},
	"flowengine": {"1.0.0", flowengine.Version, flowengine.MinCompatibleVersion},
	"flowtest":   {"1.0.0", flowtest.Version, flowtest.MinCompatibleVersion},
	"log":        {"1.0.0", log.Version, log.MinCompatibleVersion},
}

func validateModuleVersions() error {
	return checkModules(modules)
}

// checkModules fails when a module is older than the version testenv
// requires, or no longer supports it.
func checkModules(mods map[string]moduleVersion) error {
	for name, m := range mods {
		newEnough, err := isVersionCompatible(m.version, m.required)
		if err != nil {
			return fmt.Errorf("module %s: %w", name, err)
		}
		if !newEnough {
			return fmt.Errorf("module %s version %s is older than required %s",
				name, m.version, m.required)
		}
		supported, err := isVersionCompatible(m.required, m.minVersion)
		if err != nil {
			return fmt.Errorf("module %s: %w", name, err)
		}
		if !supported {
			return fmt.Errorf("module %s %s no longer supports required version %s (minimum %s)",
				name, m.version, m.required, m.minVersion)
		}
	}
	return nil
}

// isVersionCompatible reports whether version >= minVersion, both in
// "major.minor.patch" form.
func isVersionCompatible(version, minVersion string) (bool, error) {
	var vMajor, vMinor, vPatch int
	var mMajor, mMinor, mPatch int

	if _, err := fmt.Sscanf(version, "%d.%d.%d", &vMajor, &vMinor, &vPatch); err != nil {
		return false, fmt.Errorf("parse version %q: %w", version, err)
	}
	if _, err := fmt.Sscanf(minVersion, "%d.%d.%d", &mMajor, &mMinor, &mPatch); err != nil {
		return false, fmt.Errorf("parse version %q: %w", minVersion, err)
	}

	if vMajor != mMajor {
		return vMajor > mMajor, nil
	}
	if vMinor != mMinor {
		return vMinor > mMinor, nil
	}
	return vPatch >= mPatch, nil
}
